package detector

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

//nolint:gochecknoglobals // fixed lookup table
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "will": {}, "be": {}, "is": {}, "are": {}, "of": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "and": {}, "or": {}, "by": {}, "with": {}, "from": {},
	"this": {}, "that": {}, "have": {}, "has": {}, "been": {}, "they": {}, "does": {}, "do": {},
}

// normalize lowercases, strips accents and collapses everything but letters and digits to single spaces.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		out = strings.ToLower(s)
	}

	out = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

func words(s string) []string {
	return strings.Fields(normalize(s))
}

// Keywords returns up to limit distinct non-stop words of at least minLen runes, in order of appearance.
func Keywords(s string, minLen, limit int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range words(s) {
		if len([]rune(w)) < minLen {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Similarity scores two questions in [0,1]: 0.6 × character LCS ratio + 0.4 × keyword Jaccard overlap.
func Similarity(a, b string) float64 {
	na, nb := stripStopWords(normalize(a)), stripStopWords(normalize(b))
	if na == "" || nb == "" {
		return 0
	}
	return 0.6*lcsRatio(na, nb) + 0.4*jaccard(Keywords(a, 1, 0), Keywords(b, 1, 0))
}

func stripStopWords(s string) string {
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, w := range fields {
		if _, stop := stopWords[w]; !stop {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// lcsRatio returns 2×LCS / (len(a)+len(b)) over runes.
func lcsRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return 2 * float64(prev[len(rb)]) / float64(len(ra)+len(rb))
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, w := range a {
		set[w] = struct{}{}
	}
	inter := 0
	union := len(set)
	for _, w := range b {
		if _, ok := set[w]; ok {
			inter++
			continue
		}
		union++
	}
	return float64(inter) / float64(union)
}
