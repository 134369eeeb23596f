package detector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/FewZ2372/polymarket-bot/internal/market"
)

// ProbabilityPattern maps a question regex to a probability estimate.
type ProbabilityPattern struct {
	Pattern     string  `toml:"pattern"`
	Probability float64 `toml:"probability"`

	re *regexp.Regexp
}

// CorrelatedPair links a leader question pattern to a follower pattern.
type CorrelatedPair struct {
	Leader      string  `toml:"leader"`
	Follower    string  `toml:"follower"`
	Coefficient float64 `toml:"coefficient"`

	leaderRe   *regexp.Regexp
	followerRe *regexp.Regexp
}

// Lexicon is the set of word lists and patterns the text-driven variants match against.
type Lexicon struct {
	DeadlineKeywords []string             `toml:"deadline_keywords"`
	Implausible      []string             `toml:"implausible"`
	Certain          []ProbabilityPattern `toml:"certain"`
	Correlations     []CorrelatedPair     `toml:"correlations"`
	FairValues       []ProbabilityPattern `toml:"fair_values"`
	NegativeWords    []string             `toml:"negative_words"`
	ConfirmWords     []string             `toml:"confirm_words"`
	DenyWords        []string             `toml:"deny_words"`

	implausibleRe []*regexp.Regexp
}

// DefaultLexicon returns the built-in lexicon, already compiled.
func DefaultLexicon() *Lexicon {
	l := &Lexicon{
		DeadlineKeywords: []string{"before", "by", "prior to", "until", "by end of", "by the end", "within"},
		Implausible: []string{
			`alien`, `ufo`, `asteroid.*hit`, `apocalypse`, `world.*end`, `zombie`, `vampire`,
			`unicorn`, `moon.*explode`, `sun.*explode`, `teleport`, `time.*travel`, `immortal`,
		},
		Certain: []ProbabilityPattern{
			{Pattern: `super\s*bowl`, Probability: 0.99},
			{Pattern: `nba\s*finals`, Probability: 0.99},
			{Pattern: `world\s*series`, Probability: 0.99},
			{Pattern: `sun.*rise`, Probability: 0.9999},
			{Pattern: `earth.*rotate`, Probability: 0.9999},
			{Pattern: `alien.*contact`, Probability: 0.01},
			{Pattern: `world.*end`, Probability: 0.001},
			{Pattern: `asteroid.*hit.*earth`, Probability: 0.01},
			{Pattern: `human.*mars`, Probability: 0.01},
		},
		Correlations: []CorrelatedPair{
			{Leader: `trump.*win`, Follower: `republican.*win`, Coefficient: 0.95},
			{Leader: `bitcoin.*100k`, Follower: `crypto.*bull`, Coefficient: 0.80},
			{Leader: `fed.*raise.*rate`, Follower: `inflation.*high`, Coefficient: 0.70},
			{Leader: `shutdown`, Follower: `government.*fund`, Coefficient: 0.85},
			{Leader: `harris.*win`, Follower: `democrat.*win`, Coefficient: 0.95},
			{Leader: `recession`, Follower: `stock.*crash`, Coefficient: 0.75},
		},
		FairValues: []ProbabilityPattern{
			{Pattern: `super\s*bowl`, Probability: 0.95},
			{Pattern: `fed.*rate.*cut`, Probability: 0.65},
			{Pattern: `fed.*rate.*hike`, Probability: 0.30},
			{Pattern: `shutdown`, Probability: 0.25},
			{Pattern: `alien`, Probability: 0.02},
		},
		NegativeWords: []string{"fall", "drop", "crash", "fail", "reject", "deny", "bad"},
		ConfirmWords:  []string{"confirmed", "announced", "happened", "won", "passed", "approved"},
		DenyWords:     []string{"denied", "rejected", "failed", "lost", "cancelled", "not"},
	}
	if err := l.compile(); err != nil {
		panic(err)
	}
	return l
}

// LoadLexicon reads a TOML override file. Lists present in the file replace the defaults; absent ones are kept.
func LoadLexicon(path string) (*Lexicon, error) {
	var override Lexicon
	if _, err := toml.DecodeFile(path, &override); err != nil {
		return nil, fmt.Errorf("decode lexicon %s: %w", path, err)
	}

	l := DefaultLexicon()
	if len(override.DeadlineKeywords) > 0 {
		l.DeadlineKeywords = override.DeadlineKeywords
	}
	if len(override.Implausible) > 0 {
		l.Implausible = override.Implausible
	}
	if len(override.Certain) > 0 {
		l.Certain = override.Certain
	}
	if len(override.Correlations) > 0 {
		l.Correlations = override.Correlations
	}
	if len(override.FairValues) > 0 {
		l.FairValues = override.FairValues
	}
	if len(override.NegativeWords) > 0 {
		l.NegativeWords = override.NegativeWords
	}
	if len(override.ConfirmWords) > 0 {
		l.ConfirmWords = override.ConfirmWords
	}
	if len(override.DenyWords) > 0 {
		l.DenyWords = override.DenyWords
	}

	if err := l.compile(); err != nil {
		return nil, fmt.Errorf("compile lexicon %s: %w", path, err)
	}
	return l, nil
}

func (l *Lexicon) compile() error {
	l.implausibleRe = make([]*regexp.Regexp, 0, len(l.Implausible))
	for _, p := range l.Implausible {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("implausible pattern %q: %w", p, err)
		}
		l.implausibleRe = append(l.implausibleRe, re)
	}

	for _, set := range [][]ProbabilityPattern{l.Certain, l.FairValues} {
		for i := range set {
			if set[i].Probability <= 0 || set[i].Probability >= 1 {
				return fmt.Errorf("pattern %q: probability %v outside (0,1)", set[i].Pattern, set[i].Probability)
			}
			re, err := regexp.Compile(set[i].Pattern)
			if err != nil {
				return fmt.Errorf("pattern %q: %w", set[i].Pattern, err)
			}
			set[i].re = re
		}
	}

	for i := range l.Correlations {
		c := &l.Correlations[i]
		if c.Coefficient <= 0 || c.Coefficient > 1 {
			return fmt.Errorf("correlation %q/%q: coefficient %v outside (0,1]", c.Leader, c.Follower, c.Coefficient)
		}
		var err error
		if c.leaderRe, err = regexp.Compile(c.Leader); err != nil {
			return fmt.Errorf("correlation leader %q: %w", c.Leader, err)
		}
		if c.followerRe, err = regexp.Compile(c.Follower); err != nil {
			return fmt.Errorf("correlation follower %q: %w", c.Follower, err)
		}
	}
	return nil
}

// DeadlineKeyword returns the first deadline keyword found as whole words in the question.
func (l *Lexicon) DeadlineKeyword(question string) (string, bool) {
	padded := " " + strings.Join(words(question), " ") + " "
	for _, kw := range l.DeadlineKeywords {
		if strings.Contains(padded, " "+strings.ToLower(kw)+" ") {
			return kw, true
		}
	}
	return "", false
}

// ImplausiblePattern returns the first implausible-event pattern matching the question.
func (l *Lexicon) ImplausiblePattern(question string) (string, bool) {
	q := strings.ToLower(question)
	for _, re := range l.implausibleRe {
		if re.MatchString(q) {
			return re.String(), true
		}
	}
	return "", false
}

// CertainProbability returns the expected YES probability of a known near-certain question.
func (l *Lexicon) CertainProbability(question string) (ProbabilityPattern, bool) {
	return firstMatch(l.Certain, question)
}

// FairValue implements FairValueEstimator from the fair-value pattern table.
func (l *Lexicon) FairValue(m *market.Market) (float64, bool) {
	p, ok := firstMatch(l.FairValues, m.Question)
	return p.Probability, ok
}

func firstMatch(set []ProbabilityPattern, question string) (ProbabilityPattern, bool) {
	q := strings.ToLower(question)
	for _, p := range set {
		if p.re != nil && p.re.MatchString(q) {
			return p, true
		}
	}
	return ProbabilityPattern{}, false
}

// HasNegativeWord reports whether text contains a word starting with any negative stem.
func (l *Lexicon) HasNegativeWord(text string) bool {
	for _, w := range words(text) {
		for _, stem := range l.NegativeWords {
			if strings.HasPrefix(w, stem) {
				return true
			}
		}
	}
	return false
}

// OutcomeFromText infers the resolved side from confirm/deny words. Mixed or absent signals return false.
func (l *Lexicon) OutcomeFromText(text string) (market.Side, bool) {
	set := make(map[string]struct{})
	for _, w := range words(text) {
		set[w] = struct{}{}
	}
	has := func(list []string) bool {
		for _, w := range list {
			if _, ok := set[w]; ok {
				return true
			}
		}
		return false
	}

	confirm, deny := has(l.ConfirmWords), has(l.DenyWords)
	switch {
	case confirm && !deny:
		return market.SideYes, true
	case deny && !confirm:
		return market.SideNo, true
	default:
		return "", false
	}
}
