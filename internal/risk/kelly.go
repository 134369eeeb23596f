package risk

// KellyFraction returns the fraction of capital to stake: f = (p×b − q) / b, with p the win
// probability, q = 1 − p and b = profit/100 the payoff per unit staked. The result is clamped to
// [0, maxFraction]; zero means no edge.
func KellyFraction(confidence int, expectedProfit, maxFraction float64) float64 {
	b := expectedProfit / 100
	if b <= 0 {
		return 0
	}
	p := float64(confidence) / 100
	q := 1 - p

	f := (p*b - q) / b
	if f <= 0 {
		return 0
	}
	if f > maxFraction {
		return maxFraction
	}
	return f
}
