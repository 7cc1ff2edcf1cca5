package regime

import "math"

const (
	DefaultEntropyLookback = 30
	DefaultEntropyBins     = 10
)

// Entropy bins the trailing lookback returns into equal-width buckets over
// their [min,max] range and returns the Shannon entropy of the occupancy,
// normalized by log2(bins) onto 0-100. A window with no spread is a single
// bucket and scores 0.
func Entropy(returns []float64, lookback, bins int) float64 {
	if bins < 2 {
		bins = DefaultEntropyBins
	}
	window := tail(returns, lookback)
	if len(window) < 2 {
		return 0
	}

	lo, hi := window[0], window[0]
	for _, r := range window {
		lo = math.Min(lo, r)
		hi = math.Max(hi, r)
	}
	width := hi - lo
	if width <= 0 {
		return 0
	}

	counts := make([]int, bins)
	for _, r := range window {
		idx := int((r - lo) / width * float64(bins))
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}

	total := float64(len(window))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		h -= p * math.Log2(p)
	}
	return clamp(h/math.Log2(float64(bins))*100, 0, 100)
}
