package regime

const DefaultFractalLookback = 30

// FractalProxy counts direction flips in the first difference of the
// trailing closes. The flip ratio maps onto a 1..2 dimension-like scale,
// reported here as 0-100 (0 = straight line, 100 = flips every bar).
func FractalProxy(closes []float64, lookback int) float64 {
	window := tail(closes, lookback)
	if len(window) < 3 {
		return 0
	}

	var flips int
	prev := sign(window[1] - window[0])
	for i := 2; i < len(window); i++ {
		cur := sign(window[i] - window[i-1])
		if cur != 0 && prev != 0 && cur != prev {
			flips++
		}
		if cur != 0 {
			prev = cur
		}
	}

	maxFlips := len(window) - 2
	dimension := 1 + float64(flips)/float64(maxFlips)
	return clamp((dimension-1)*100, 0, 100)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
