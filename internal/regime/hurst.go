package regime

import "math"

// DefaultHurstWindows are the R/S sub-window sizes.
var DefaultHurstWindows = []int{10, 20, 40, 80}

// Hurst estimates the Hurst exponent of a return series by rescaled-range
// analysis. For each window size the series is cut into non-overlapping
// chunks, R/S is averaged across chunks, and H is the OLS slope of
// log(R/S) against log(n), clamped to [0,1]. Fewer than two usable window
// sizes yields 0.5, the random-walk value.
func Hurst(returns []float64, windowSizes []int) float64 {
	return hurst(returns, windowSizes, false)
}

// HurstCorrected is Hurst with the Anis-Lloyd small-sample correction:
// H = 0.5 + slope of log(R/S) - log(E[R/S]) against log(n).
// Plain R/S reads about 0.58 on white noise at windows of 10 to 80 bars.
func HurstCorrected(returns []float64, windowSizes []int) float64 {
	return hurst(returns, windowSizes, true)
}

func hurst(returns []float64, windowSizes []int, corrected bool) float64 {
	if len(windowSizes) == 0 {
		windowSizes = DefaultHurstWindows
	}

	logN := make([]float64, 0, len(windowSizes))
	logRS := make([]float64, 0, len(windowSizes))
	for _, n := range windowSizes {
		if n < 2 || n > len(returns) {
			continue
		}
		var sum float64
		var count int
		for start := 0; start+n <= len(returns); start += n {
			if rs, ok := rescaledRange(returns[start : start+n]); ok {
				sum += rs
				count++
			}
		}
		if count == 0 {
			continue
		}
		avg := sum / float64(count)
		if avg <= 0 {
			continue
		}
		y := math.Log(avg)
		if corrected {
			y -= math.Log(expectedRS(n))
		}
		logN = append(logN, math.Log(float64(n)))
		logRS = append(logRS, y)
	}

	if len(logN) < 2 {
		return 0.5
	}
	if corrected {
		return clamp(0.5+olsSlope(logN, logRS), 0, 1)
	}
	return clamp(olsSlope(logN, logRS), 0, 1)
}

// expectedRS is the Anis-Lloyd expectation of R/S for n i.i.d.
// observations.
func expectedRS(n int) float64 {
	fn := float64(n)
	var sum float64
	for i := 1; i < n; i++ {
		sum += math.Sqrt((fn - float64(i)) / float64(i))
	}
	var g float64
	if n <= 340 {
		a, _ := math.Lgamma((fn - 1) / 2)
		b, _ := math.Lgamma(fn / 2)
		g = math.Exp(a-b) / math.Sqrt(math.Pi)
	} else {
		g = 1 / math.Sqrt(fn*math.Pi/2)
	}
	return g * sum
}

// rescaledRange returns R/S for one chunk; ok is false when the chunk has
// no variance.
func rescaledRange(x []float64) (float64, bool) {
	mean := meanOf(x)

	var cum, lo, hi, sq float64
	for i, v := range x {
		d := v - mean
		cum += d
		sq += d * d
		if i == 0 || cum > hi {
			hi = cum
		}
		if i == 0 || cum < lo {
			lo = cum
		}
	}
	s := math.Sqrt(sq / float64(len(x)))
	if s <= 1e-12 {
		return 0, false
	}
	return (hi - lo) / s, true
}

func olsSlope(x, y []float64) float64 {
	mx, my := meanOf(x), meanOf(y)
	var num, den float64
	for i := range x {
		num += (x[i] - mx) * (y[i] - my)
		den += (x[i] - mx) * (x[i] - mx)
	}
	if den == 0 {
		return 0.5
	}
	return num / den
}

func meanOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

func stdDev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	m := meanOf(x)
	var sq float64
	for _, v := range x {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(x)))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func tail(x []float64, n int) []float64 {
	if n <= 0 || n >= len(x) {
		return x
	}
	return x[len(x)-n:]
}
