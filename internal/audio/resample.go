package audio

import "math"

// Resample converts samples between rates using linear interpolation.
// Upsampling by an integer factor N produces N-1 interpolated samples between
// every source pair; downsampling takes uniformly spaced positions.
func Resample(samples []int16, fromHz, toHz int) []int16 {
	if len(samples) == 0 || fromHz <= 0 || toHz <= 0 {
		return []int16{}
	}
	if fromHz == toHz {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	outLen := int(int64(len(samples)) * int64(toHz) / int64(fromHz))
	if outLen == 0 {
		outLen = 1
	}
	step := float64(fromHz) / float64(toHz)
	last := len(samples) - 1

	out := make([]int16, outLen)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = clampInt16(math.Round(a + (b-a)*frac))
	}
	return out
}

func clampInt16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
