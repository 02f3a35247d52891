package index

import "math"

// epsilon keeps the blend weights finite on degenerate buckets.
const epsilon = 1e-9

// BlendWeights returns the near and next term interpolation weights for the
// index maturity tIndex (all in years).
func BlendWeights(tNear, tNext, tIndex float64) (wNear, wNext float64) {
	span := tNext - tNear + epsilon
	wNear = (tNext - tIndex) / span / (tIndex + epsilon)
	wNext = (tIndex - tNear) / span / (tNext + epsilon)
	return wNear, wNext
}

// RawVariance blends the two term variances.
func RawVariance(wNear, sigma2Near, wNext, sigma2Next float64) float64 {
	return wNear*sigma2Near + wNext*sigma2Next
}

// Lambda is the EWMA decay for a half-life expressed in refresh cycles.
func Lambda(halfLife float64) float64 {
	return math.Exp(-math.Ln2 / halfLife)
}

// EWMA applies one smoothing step.
func EWMA(lambda, prevSmoothed, raw float64) float64 {
	return lambda*prevSmoothed + (1-lambda)*raw
}

// IndexFromVariance maps a smoothed variance to the index scale. Negative
// variances map to zero.
func IndexFromVariance(sigma2 float64) float64 {
	if sigma2 <= 0 || math.IsNaN(sigma2) {
		return 0
	}
	return 100 * math.Sqrt(sigma2)
}
