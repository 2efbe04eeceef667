// Package quantile computes sample quantiles with linear interpolation
// between order statistics (Hyndman and Fan type 7), the convention used by
// the threshold tables the classifier was calibrated against.
package quantile

import (
	"math"
	"sort"
)

// Sorted returns the p-quantile of an ascending slice. It returns NaN for an
// empty slice or p outside [0, 1].
func Sorted(x []float64, p float64) float64 {
	n := len(x)
	if n == 0 || p < 0 || p > 1 || math.IsNaN(p) {
		return math.NaN()
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return x[n-1]
	}
	return x[lo] + (h-float64(lo))*(x[lo+1]-x[lo])
}

// Of returns the p-quantile of x without modifying it.
func Of(x []float64, p float64) float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	return Sorted(s, p)
}

// MedianInPlace returns the median of x, reordering x.
func MedianInPlace(x []float64) float64 {
	sort.Float64s(x)
	return Sorted(x, 0.5)
}
