// Package stats holds the order statistics shared by the segmentation and labeling stages.
package stats

import "sort"

// Percentile returns the p quantile (p in [0, 1]) of sorted by linear interpolation between
// the closest ranks: the value sits at fractional index (n-1)*p. sorted must be in ascending
// order and non-empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	h := float64(n-1) * p
	below := int(h)
	if below >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(below)
	return sorted[below] + frac*(sorted[below+1]-sorted[below])
}

// Percentiles sorts a copy of data and returns the quantile for each of ps. data is not
// modified. An empty data yields nil.
func Percentiles(data []float64, ps ...float64) []float64 {
	if len(data) == 0 {
		return nil
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = Percentile(sorted, p)
	}
	return out
}

// Median is the 0.5 percentile of data, or 0 for empty data.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return Percentiles(data, 0.5)[0]
}
