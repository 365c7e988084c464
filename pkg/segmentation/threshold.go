package segmentation

import (
	"gonum.org/v1/gonum/floats"

	"eggsplit/internal/models"
)

// otsuBins is the histogram resolution used by OtsuThreshold.
const otsuBins = 256

// OtsuThreshold returns the intensity that maximizes the between-class variance of data.
// The histogram spans [min, max] in otsuBins bins and the result is a bin centre.
// Constant data returns its value.
func OtsuThreshold(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	lo, hi := floats.Min(data), floats.Max(data)
	if hi == lo {
		return lo
	}

	width := (hi - lo) / otsuBins
	hist := make([]float64, otsuBins)
	for _, value := range data {
		bin := int((value - lo) / width)
		if bin >= otsuBins {
			bin = otsuBins - 1
		}
		hist[bin]++
	}
	centers := make([]float64, otsuBins)
	for i := range centers {
		centers[i] = lo + (float64(i)+0.5)*width
	}

	// weightBelow/sumBelow cover bins [0, t]; the rest forms the upper class
	total := floats.Sum(hist)
	weighted := make([]float64, otsuBins)
	floats.MulTo(weighted, hist, centers)
	sumTotal := floats.Sum(weighted)

	best, bestVariance := 0, -1.0
	weightBelow, sumBelow := 0.0, 0.0
	for t := 0; t < otsuBins-1; t++ {
		weightBelow += hist[t]
		sumBelow += weighted[t]
		weightAbove := total - weightBelow
		if weightBelow == 0 || weightAbove == 0 {
			continue
		}
		meanBelow := sumBelow / weightBelow
		meanAbove := (sumTotal - sumBelow) / weightAbove
		diff := meanBelow - meanAbove
		variance := weightBelow * weightAbove * diff * diff
		if variance > bestVariance {
			best, bestVariance = t, variance
		}
	}
	return centers[best]
}

// Threshold marks voxels strictly brighter than level.
func Threshold(volume *models.Volume, level float64) *models.Mask {
	mask := models.NewMaskLike(volume.Shape())
	for i, value := range volume.Data {
		mask.Data[i] = value > level
	}
	return mask
}
