package segmentation

import (
	"math"

	"eggsplit/internal/models"
	"eggsplit/internal/stats"
)

// gaussianTruncate is the kernel half-width in units of sigma.
const gaussianTruncate = 4.0

// RobustRange returns the lowP and highP quantiles of data (fractions in [0, 1]), linearly
// interpolated between closest ranks. data must not be empty.
func RobustRange(data []float64, lowP, highP float64) (lo, hi float64) {
	q := stats.Percentiles(data, lowP, highP)
	return q[0], q[1]
}

// Normalize linearly maps [lo, hi] onto [0, 1] and clips everything outside.
// The caller guarantees hi > lo.
func Normalize(volume *models.Volume, lo, hi float64) *models.Volume {
	out := volume.Clone()
	scale := hi - lo
	for i, value := range out.Data {
		out.Data[i] = math.Min(1, math.Max(0, (value-lo)/scale))
	}
	return out
}

// GaussianSmooth blurs the volume with a separable isotropic Gaussian. Borders are handled by
// mirroring, so a volume inside [0, 1] stays inside [0, 1]. sigma <= 0 returns a copy.
func GaussianSmooth(volume *models.Volume, sigma float64) *models.Volume {
	out := volume.Clone()
	if sigma <= 0 {
		return out
	}

	kernel := gaussianKernel(sigma)
	scratch := make([]float64, len(out.Data))
	shape := volume.Shape()
	for axis := 0; axis < 3; axis++ {
		convolveAxis(out.Data, scratch, shape, axis, kernel)
		out.Data, scratch = scratch, out.Data
	}
	return out
}

// gaussianKernel returns normalized weights for offsets -r..r.
func gaussianKernel(sigma float64) []float64 {
	radius := int(gaussianTruncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
		kernel[i+radius] = w
		sum += w
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// convolveAxis filters src along one axis into dst.
func convolveAxis(src, dst []float64, shape models.Shape, axis int, kernel []float64) {
	radius := len(kernel) / 2
	n := shape.Dim(axis)
	var stride int
	switch axis {
	case 0:
		stride = shape.Width * shape.Height
	case 1:
		stride = shape.Width
	default:
		stride = 1
	}

	line := make([]float64, n)
	for start := 0; start < len(src); start++ {
		// visit each line once, from its first voxel
		if (start/stride)%n != 0 {
			continue
		}
		for i := 0; i < n; i++ {
			line[i] = src[start+i*stride]
		}
		for i := 0; i < n; i++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				acc += kernel[k+radius] * line[reflect(i+k, n)]
			}
			dst[start+i*stride] = acc
		}
	}
}

// reflect maps an out-of-range index back into [0, n) as d c b a | a b c d | d c b a.
func reflect(i, n int) int {
	if i >= 0 && i < n {
		return i
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
