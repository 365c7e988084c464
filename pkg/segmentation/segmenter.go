// Package segmentation turns a raw scan into per-object masks: intensity normalization and
// smoothing, a global Otsu threshold with morphological cleanup, and connected-component
// extraction of the largest objects.
package segmentation

import (
	"math"

	"go.uber.org/zap"

	"eggsplit/internal/models"
	"eggsplit/pkg/logging"
)

const (
	// DefaultOpeningRadius is the ball radius used to clean the foreground mask. It decides
	// whether touching eggs end up as one component or two.
	DefaultOpeningRadius = 2

	// rangeEpsilon is the smallest p99-p1 spread that can be normalized.
	rangeEpsilon = 1e-6

	lowPercentile  = 0.01
	highPercentile = 0.99
)

// Segmenter runs the preprocessing, foreground and instance stages. A Segmenter holds no
// per-run state and can be shared by concurrent runs.
type Segmenter struct {
	logger *zap.SugaredLogger

	// OpeningRadius is the radius of the spherical structuring element of the opening
	OpeningRadius int
}

// NewSegmenter creates a Segmenter that reports through logger. A nil logger discards output.
func NewSegmenter(logger *zap.SugaredLogger) *Segmenter {
	return &Segmenter{
		logger:        logging.OrNop(logger),
		OpeningRadius: DefaultOpeningRadius,
	}
}

// Preprocess normalizes intensities to [0, 1] using the 1st and 99th percentile as bounds and
// then applies an isotropic Gaussian blur with the given sigma. The input is not modified.
func (s *Segmenter) Preprocess(volume *models.Volume, sigma float64) (*models.Volume, error) {
	if volume == nil || len(volume.Data) == 0 {
		return nil, models.Errorf(models.KindValidation, "preprocess", "volume is empty")
	}

	lo, hi := RobustRange(volume.Data, lowPercentile, highPercentile)
	s.logger.Infof("Normalizing volume: min_perc=%g, max_perc=%g", lo, hi)

	if hi-lo < rangeEpsilon {
		s.logger.Errorf("Volume intensity range is too small for normalization")
		return nil, models.Errorf(models.KindRange, "preprocess",
			"volume intensity range %g is too small for normalization", hi-lo)
	}

	normalized := Normalize(volume, lo, hi)

	s.logger.Debugf("Applying Gaussian smoothing with sigma=%g", sigma)
	smoothed := GaussianSmooth(normalized, sigma)

	// kernel sums can land a few ulps above 1
	for i, value := range smoothed.Data {
		smoothed.Data[i] = math.Min(1, math.Max(0, value))
	}
	return smoothed, nil
}

// SegmentForeground thresholds the processed volume at its Otsu level and removes specks
// with a morphological opening.
func (s *Segmenter) SegmentForeground(processed *models.Volume) (*models.Mask, error) {
	if processed == nil || len(processed.Data) == 0 {
		return nil, models.Errorf(models.KindValidation, "segment foreground", "volume is empty")
	}

	threshold := OtsuThreshold(processed.Data)
	s.logger.Infof("Otsu threshold calculated: %g", threshold)

	mask := Threshold(processed, threshold)

	s.logger.Debugf("Performing morphological opening with ball(%d)", s.OpeningRadius)
	mask = Opening(mask, Ball(s.OpeningRadius))

	if mask.Empty() {
		s.logger.Errorf("Segmentation failed: foreground mask is empty")
		return nil, models.Errorf(models.KindSegmentation, "segment foreground", "no foreground detected")
	}

	s.logger.Infof("Foreground segmentation successful: %d voxels", mask.Count())
	return mask, nil
}

// ExtractInstances labels the connected components of mask and keeps the expectedCount
// largest. Ties in size go to the lower raw label. When fewer components exist, all are
// returned and a warning is logged. Keys of the result are 1..K in ranking order.
func (s *Segmenter) ExtractInstances(mask *models.Mask, expectedCount int) (models.InstanceSet, error) {
	if expectedCount <= 0 {
		return nil, models.Errorf(models.KindValidation, "extract instances",
			"expected count must be positive, got %d", expectedCount)
	}
	if mask == nil {
		return nil, models.Errorf(models.KindValidation, "extract instances", "mask is nil")
	}

	labels, n := LabelComponents(mask)
	s.logger.Infof("Connected component labeling found %d raw instances", n)

	if n == 0 {
		s.logger.Errorf("No connected components found in mask")
		return nil, models.Errorf(models.KindSegmentation, "extract instances", "no connected components detected")
	}

	ranked := RankComponents(ComponentSizes(labels, n))
	if len(ranked) > expectedCount {
		ranked = ranked[:expectedCount]
	}

	// slot[raw] is the 1-based rank of a kept component, 0 for discarded ones
	slot := make([]int, n+1)
	instances := make(models.InstanceSet, len(ranked))
	for i, raw := range ranked {
		slot[raw] = i + 1
		instances[models.TransientLabel(i+1)] = models.NewMaskLike(mask.Shape())
	}
	for i, raw := range labels {
		if raw == 0 || slot[raw] == 0 {
			continue
		}
		instances[models.TransientLabel(slot[raw])].Data[i] = true
	}

	if len(instances) < expectedCount {
		s.logger.Warnf("Detection mismatch: only %d eggs detected (expected %d)", len(instances), expectedCount)
	} else {
		s.logger.Infof("Successfully extracted the %d largest instances", expectedCount)
	}
	return instances, nil
}
