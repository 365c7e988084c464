// Package pipeline runs the full tray segmentation: preprocessing, foreground segmentation,
// instance extraction, stable labeling and cropping from the original scan.
package pipeline

import (
	"math"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"eggsplit/internal/models"
	"eggsplit/pkg/labeling"
	"eggsplit/pkg/logging"
	"eggsplit/pkg/segmentation"
	"eggsplit/pkg/visualization"
)

// minIntensityRange is the smallest max-min spread accepted as input.
const minIntensityRange = 1e-6

// Params holds the pipeline parameters.
type Params struct {
	// Sigma is the standard deviation, in voxels, of the Gaussian smoothing.
	// Zero disables smoothing.
	Sigma float64

	// ExpectedEggCount is how many eggs the tray holds. The largest components up to this
	// count are kept; finding fewer is reported as a warning.
	ExpectedEggCount int

	// RowTolerance is the largest Y deviation, in voxels, between an egg and the running mean
	// of its row. It has to be tuned to the tray geometry.
	RowTolerance float64

	// Padding is the margin in voxels added around each egg when cropping.
	Padding int

	// SaveIntermediaryResults determines whether to save images of the intermediate stages.
	SaveIntermediaryResults bool

	// IntermediaryDir is the directory where intermediary results will be saved.
	// Only used when SaveIntermediaryResults is true.
	IntermediaryDir string
}

// DefaultParams returns the parameters used when nothing is configured. RowTolerance in
// particular is only a starting point.
func DefaultParams() *Params {
	return &Params{
		Sigma:            1.0,
		ExpectedEggCount: 12,
		RowTolerance:     50,
		Padding:          5,
	}
}

// Pipeline wires the stages together. A Pipeline holds no per-run state, so one value can
// process several scans concurrently.
type Pipeline struct {
	params    *Params
	logger    *zap.SugaredLogger
	segmenter *segmentation.Segmenter
	labeler   *labeling.Labeler
}

// NewPipeline creates a pipeline. Each stage logs through its own child of logger; a nil
// logger discards output.
func NewPipeline(params *Params, logger *zap.SugaredLogger) *Pipeline {
	if params == nil {
		params = DefaultParams()
	}
	logger = logging.OrNop(logger)
	return &Pipeline{
		params:    params,
		logger:    logger.Named("pipeline"),
		segmenter: segmentation.NewSegmenter(logger.Named("segmentation")),
		labeler:   labeling.NewLabeler(logger.Named("labeling")),
	}
}

// Params returns the parameters the pipeline was built with.
func (p *Pipeline) Params() Params {
	return *p.params
}

// ValidateInput rejects volumes the stages cannot work on: nil or degenerate shapes, data
// that does not match the shape, non-finite voxels and constant volumes.
func ValidateInput(volume *models.Volume) error {
	const op = "validate input"
	if volume == nil {
		return models.Errorf(models.KindValidation, op, "volume is nil")
	}
	shape := volume.Shape()
	if !shape.Valid() {
		return models.Errorf(models.KindValidation, op, "volume must be 3D with positive extents, got %dx%dx%d",
			shape.Depth, shape.Height, shape.Width)
	}
	if len(volume.Data) != shape.Len() {
		return models.Errorf(models.KindValidation, op, "volume has %d voxels but shape %dx%dx%d needs %d",
			len(volume.Data), shape.Depth, shape.Height, shape.Width, shape.Len())
	}
	for i, value := range volume.Data {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return models.Errorf(models.KindValidation, op, "volume contains a non-finite value at index %d", i)
		}
	}
	lo, hi := volume.MinMax()
	if hi-lo < minIntensityRange {
		return models.Errorf(models.KindValidation, op, "volume has no intensity variation (range %g)", hi-lo)
	}
	return nil
}

// Run segments volume and returns one cropped egg per stable ID. The input volume is never
// modified. Detecting fewer eggs than expected is not an error: the partial result is returned
// and a warning is logged.
func (p *Pipeline) Run(volume *models.Volume) (models.CroppedResult, error) {
	start := time.Now()
	if err := ValidateInput(volume); err != nil {
		p.logger.Errorf("Input validation failed: %v", err)
		return nil, err
	}
	p.logger.Infof("Starting pipeline on volume %dx%dx%d", volume.Depth, volume.Height, volume.Width)

	// Step 1: Normalize and smooth
	p.logger.Info("Step 1: Preprocessing volume")
	processed, err := p.segmenter.Preprocess(volume, p.params.Sigma)
	if err != nil {
		return nil, err
	}
	p.snapshot("01_processed.png", processed)

	// Step 2: Foreground mask
	p.logger.Info("Step 2: Segmenting foreground")
	mask, err := p.segmenter.SegmentForeground(processed)
	if err != nil {
		return nil, err
	}
	p.snapshot("02_foreground.png", mask.AsVolume())
	p.snapshotMask("02_foreground", mask)

	// Step 3: Largest components
	p.logger.Info("Step 3: Extracting instances")
	instances, err := p.segmenter.ExtractInstances(mask, p.params.ExpectedEggCount)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		p.logger.Errorf("Pipeline failed: no egg instances detected")
		return nil, models.Errorf(models.KindRuntime, "run", "no egg instances detected")
	}
	if len(instances) != p.params.ExpectedEggCount {
		p.logger.Warnf("Count mismatch: detected %d, expected %d", len(instances), p.params.ExpectedEggCount)
	}

	// Step 4: Stable IDs
	p.logger.Info("Step 4: Assigning stable IDs")
	labeled, err := p.labeler.AssignIDs(instances, p.params.RowTolerance)
	if err != nil {
		return nil, err
	}
	p.snapshot("03_labels.png", labelVolume(labeled))

	// Step 5: Crop each egg from the original scan
	p.logger.Info("Step 5: Cropping eggs from the original volume")
	result := make(models.CroppedResult, len(labeled))
	centroids := make([]models.Centroid, 0, len(labeled))
	for _, id := range labeled.IDs() {
		egg, err := p.crop(volume, id, labeled[id])
		if err != nil {
			return nil, err
		}
		result[id] = egg
		centroids = append(centroids, egg.Centroid)
	}

	if spacing := labeling.MedianSpacing(centroids); spacing > 0 {
		p.logger.Debugf("Median in-plane egg spacing %.1f voxels (row_tolerance %g)", spacing, p.params.RowTolerance)
	}
	p.logger.Infof("Pipeline finished: %d eggs in %s", len(result), time.Since(start).Round(time.Millisecond))
	return result, nil
}

func (p *Pipeline) crop(volume *models.Volume, id models.StableID, mask *models.Mask) (*models.Egg, error) {
	cropped, box, err := p.labeler.CropVolume(volume, mask, p.params.Padding)
	if err != nil {
		return nil, err
	}
	centroid, err := labeling.ComputeCentroid(mask)
	if err != nil {
		return nil, err
	}
	return &models.Egg{
		ID:         id,
		Volume:     cropped,
		Centroid:   centroid,
		Box:        box,
		VoxelCount: mask.Count(),
	}, nil
}

// snapshot saves the mid-plane montage of a stage result when intermediary results are on.
// Failing to save only costs the snapshot.
func (p *Pipeline) snapshot(name string, volume *models.Volume) {
	if !p.params.SaveIntermediaryResults {
		return
	}
	path := filepath.Join(p.params.IntermediaryDir, name)
	if err := visualization.NewViewer(volume).SavePreview(path); err != nil {
		p.logger.Warnf("Failed to save intermediary result %s: %v", path, err)
		return
	}
	p.logger.Debugf("Saved intermediary result %s", path)
}

// snapshotMask saves every depth plane of a stage mask into dir under the intermediary
// directory when intermediary results are on.
func (p *Pipeline) snapshotMask(dir string, mask *models.Mask) {
	if !p.params.SaveIntermediaryResults {
		return
	}
	path := filepath.Join(p.params.IntermediaryDir, dir)
	if err := visualization.SaveMaskSequence(mask, path); err != nil {
		p.logger.Warnf("Failed to save intermediary result %s: %v", path, err)
		return
	}
	p.logger.Debugf("Saved intermediary result %s (%d planes)", path, mask.Depth)
}

// labelVolume paints each voxel with the stable ID of the egg covering it.
func labelVolume(labeled models.LabeledResult) *models.Volume {
	var vol *models.Volume
	for _, id := range labeled.IDs() {
		mask := labeled[id]
		if vol == nil {
			vol = models.NewVolume(mask.Depth, mask.Height, mask.Width)
		}
		for i, set := range mask.Data {
			if set {
				vol.Data[i] = float64(id)
			}
		}
	}
	return vol
}
