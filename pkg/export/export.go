// Package export writes the eggs of a run to disk: one NIfTI file per stable ID, optional
// preview images and an optional manifest describing the run.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"eggsplit/internal/models"
	"eggsplit/pkg/logging"
	"eggsplit/pkg/nifti"
	"eggsplit/pkg/pipeline"
	"eggsplit/pkg/visualization"
)

// ManifestName is the file name of the run manifest.
const ManifestName = "manifest.yaml"

// Options selects what is written besides the egg volumes.
type Options struct {
	// Compress writes .nii.gz instead of .nii
	Compress bool

	// Previews writes egg_<id>_preview.png next to each volume
	Previews bool

	// Slices writes every depth plane of each egg into egg_<id>_slices/
	Slices bool

	// Manifest writes manifest.yaml
	Manifest bool
}

// RunInfo describes the run being exported, for the manifest.
type RunInfo struct {
	InputPath string
	Params    pipeline.Params
}

// Manifest is the content of manifest.yaml.
type Manifest struct {
	Input        string         `yaml:"input"`
	ExpectedEggs int            `yaml:"expected_eggs"`
	DetectedEggs int            `yaml:"detected_eggs"`
	Parameters   ManifestParams `yaml:"parameters"`
	Eggs         []EggEntry     `yaml:"eggs"`
}

// ManifestParams records the algorithm parameters of the run.
type ManifestParams struct {
	Sigma        float64 `yaml:"sigma"`
	RowTolerance float64 `yaml:"row_tolerance"`
	Padding      int     `yaml:"padding"`
}

// EggEntry describes one exported egg. Coordinates are (Z, Y, X) in voxels of the input scan.
type EggEntry struct {
	ID         int        `yaml:"id"`
	File       string     `yaml:"file"`
	Preview    string     `yaml:"preview,omitempty"`
	Slices     string     `yaml:"slices,omitempty"`
	Centroid   [3]float64 `yaml:"centroid,flow"`
	Origin     [3]int     `yaml:"origin,flow"`
	Shape      [3]int     `yaml:"shape,flow"`
	VoxelCount int        `yaml:"voxel_count"`
	Bytes      int64      `yaml:"bytes"`
	Size       string     `yaml:"size"`
}

// FileName returns the volume file name of egg id.
func FileName(id models.StableID, compress bool) string {
	if compress {
		return fmt.Sprintf("egg_%d.nii.gz", id)
	}
	return fmt.Sprintf("egg_%d.nii", id)
}

// PreviewName returns the preview file name of egg id.
func PreviewName(id models.StableID) string {
	return fmt.Sprintf("egg_%d_preview.png", id)
}

// SliceDirName returns the directory name holding the depth planes of egg id.
func SliceDirName(id models.StableID) string {
	return fmt.Sprintf("egg_%d_slices", id)
}

// Writer exports results into an output directory. Files are first written to a staging
// directory inside it and moved into place only when every write succeeded.
type Writer struct {
	outputDir     string
	referencePath string
	opts          Options
	logger        *zap.SugaredLogger
}

// NewWriter creates a Writer. referencePath is the scan whose header metadata every egg
// file inherits.
func NewWriter(outputDir, referencePath string, opts Options, logger *zap.SugaredLogger) *Writer {
	return &Writer{
		outputDir:     outputDir,
		referencePath: referencePath,
		opts:          opts,
		logger:        logging.OrNop(logger),
	}
}

// Write exports result and returns the paths of the files it created, in ID order with the
// manifest last. On error nothing is left in the output directory.
func (w *Writer) Write(ctx context.Context, result models.CroppedResult, info RunInfo) (paths []string, err error) {
	const op = "export"
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return nil, models.WrapError(models.KindIO, op, errors.Wrapf(err, "creating output directory %s", w.outputDir))
	}
	staging, err := os.MkdirTemp(w.outputDir, ".staging-")
	if err != nil {
		return nil, models.WrapError(models.KindIO, op, errors.Wrap(err, "creating staging directory"))
	}
	defer func() {
		err = multierr.Append(err, os.RemoveAll(staging))
	}()

	manifest := Manifest{
		Input:        info.InputPath,
		ExpectedEggs: info.Params.ExpectedEggCount,
		DetectedEggs: len(result),
		Parameters: ManifestParams{
			Sigma:        info.Params.Sigma,
			RowTolerance: info.Params.RowTolerance,
			Padding:      info.Params.Padding,
		},
	}

	var names []string
	var total int64
	for _, id := range result.IDs() {
		if err := ctx.Err(); err != nil {
			return nil, models.WrapError(models.KindRuntime, op, err)
		}
		entry, written, err := w.writeEgg(staging, result[id])
		if err != nil {
			return nil, err
		}
		names = append(names, written...)
		total += entry.Bytes
		manifest.Eggs = append(manifest.Eggs, entry)
	}

	if w.opts.Manifest {
		data, err := yaml.Marshal(&manifest)
		if err != nil {
			return nil, models.WrapError(models.KindRuntime, op, errors.Wrap(err, "encoding manifest"))
		}
		if err := os.WriteFile(filepath.Join(staging, ManifestName), data, 0o644); err != nil {
			return nil, models.WrapError(models.KindIO, op, errors.Wrap(err, "writing manifest"))
		}
		names = append(names, ManifestName)
	}

	// everything is staged; publish
	for _, name := range names {
		dst := filepath.Join(w.outputDir, name)
		if err := os.Rename(filepath.Join(staging, name), dst); err != nil {
			for _, moved := range paths {
				err = multierr.Append(err, os.RemoveAll(moved))
			}
			return nil, models.WrapError(models.KindIO, op, errors.Wrapf(err, "moving %s into place", name))
		}
		paths = append(paths, dst)
	}

	w.logger.Infof("Wrote %d eggs to %s (%s)", len(result), w.outputDir, humanize.Bytes(uint64(total)))
	return paths, nil
}

// writeEgg stages the files of one egg and returns its manifest entry and staged file names.
func (w *Writer) writeEgg(staging string, egg *models.Egg) (EggEntry, []string, error) {
	name := FileName(egg.ID, w.opts.Compress)
	path := filepath.Join(staging, name)
	if err := nifti.Save(egg.Volume, w.referencePath, path); err != nil {
		w.logger.Errorf("Failed to save egg %d: %v", egg.ID, err)
		return EggEntry{}, nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return EggEntry{}, nil, models.WrapError(models.KindIO, "export", errors.Wrapf(err, "checking %s", name))
	}
	w.logger.Debugf("Saved egg %d to %s (%s)", egg.ID, name, humanize.Bytes(uint64(info.Size())))

	entry := EggEntry{
		ID:         int(egg.ID),
		File:       name,
		Centroid:   [3]float64{egg.Centroid.Z, egg.Centroid.Y, egg.Centroid.X},
		Origin:     egg.Volume.Origin,
		Shape:      [3]int{egg.Volume.Depth, egg.Volume.Height, egg.Volume.Width},
		VoxelCount: egg.VoxelCount,
		Bytes:      info.Size(),
		Size:       humanize.Bytes(uint64(info.Size())),
	}
	written := []string{name}

	if w.opts.Previews {
		preview := PreviewName(egg.ID)
		if err := visualization.NewViewer(egg.Volume).SavePreview(filepath.Join(staging, preview)); err != nil {
			return EggEntry{}, nil, err
		}
		entry.Preview = preview
		written = append(written, preview)
	}

	if w.opts.Slices {
		sliceDir := SliceDirName(egg.ID)
		if err := visualization.NewViewer(egg.Volume).SaveSliceSequence("z", filepath.Join(staging, sliceDir)); err != nil {
			return EggEntry{}, nil, err
		}
		entry.Slices = sliceDir
		written = append(written, sliceDir)
	}
	return entry, written, nil
}

// ReadManifest loads a manifest written by Write.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.Errorf(models.KindNotFound, "read manifest", "manifest not found: %s", path)
		}
		return nil, models.WrapError(models.KindIO, "read manifest", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, models.WrapError(models.KindFormat, "read manifest", errors.Wrapf(err, "parsing %s", path))
	}
	return &m, nil
}
