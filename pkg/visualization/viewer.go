// Package visualization renders planes of a volume as images for quick visual checks of a run.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"eggsplit/internal/models"
)

// PreviewHeight is the height in pixels of every panel of a preview montage.
const PreviewHeight = 128

// Viewer extracts planes from a volume. Intensities are mapped to grey levels
// using the volume's own minimum and maximum, so raw scanner units and normalized data render
// the same way.
type Viewer struct {
	// volume is the data being viewed
	volume *models.Volume

	// lo and hi are the intensity window
	lo, hi float64
}

// NewViewer creates a viewer for volume
func NewViewer(volume *models.Volume) *Viewer {
	lo, hi := volume.MinMax()
	return &Viewer{volume: volume, lo: lo, hi: hi}
}

// gray maps an intensity to a 16-bit grey level inside the viewer's window.
func (v *Viewer) gray(value float64) color.Gray16 {
	if v.hi <= v.lo {
		return color.Gray16{}
	}
	t := (value - v.lo) / (v.hi - v.lo)
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, t*65535)))}
}

// ExtractSlice extracts a 2D plane from the volume. Axis "z" gives the (Y, X) plane at depth
// position, "y" gives the (Z, X) plane and "x" gives the (Y, Z) plane.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	if position < 0 {
		return nil, models.Errorf(models.KindRange, "extract slice", "position must be non-negative")
	}
	vol := v.volume

	var img *image.Gray16
	switch axis {
	case "x", "X":
		if position >= vol.Width {
			return nil, models.Errorf(models.KindRange, "extract slice", "position %d exceeds width %d", position, vol.Width)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetGray16(z, y, v.gray(vol.At(z, y, position)))
			}
		}

	case "y", "Y":
		if position >= vol.Height {
			return nil, models.Errorf(models.KindRange, "extract slice", "position %d exceeds height %d", position, vol.Height)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, z, v.gray(vol.At(z, position, x)))
			}
		}

	case "z", "Z":
		if position >= vol.Depth {
			return nil, models.Errorf(models.KindRange, "extract slice", "position %d exceeds depth %d", position, vol.Depth)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, y, v.gray(vol.At(position, y, x)))
			}
		}

	default:
		return nil, models.Errorf(models.KindValidation, "extract slice", "invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// Midplanes returns the central plane along each axis in z, y, x order.
func (v *Viewer) Midplanes() ([]*image.Gray16, error) {
	vol := v.volume
	planes := make([]*image.Gray16, 0, 3)
	for _, p := range []struct {
		axis string
		pos  int
	}{{"z", vol.Depth / 2}, {"y", vol.Height / 2}, {"x", vol.Width / 2}} {
		img, err := v.ExtractSlice(p.axis, p.pos)
		if err != nil {
			return nil, err
		}
		planes = append(planes, img)
	}
	return planes, nil
}

// Montage places the three mid-planes side by side, each scaled to PreviewHeight.
func (v *Viewer) Montage() (image.Image, error) {
	planes, err := v.Midplanes()
	if err != nil {
		return nil, err
	}

	const gap = 4
	panels := make([]*image.NRGBA, len(planes))
	width := gap * (len(planes) - 1)
	for i, plane := range planes {
		panels[i] = imaging.Resize(plane, 0, PreviewHeight, imaging.Lanczos)
		width += panels[i].Bounds().Dx()
	}

	montage := imaging.New(width, PreviewHeight, color.Black)
	x := 0
	for _, panel := range panels {
		montage = imaging.Paste(montage, panel, image.Pt(x, 0))
		x += panel.Bounds().Dx() + gap
	}
	return montage, nil
}

// SavePreview writes the mid-plane montage to filename. The format follows the extension.
func (v *Viewer) SavePreview(filename string) error {
	montage, err := v.Montage()
	if err != nil {
		return err
	}
	return v.SaveSlice(montage, filename)
}

// SaveSlice saves an image, creating the parent directory. The format follows the extension.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return models.WrapError(models.KindIO, "save slice", errors.Wrap(err, "creating image directory"))
	}
	if err := imaging.Save(img, filename, imaging.JPEGQuality(90)); err != nil {
		return models.WrapError(models.KindIO, "save slice", errors.Wrapf(err, "saving %s", filename))
	}
	return nil
}

// SaveSliceSequence extracts and saves every plane along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.volume.Width
	case "y", "Y":
		maxPos = v.volume.Height
	case "z", "Z":
		maxPos = v.volume.Depth
	default:
		return models.Errorf(models.KindValidation, "save slice sequence", "invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// SaveMaskSequence writes every depth plane of mask as a black and white image.
func SaveMaskSequence(mask *models.Mask, outputDir string) error {
	return NewViewer(mask.AsVolume()).SaveSliceSequence("z", outputDir)
}
