package visualization

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eggsplit/internal/models"
)

// layeredVolume gives each depth plane its own value z.
func layeredVolume(depth, height, width int) *models.Volume {
	vol := models.NewVolume(depth, height, width)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.Set(z, y, x, float64(z))
			}
		}
	}
	return vol
}

// TestExtractSlice verifies that planes are extracted with the right extents and grey levels
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 8, 5
	viewer := NewViewer(layeredVolume(depth, height, width))

	for z := 0; z < depth; z++ {
		img, err := viewer.ExtractSlice("z", z)
		require.NoError(t, err, "z slice %d", z)
		assert.Equal(t, width, img.Bounds().Dx())
		assert.Equal(t, height, img.Bounds().Dy())

		want := uint16(float64(z) / float64(depth-1) * 65535)
		assert.InDelta(t, want, img.Gray16At(width/2, height/2).Y, 1)
	}

	imgX, err := viewer.ExtractSlice("x", width/2)
	require.NoError(t, err)
	assert.Equal(t, depth, imgX.Bounds().Dx())
	assert.Equal(t, height, imgX.Bounds().Dy())
	assert.Equal(t, uint16(65535), imgX.Gray16At(depth-1, 0).Y)

	imgY, err := viewer.ExtractSlice("y", height/2)
	require.NoError(t, err)
	assert.Equal(t, width, imgY.Bounds().Dx())
	assert.Equal(t, depth, imgY.Bounds().Dy())

	_, err = viewer.ExtractSlice("invalid", 0)
	assert.True(t, models.IsKind(err, models.KindValidation), "got %v", err)

	_, err = viewer.ExtractSlice("z", depth+1)
	assert.True(t, models.IsKind(err, models.KindRange), "got %v", err)
	_, err = viewer.ExtractSlice("y", -1)
	assert.True(t, models.IsKind(err, models.KindRange), "got %v", err)
}

func TestExtractSliceConstantVolumeIsBlack(t *testing.T) {
	vol := models.NewVolume(3, 3, 3)
	for i := range vol.Data {
		vol.Data[i] = 7
	}
	img, err := NewViewer(vol).ExtractSlice("z", 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), img.Gray16At(1, 1).Y)
}

func TestMontage(t *testing.T) {
	viewer := NewViewer(layeredVolume(20, 30, 40))
	montage, err := viewer.Montage()
	require.NoError(t, err)
	assert.Equal(t, PreviewHeight, montage.Bounds().Dy())
	assert.Greater(t, montage.Bounds().Dx(), 3*PreviewHeight/2)
}

func TestSavePreview(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "previews", "egg_1_preview.png")
	require.NoError(t, NewViewer(layeredVolume(6, 8, 10)).SavePreview(filename))

	img, err := imaging.Open(filename)
	require.NoError(t, err)
	assert.Equal(t, PreviewHeight, img.Bounds().Dy())
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	depth := 3
	viewer := NewViewer(layeredVolume(depth, 5, 5))
	outputDir := filepath.Join(t.TempDir(), "slices")
	require.NoError(t, viewer.SaveSliceSequence("z", outputDir))

	for z := 0; z < depth; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_z_%03d.jpg", z))
		_, err := os.Stat(filename)
		assert.NoError(t, err, "expected slice file %s", filename)
	}

	assert.Error(t, viewer.SaveSliceSequence("invalid", outputDir))
}

func TestSaveMaskSequence(t *testing.T) {
	mask := models.NewMask(2, 4, 4)
	mask.SetBox(0, 2, 1, 3, 1, 3)
	outputDir := t.TempDir()
	require.NoError(t, SaveMaskSequence(mask, outputDir))

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
