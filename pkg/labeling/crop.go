package labeling

import (
	"math"

	"eggsplit/internal/models"
)

// ComputeCentroid returns the mean (Z, Y, X) coordinate of the mask's true voxels.
func ComputeCentroid(mask *models.Mask) (models.Centroid, error) {
	var sz, sy, sx float64
	n := 0
	if mask != nil {
		for z := 0; z < mask.Depth; z++ {
			for y := 0; y < mask.Height; y++ {
				for x := 0; x < mask.Width; x++ {
					if mask.At(z, y, x) {
						sz += float64(z)
						sy += float64(y)
						sx += float64(x)
						n++
					}
				}
			}
		}
	}
	if n == 0 {
		return models.Centroid{}, models.Errorf(models.KindData, "compute centroid", "cannot compute centroid of empty mask")
	}
	count := float64(n)
	return models.Centroid{Z: sz / count, Y: sy / count, X: sx / count}, nil
}

// BoundingBoxOf returns the box around the mask's true voxels grown by padding on every side
// and clamped to the mask extent. The low bound is floored and the high bound ceiled, so each
// side keeps at least padding voxels of margin unless the volume edge is closer. The exclusive
// high bound sits one past max+padding: a 10 voxel object with padding 2 yields 14 voxels, not
// the 13 of a plain [min-padding, max+padding) slice.
func BoundingBoxOf(mask *models.Mask, padding int) (models.BoundingBox, error) {
	if mask == nil || mask.Empty() {
		return models.BoundingBox{}, models.Errorf(models.KindData, "bounding box", "cannot crop empty mask")
	}

	lo := [3]int{mask.Depth, mask.Height, mask.Width}
	hi := [3]int{-1, -1, -1}
	for z := 0; z < mask.Depth; z++ {
		for y := 0; y < mask.Height; y++ {
			for x := 0; x < mask.Width; x++ {
				if !mask.At(z, y, x) {
					continue
				}
				for axis, c := range [3]int{z, y, x} {
					if c < lo[axis] {
						lo[axis] = c
					}
					if c > hi[axis] {
						hi[axis] = c
					}
				}
			}
		}
	}

	shape := mask.Shape()
	var box models.BoundingBox
	pad := float64(padding)
	for axis := 0; axis < 3; axis++ {
		low := int(math.Floor(float64(lo[axis]) - pad))
		// hi is inclusive; the box bound is exclusive
		high := int(math.Ceil(float64(hi[axis])+pad)) + 1
		box.Min[axis] = max(0, low)
		box.Max[axis] = min(shape.Dim(axis), high)
	}
	return box, nil
}

// Extract copies the voxels of volume inside box into a new volume. The result's Origin is
// the box's low corner relative to volume.
func Extract(volume *models.Volume, box models.BoundingBox) *models.Volume {
	size := box.Size()
	out := models.NewVolume(size[0], size[1], size[2])
	out.VoxelSize = volume.VoxelSize
	out.Origin = [3]int{
		volume.Origin[0] + box.Min[0],
		volume.Origin[1] + box.Min[1],
		volume.Origin[2] + box.Min[2],
	}
	for z := 0; z < size[0]; z++ {
		for y := 0; y < size[1]; y++ {
			src := volume.Index(box.Min[0]+z, box.Min[1]+y, box.Min[2])
			dst := out.Index(z, y, 0)
			copy(out.Data[dst:dst+size[2]], volume.Data[src:src+size[2]])
		}
	}
	return out
}

// CropVolume cuts the padded bounding box of mask out of original and returns the crop with
// the box it was cut from. original must be the unprocessed scan so the crop carries source
// intensities. Neither input is modified.
func (l *Labeler) CropVolume(original *models.Volume, mask *models.Mask, padding int) (*models.Volume, models.BoundingBox, error) {
	const op = "crop volume"
	if original == nil || mask == nil {
		return nil, models.BoundingBox{}, models.Errorf(models.KindData, op, "volume and mask are required")
	}
	if original.Shape() != mask.Shape() {
		return nil, models.BoundingBox{}, models.Errorf(models.KindValidation, op,
			"mask shape %v does not match volume shape %v", mask.Shape(), original.Shape())
	}
	if padding < 0 {
		return nil, models.BoundingBox{}, models.Errorf(models.KindValidation, op, "padding must not be negative, got %d", padding)
	}

	box, err := BoundingBoxOf(mask, padding)
	if err != nil {
		l.logger.Errorf("Crop requested on an empty mask")
		return nil, models.BoundingBox{}, err
	}

	crop := Extract(original, box)
	l.logger.Debugf("Cropped volume shape: (%d, %d, %d)", crop.Depth, crop.Height, crop.Width)
	return crop, box, nil
}
