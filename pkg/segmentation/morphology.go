package segmentation

import (
	"eggsplit/internal/models"
)

// Offset is a (Z, Y, X) displacement in a structuring element.
type Offset [3]int

// Ball returns the offsets of a digital sphere: every integer point within radius of the
// origin, origin included.
func Ball(radius int) []Offset {
	if radius < 0 {
		radius = 0
	}
	var ball []Offset
	r2 := radius * radius
	for dz := -radius; dz <= radius; dz++ {
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				if dz*dz+dy*dy+dx*dx <= r2 {
					ball = append(ball, Offset{dz, dy, dx})
				}
			}
		}
	}
	return ball
}

// Erode keeps a voxel only when every in-bounds voxel under the element is set.
// Offsets that fall outside the volume are ignored.
func Erode(mask *models.Mask, element []Offset) *models.Mask {
	out := models.NewMaskLike(mask.Shape())
	for z := 0; z < mask.Depth; z++ {
		for y := 0; y < mask.Height; y++ {
			for x := 0; x < mask.Width; x++ {
				if !mask.At(z, y, x) {
					continue
				}
				keep := true
				for _, o := range element {
					nz, ny, nx := z+o[0], y+o[1], x+o[2]
					if !inBounds(mask, nz, ny, nx) {
						continue
					}
					if !mask.At(nz, ny, nx) {
						keep = false
						break
					}
				}
				out.Set(z, y, x, keep)
			}
		}
	}
	return out
}

// Dilate sets every in-bounds voxel covered by the element centred on a set voxel.
func Dilate(mask *models.Mask, element []Offset) *models.Mask {
	out := models.NewMaskLike(mask.Shape())
	for z := 0; z < mask.Depth; z++ {
		for y := 0; y < mask.Height; y++ {
			for x := 0; x < mask.Width; x++ {
				if !mask.At(z, y, x) {
					continue
				}
				for _, o := range element {
					nz, ny, nx := z+o[0], y+o[1], x+o[2]
					if inBounds(mask, nz, ny, nx) {
						out.Set(nz, ny, nx, true)
					}
				}
			}
		}
	}
	return out
}

// Opening is an erosion followed by a dilation with the same element. It removes objects
// smaller than the element and cuts thin bridges between larger ones.
func Opening(mask *models.Mask, element []Offset) *models.Mask {
	return Dilate(Erode(mask, element), element)
}

func inBounds(mask *models.Mask, z, y, x int) bool {
	return z >= 0 && z < mask.Depth && y >= 0 && y < mask.Height && x >= 0 && x < mask.Width
}
