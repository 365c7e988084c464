package models

import (
	"math"
)

// Volume is a dense 3D scalar scan with axes ordered (Z, Y, X).
type Volume struct {
	// Data is the 3D volume data as a 1D array in row-major order:
	// index = z*Width*Height + y*Width + x
	Data []float64

	// Width is the extent along X (the column axis) in voxels
	Width int

	// Height is the extent along Y (the row axis) in voxels
	Height int

	// Depth is the extent along Z in voxels
	Depth int

	// Origin is the (Z, Y, X) position of voxel (0,0,0) inside the volume this one
	// was cropped from. Zero for loaded scans.
	Origin [3]int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}
}

// NewVolume allocates a zero-filled volume of the given shape.
func NewVolume(depth, height, width int) *Volume {
	return &Volume{
		Data:   make([]float64, depth*height*width),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// Shape returns the (Z, Y, X) extents.
func (v *Volume) Shape() Shape {
	return Shape{Depth: v.Depth, Height: v.Height, Width: v.Width}
}

// Index returns the flat index of voxel (z, y, x).
func (v *Volume) Index(z, y, x int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the intensity at (z, y, x).
func (v *Volume) At(z, y, x int) float64 {
	return v.Data[v.Index(z, y, x)]
}

// Set stores an intensity at (z, y, x).
func (v *Volume) Set(z, y, x int, value float64) {
	v.Data[v.Index(z, y, x)] = value
}

// Clone returns a deep copy that shares nothing with v.
func (v *Volume) Clone() *Volume {
	out := *v
	out.Data = make([]float64, len(v.Data))
	copy(out.Data, v.Data)
	return &out
}

// Sum returns the sum of all intensities.
func (v *Volume) Sum() float64 {
	total := 0.0
	for _, value := range v.Data {
		total += value
	}
	return total
}

// MinMax returns the smallest and largest finite intensities.
func (v *Volume) MinMax() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, value := range v.Data {
		if value < lo {
			lo = value
		}
		if value > hi {
			hi = value
		}
	}
	return lo, hi
}

// Shape holds the extents of a volume or mask.
type Shape struct {
	Depth, Height, Width int
}

// Len is the number of voxels.
func (s Shape) Len() int {
	return s.Depth * s.Height * s.Width
}

// Dim returns the extent along axis 0 (Z), 1 (Y) or 2 (X).
func (s Shape) Dim(axis int) int {
	switch axis {
	case 0:
		return s.Depth
	case 1:
		return s.Height
	default:
		return s.Width
	}
}

// Valid reports whether every extent is positive.
func (s Shape) Valid() bool {
	return s.Depth > 0 && s.Height > 0 && s.Width > 0
}
