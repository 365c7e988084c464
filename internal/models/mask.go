package models

// Mask is a dense 3D boolean array with the same layout as Volume.
type Mask struct {
	Data []bool

	Width  int
	Height int
	Depth  int
}

// NewMask allocates an all-false mask of the given shape.
func NewMask(depth, height, width int) *Mask {
	return &Mask{
		Data:   make([]bool, depth*height*width),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// NewMaskLike allocates an all-false mask shaped like s.
func NewMaskLike(s Shape) *Mask {
	return NewMask(s.Depth, s.Height, s.Width)
}

// Shape returns the (Z, Y, X) extents.
func (m *Mask) Shape() Shape {
	return Shape{Depth: m.Depth, Height: m.Height, Width: m.Width}
}

// Index returns the flat index of voxel (z, y, x).
func (m *Mask) Index(z, y, x int) int {
	return z*m.Width*m.Height + y*m.Width + x
}

// At reports membership of voxel (z, y, x).
func (m *Mask) At(z, y, x int) bool {
	return m.Data[m.Index(z, y, x)]
}

// Set marks voxel (z, y, x).
func (m *Mask) Set(z, y, x int, value bool) {
	m.Data[m.Index(z, y, x)] = value
}

// SetBox marks every voxel in [z0,z1) x [y0,y1) x [x0,x1).
func (m *Mask) SetBox(z0, z1, y0, y1, x0, x1 int) {
	for z := z0; z < z1; z++ {
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				m.Set(z, y, x, true)
			}
		}
	}
}

// Count returns the number of true voxels.
func (m *Mask) Count() int {
	n := 0
	for _, on := range m.Data {
		if on {
			n++
		}
	}
	return n
}

// Empty reports whether no voxel is set.
func (m *Mask) Empty() bool {
	for _, on := range m.Data {
		if on {
			return false
		}
	}
	return true
}

// Equal reports whether two masks have the same shape and membership.
func (m *Mask) Equal(other *Mask) bool {
	if m.Shape() != other.Shape() {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// AsVolume returns a volume holding 1 where the mask is set and 0 elsewhere.
func (m *Mask) AsVolume() *Volume {
	vol := NewVolume(m.Depth, m.Height, m.Width)
	for i, on := range m.Data {
		if on {
			vol.Data[i] = 1
		}
	}
	return vol
}
