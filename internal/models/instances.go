package models

import (
	"sort"
)

// TransientLabel identifies an instance between extraction and ID assignment.
// Its value carries no spatial meaning and differs between runs.
type TransientLabel int

// StableID identifies an egg by its physical grid position, 1..N in row-major order.
type StableID int

// InstanceSet maps transient labels to single-component masks.
type InstanceSet map[TransientLabel]*Mask

// Labels returns the keys in ascending order.
func (s InstanceSet) Labels() []TransientLabel {
	labels := make([]TransientLabel, 0, len(s))
	for label := range s {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// LabeledResult maps stable IDs to instance masks.
type LabeledResult map[StableID]*Mask

// IDs returns the keys in ascending order.
func (r LabeledResult) IDs() []StableID {
	return sortedIDs(r)
}

// Centroid is the mean (Z, Y, X) coordinate of a mask's true voxels.
type Centroid struct {
	Z, Y, X float64
}

// BoundingBox is a half-open voxel range [Min, Max) per axis, ordered (Z, Y, X).
type BoundingBox struct {
	Min [3]int
	Max [3]int
}

// Size returns the extent of the box along each axis.
func (b BoundingBox) Size() [3]int {
	return [3]int{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

// Egg is one cropped object together with the bookkeeping needed to export it.
type Egg struct {
	ID StableID

	// Volume holds original scan intensities inside Box
	Volume *Volume

	Centroid   Centroid
	Box        BoundingBox
	VoxelCount int
}

// CroppedResult maps stable IDs to cropped eggs. It is the output of a pipeline run.
type CroppedResult map[StableID]*Egg

// IDs returns the keys in ascending order.
func (r CroppedResult) IDs() []StableID {
	return sortedIDs(r)
}

func sortedIDs[V any](m map[StableID]V) []StableID {
	ids := make([]StableID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
