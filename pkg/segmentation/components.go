package segmentation

import (
	"sort"

	"eggsplit/internal/models"
)

// LabelComponents assigns a label 1..n to every connected component of mask using full
// 26-neighbour adjacency. Background voxels get 0. Labels follow raster scan order, which
// is an implementation detail and must not be read as spatial identity.
func LabelComponents(mask *models.Mask) (labels []int, n int) {
	labels = make([]int, len(mask.Data))
	queue := make([]int, 0, 1024)
	plane := mask.Width * mask.Height

	for seed, on := range mask.Data {
		if !on || labels[seed] != 0 {
			continue
		}
		n++
		labels[seed] = n
		queue = append(queue[:0], seed)

		// breadth-first flood fill
		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]
			z, rem := idx/plane, idx%plane
			y, x := rem/mask.Width, rem%mask.Width

			for dz := -1; dz <= 1; dz++ {
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dz == 0 && dy == 0 && dx == 0 {
							continue
						}
						nz, ny, nx := z+dz, y+dy, x+dx
						if !inBounds(mask, nz, ny, nx) {
							continue
						}
						nIdx := mask.Index(nz, ny, nx)
						if mask.Data[nIdx] && labels[nIdx] == 0 {
							labels[nIdx] = n
							queue = append(queue, nIdx)
						}
					}
				}
			}
		}
	}
	return labels, n
}

// ComponentSizes returns voxel counts indexed by label; index 0 counts background.
func ComponentSizes(labels []int, n int) []int {
	sizes := make([]int, n+1)
	for _, label := range labels {
		sizes[label]++
	}
	return sizes
}

// RankComponents orders labels 1..len(sizes)-1 by size, largest first. Equal sizes keep
// ascending label order.
func RankComponents(sizes []int) []int {
	ranked := make([]int, 0, len(sizes))
	for label := 1; label < len(sizes); label++ {
		ranked = append(ranked, label)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return sizes[ranked[i]] > sizes[ranked[j]]
	})
	return ranked
}
