package labeling

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"

	"eggsplit/internal/models"
	"eggsplit/internal/stats"
)

// NeighborSpacing returns, for each centroid, the in-plane (Y, X) distance to its nearest
// other centroid. With a regular tray the values cluster around the egg pitch, which is the
// scale row_tolerance should be chosen against. Fewer than two centroids yield nil.
func NeighborSpacing(centroids []models.Centroid) []float64 {
	if len(centroids) < 2 {
		return nil
	}
	points := make(kdtree.Points, len(centroids))
	for i, c := range centroids {
		points[i] = kdtree.Point{c.Y, c.X}
	}
	tree := kdtree.New(points, false)

	spacing := make([]float64, len(centroids))
	for i, c := range centroids {
		// the closest hit is the query point itself
		keeper := kdtree.NewNKeeper(2)
		tree.NearestSet(keeper, kdtree.Point{c.Y, c.X})
		if keeper.Len() < 2 {
			continue
		}
		spacing[i] = math.Sqrt(keeper.Heap[1].Dist)
	}
	return spacing
}

// MedianSpacing returns the median of NeighborSpacing, or 0 for fewer than two centroids.
func MedianSpacing(centroids []models.Centroid) float64 {
	return stats.Median(NeighborSpacing(centroids))
}
