package labeling

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eggsplit/internal/models"
)

// boxMask returns a 50^3 mask with [z0,z1) x [y0,y1) x [x0,x1) set.
func boxMask(z0, z1, y0, y1, x0, x1 int) *models.Mask {
	mask := models.NewMask(50, 50, 50)
	mask.SetBox(z0, z1, y0, y1, x0, x1)
	return mask
}

func TestComputeCentroid(t *testing.T) {
	c, err := ComputeCentroid(boxMask(10, 15, 10, 15, 5, 10))
	require.NoError(t, err)
	assert.Equal(t, models.Centroid{Z: 12, Y: 12, X: 7}, c)

	_, err = ComputeCentroid(models.NewMask(3, 3, 3))
	assert.True(t, models.IsKind(err, models.KindData), "got %v", err)
}

func TestAssignIDsSortsWithinRow(t *testing.T) {
	left := boxMask(10, 15, 10, 15, 5, 10)
	right := boxMask(10, 15, 10, 15, 20, 25)

	instances := models.InstanceSet{1: right, 2: left}
	ordered, err := NewLabeler(nil).AssignIDs(instances, 10)
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.True(t, ordered[1].Equal(left))
	assert.True(t, ordered[2].Equal(right))
}

// gridInstances builds a rows x cols tray with a little placement jitter in Y.
func gridInstances(rows, cols int) (models.InstanceSet, [][]*models.Mask) {
	jitter := []int{0, 2, -1, 3, 1, -2}
	instances := models.InstanceSet{}
	grid := make([][]*models.Mask, rows)
	label := models.TransientLabel(1)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			y := 5 + r*14 + jitter[(r*cols+c)%len(jitter)]
			x := 3 + c*11
			mask := boxMask(20, 26, y, y+5, x, x+5)
			grid[r] = append(grid[r], mask)
			instances[label] = mask
			label++
		}
	}
	return instances, grid
}

func TestAssignIDsRowMajorGrid(t *testing.T) {
	instances, grid := gridInstances(3, 4)
	ordered, err := NewLabeler(nil).AssignIDs(instances, 7)
	require.NoError(t, err)
	require.Len(t, ordered, 12)

	id := models.StableID(1)
	for r := range grid {
		for c := range grid[r] {
			assert.True(t, ordered[id].Equal(grid[r][c]), "row %d col %d should be ID %d", r, c, id)
			id++
		}
	}
}

// TestAssignIDsIndependentOfDiscoveryOrder relabels the same instances in reverse and in
// shuffled order; the stable IDs must not move.
func TestAssignIDsIndependentOfDiscoveryOrder(t *testing.T) {
	instances, _ := gridInstances(3, 4)
	labeler := NewLabeler(nil)
	want, err := labeler.AssignIDs(instances, 7)
	require.NoError(t, err)

	masks := make([]*models.Mask, 0, len(instances))
	for _, label := range instances.Labels() {
		masks = append(masks, instances[label])
	}

	reversed := models.InstanceSet{}
	for i, mask := range masks {
		reversed[models.TransientLabel(len(masks)-i)] = mask
	}
	rng := rand.New(rand.NewSource(7))
	shuffled := models.InstanceSet{}
	for i, p := range rng.Perm(len(masks)) {
		shuffled[models.TransientLabel(100+p)] = masks[i]
	}

	for name, set := range map[string]models.InstanceSet{"reversed": reversed, "shuffled": shuffled} {
		got, err := labeler.AssignIDs(set, 7)
		require.NoError(t, err, name)
		for id, mask := range want {
			assert.True(t, got[id].Equal(mask), "%s: ID %d moved", name, id)
		}
	}
}

// TestClusterRowsUsesRunningMean places a row whose Y drifts upward. Comparing against the
// first member would split it; the running mean keeps it together.
func TestClusterRowsUsesRunningMean(t *testing.T) {
	ys := []float64{10, 13, 16, 19, 40}
	items := make([]placed, len(ys))
	for i, y := range ys {
		items[i] = placed{label: models.TransientLabel(i + 1), centroid: models.Centroid{Y: y, X: float64(i)}}
	}

	rows := clusterRows(items, 7)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 4)
	assert.Len(t, rows[1], 1)

	// the mean is updated before the next comparison: 10,13 -> 11.5; 16 joins (4.5 < 5)
	rows = clusterRows(items[:3], 5)
	require.Len(t, rows, 1)
}

func TestAssignIDsErrors(t *testing.T) {
	labeler := NewLabeler(nil)

	_, err := labeler.AssignIDs(models.InstanceSet{}, 10)
	assert.True(t, models.IsKind(err, models.KindData), "got %v", err)

	_, err = labeler.AssignIDs(models.InstanceSet{1: models.NewMask(4, 4, 4)}, 10)
	assert.True(t, models.IsKind(err, models.KindData), "got %v", err)

	_, err = labeler.AssignIDs(models.InstanceSet{1: boxMask(1, 2, 1, 2, 1, 2)}, 0)
	assert.True(t, models.IsKind(err, models.KindValidation), "got %v", err)
}

func TestCropVolumeDimensions(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	vol := models.NewVolume(50, 50, 50)
	for i := range vol.Data {
		vol.Data[i] = rng.Float64()
	}
	mask := boxMask(10, 20, 10, 20, 10, 20)

	cropped, box, err := NewLabeler(nil).CropVolume(vol, mask, 2)
	require.NoError(t, err)
	assert.Equal(t, models.BoundingBox{Min: [3]int{8, 8, 8}, Max: [3]int{22, 22, 22}}, box)
	assert.Equal(t, box.Size(), [3]int{cropped.Depth, cropped.Height, cropped.Width})
	for _, extent := range []int{cropped.Depth, cropped.Height, cropped.Width} {
		assert.GreaterOrEqual(t, extent, 13)
		assert.LessOrEqual(t, extent, 14)
	}
	assert.Equal(t, [3]int{8, 8, 8}, cropped.Origin)
	assert.Equal(t, vol.At(8, 8, 8), cropped.At(0, 0, 0))
	assert.Equal(t, vol.At(15, 12, 19), cropped.At(7, 4, 11))
}

func TestCropVolumeClampsAtBoundary(t *testing.T) {
	vol := models.NewVolume(50, 50, 50)
	for i := range vol.Data {
		vol.Data[i] = float64(i)
	}
	mask := boxMask(0, 10, 40, 50, 20, 30)

	cropped, box, err := NewLabeler(nil).CropVolume(vol, mask, 5)
	require.NoError(t, err)
	assert.Equal(t, cropped.Origin, box.Min)
	assert.Equal(t, [3]int{0, 35, 15}, cropped.Origin)
	assert.Equal(t, 15, cropped.Depth)  // 0 .. 9+5
	assert.Equal(t, 15, cropped.Height) // 35 .. 49
	assert.Equal(t, 20, cropped.Width)  // 15 .. 34
	assert.Equal(t, vol.At(0, 35, 15), cropped.At(0, 0, 0))
}

func TestCropVolumeErrors(t *testing.T) {
	labeler := NewLabeler(nil)
	vol := models.NewVolume(50, 50, 50)

	_, _, err := labeler.CropVolume(vol, models.NewMask(50, 50, 50), 5)
	assert.True(t, models.IsKind(err, models.KindData), "got %v", err)

	_, _, err = labeler.CropVolume(vol, models.NewMask(5, 5, 5), 5)
	assert.True(t, models.IsKind(err, models.KindValidation), "got %v", err)
}

func TestNeighborSpacing(t *testing.T) {
	centroids := []models.Centroid{
		{Y: 0, X: 0}, {Y: 0, X: 10}, {Y: 0, X: 20},
		{Y: 12, X: 0}, {Y: 12, X: 10}, {Y: 12, X: 20},
	}
	spacing := NeighborSpacing(centroids)
	require.Len(t, spacing, 6)
	for _, d := range spacing {
		assert.InDelta(t, 10, d, 1e-9)
	}
	assert.InDelta(t, 10, MedianSpacing(centroids), 1e-9)
	assert.Nil(t, NeighborSpacing(centroids[:1]))
	assert.Equal(t, 0.0, MedianSpacing(nil))
}
