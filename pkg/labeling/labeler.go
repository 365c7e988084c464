// Package labeling gives segmented eggs stable identities from their position in the tray
// grid and cuts each egg out of the original scan.
package labeling

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"eggsplit/internal/models"
	"eggsplit/pkg/logging"
)

// Labeler assigns stable IDs and crops eggs. It holds no per-run state.
type Labeler struct {
	logger *zap.SugaredLogger
}

// NewLabeler creates a Labeler that reports through logger. A nil logger discards output.
func NewLabeler(logger *zap.SugaredLogger) *Labeler {
	return &Labeler{logger: logging.OrNop(logger)}
}

// placed is an instance together with its centroid while rows are being built.
type placed struct {
	label    models.TransientLabel
	mask     *models.Mask
	centroid models.Centroid
}

// AssignIDs orders instances by tray position and numbers them 1..N.
//
// Instances are sorted by their row-axis (Y) centroid and grouped greedily into rows: an
// instance joins the current row when its Y differs from the running mean Y of the row's
// members by less than rowTolerance, otherwise it opens a new row. Each row is then sorted by
// its column-axis (X) centroid and rows are concatenated in the order they were closed.
//
// rowTolerance is in voxels and must match the tray geometry: too small splits a physical row,
// too large merges neighbouring rows.
func (l *Labeler) AssignIDs(instances models.InstanceSet, rowTolerance float64) (models.LabeledResult, error) {
	if len(instances) == 0 {
		l.logger.Errorf("Attempted to assign IDs to an empty instance set")
		return nil, models.Errorf(models.KindData, "assign ids", "instance set is empty")
	}
	if rowTolerance <= 0 {
		return nil, models.Errorf(models.KindValidation, "assign ids",
			"row tolerance must be positive, got %g", rowTolerance)
	}
	l.logger.Infof("Starting ID assignment for %d instances", len(instances))

	// Labels() is sorted, so equal coordinates resolve by transient label and never by map order
	items := make([]placed, 0, len(instances))
	for _, label := range instances.Labels() {
		mask := instances[label]
		centroid, err := ComputeCentroid(mask)
		if err != nil {
			l.logger.Errorf("Instance %d has an empty mask", label)
			return nil, err
		}
		items = append(items, placed{label: label, mask: mask, centroid: centroid})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].centroid.Y < items[j].centroid.Y
	})

	rows := clusterRows(items, rowTolerance)

	result := make(models.LabeledResult, len(items))
	id := models.StableID(1)
	for r, row := range rows {
		sort.SliceStable(row, func(i, j int) bool {
			return row[i].centroid.X < row[j].centroid.X
		})
		l.logger.Debugf("Row %d: %d eggs", r+1, len(row))
		for _, item := range row {
			result[id] = item.mask
			id++
		}
	}

	l.logger.Infof("Successfully clustered and sorted %d eggs into %d rows", len(result), len(rows))
	return result, nil
}

// clusterRows splits items, already sorted by Y, into rows. The running mean of the current
// row is updated as soon as a member joins, before the next item is compared.
func clusterRows(items []placed, rowTolerance float64) [][]placed {
	var rows [][]placed
	var current []placed
	var sumY float64

	for _, item := range items {
		if len(current) == 0 {
			current = append(current, item)
			sumY = item.centroid.Y
			continue
		}
		meanY := sumY / float64(len(current))
		if math.Abs(item.centroid.Y-meanY) < rowTolerance {
			current = append(current, item)
			sumY += item.centroid.Y
			continue
		}
		rows = append(rows, current)
		current = []placed{item}
		sumY = item.centroid.Y
	}
	if len(current) > 0 {
		rows = append(rows, current)
	}
	return rows
}
