package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentilesInterpolateBetweenRanks(t *testing.T) {
	ramp := make([]float64, 100)
	for i := range ramp {
		ramp[i] = float64(99 - i)
	}

	got := Percentiles(ramp, 0.01, 0.5, 0.99)
	require.Len(t, got, 3)
	assert.InDelta(t, 0.99, got[0], 1e-12)
	assert.InDelta(t, 49.5, got[1], 1e-12)
	assert.InDelta(t, 98.01, got[2], 1e-12)

	// input order untouched
	assert.Equal(t, 99.0, ramp[0])
}

func TestPercentilesSparseForeground(t *testing.T) {
	// 1% of the samples set, as for a tray with small eggs
	data := make([]float64, 1000)
	for i := 990; i < 1000; i++ {
		data[i] = 1
	}
	got := Percentiles(data, 0.01, 0.99)
	assert.InDelta(t, 0.0, got[0], 1e-12)
	assert.InDelta(t, 0.01, got[1], 1e-12)
}

func TestPercentileEdges(t *testing.T) {
	sorted := []float64{1, 2, 4}
	assert.Equal(t, 1.0, Percentile(sorted, 0))
	assert.Equal(t, 4.0, Percentile(sorted, 1))
	assert.Equal(t, 3.0, Percentile(sorted, 0.75))
	assert.Equal(t, 7.0, Percentile([]float64{7}, 0.3))
	assert.Nil(t, Percentiles(nil, 0.5))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 0.0, Median(nil))
}
