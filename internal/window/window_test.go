package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mj-status/forecaster/internal/table"
)

func ramp(n int) *table.Table {
	t := table.Zeros([]string{"v", "w"}, n)
	for i := range t.Rows {
		t.Rows[i][0] = float64(i)
		t.Rows[i][1] = float64(-i)
	}
	return t
}

func TestDatasetCountNonOverlapping(t *testing.T) {
	for _, tc := range []struct{ n, iw, lw int }{{10, 3, 3}, {960, 96, 96}, {7, 1, 6}, {5, 5, 1}} {
		spec := Spec{InputWidth: tc.iw, LabelWidth: tc.lw, Shift: tc.iw}
		ds, err := NewDataset(ramp(tc.n), spec, 32)
		require.NoError(t, err)
		assert.Equal(t, max(0, tc.n-tc.iw-tc.lw+1), ds.Len(), "%+v", tc)

		count := 0
		for ex := range ds.All() {
			assert.Equal(t, count, ex.Start)
			assert.Equal(t, float64(ex.Start+spec.Shift), ex.Labels[0][0])
			assert.Equal(t, ex.Start+spec.Shift, ex.LabelStart(spec))
			assert.Len(t, ex.Inputs, tc.iw)
			assert.Len(t, ex.Labels, tc.lw)
			count++
		}
		assert.Equal(t, ds.Len(), count)
	}
}

func TestDatasetOverlappingLabels(t *testing.T) {
	spec := Spec{InputWidth: 4, LabelWidth: 2, Shift: 1}
	ds, err := NewDataset(ramp(10), spec, 4)
	require.NoError(t, err)

	assert.Equal(t, 4, spec.Span())
	assert.Equal(t, 7, ds.Len())
	for ex := range ds.All() {
		assert.Equal(t, float64(ex.Start+1), ex.Labels[0][0])
	}
}

func TestDatasetIsRestartable(t *testing.T) {
	ds, err := NewDataset(ramp(12), Spec{InputWidth: 2, LabelWidth: 2, Shift: 2}, 3)
	require.NoError(t, err)

	var first, second []int
	for ex := range ds.All() {
		first = append(first, ex.Start)
	}
	for ex := range ds.All() {
		second = append(second, ex.Start)
	}
	assert.Equal(t, first, second)
}

func TestDatasetBatches(t *testing.T) {
	ds, err := NewDataset(ramp(12), Spec{InputWidth: 2, LabelWidth: 2, Shift: 2}, 3)
	require.NoError(t, err)

	var sizes []int
	for b := range ds.Batches() {
		sizes = append(sizes, len(b))
	}
	assert.Equal(t, []int{3, 3, 3}, sizes)

	ds, err = NewDataset(ramp(11), Spec{InputWidth: 2, LabelWidth: 2, Shift: 2}, 3)
	require.NoError(t, err)
	sizes = nil
	for b := range ds.Batches() {
		sizes = append(sizes, len(b))
	}
	assert.Equal(t, []int{3, 3, 2}, sizes)
}

func TestNewWindowRejectsShortPartition(t *testing.T) {
	spec := Spec{InputWidth: 4, LabelWidth: 4, Shift: 4}
	_, err := New(ramp(20), ramp(8), ramp(7), spec, 32)
	require.ErrorIs(t, err, ErrTooShort)

	w, err := New(ramp(20), ramp(8), ramp(8), spec, 32)
	require.NoError(t, err)
	assert.Equal(t, 13, w.Train.Len())
	assert.Equal(t, 1, w.Test.Len())
}

func TestPredictExample(t *testing.T) {
	spec := Spec{InputWidth: 3, LabelWidth: 3, Shift: 3}
	ex, err := PredictExample(ramp(10), spec)
	require.NoError(t, err)
	assert.Equal(t, 7, ex.Start)
	assert.Nil(t, ex.Labels)
	assert.Equal(t, [][]float64{{7, -7}, {8, -8}, {9, -9}}, ex.Inputs)

	_, err = PredictExample(ramp(2), spec)
	require.ErrorIs(t, err, ErrTooShort)

	_, err = PredictExample(ramp(2), Spec{})
	require.ErrorIs(t, err, ErrInvalidSpec)
}
