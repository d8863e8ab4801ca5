package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitRecoversExactLinearRelation(t *testing.T) {
	// y = 3 + 2*x1 - x2
	rows := [][]float64{
		{1, 1},
		{2, 0},
		{0, 3},
		{4, 2},
		{5, 5},
	}
	targets := make([]float64, len(rows))
	for i, r := range rows {
		targets[i] = 3 + 2*r[0] - r[1]
	}

	model, err := Fit(rows, targets)
	require.NoError(t, err)

	for i, r := range rows {
		y, err := model.Predict(r)
		require.NoError(t, err)
		assert.InDelta(t, targets[i], y, 1e-3, "row %d", i)
	}
}

func TestFitHandlesCollinearFeatures(t *testing.T) {
	// Second feature is a constant multiple of the first; the ridge term must
	// keep the solve non-singular.
	rows := [][]float64{
		{1, 100},
		{2, 200},
		{3, 300},
		{4, 400},
	}
	targets := []float64{10, 20, 30, 40}

	model, err := Fit(rows, targets)
	require.NoError(t, err)

	y, err := model.Predict([]float64{5, 500})
	require.NoError(t, err)
	assert.InDelta(t, 50, y, 0.1)
}

func TestFitDimensionErrors(t *testing.T) {
	_, err := Fit(nil, nil)
	assert.Error(t, err)

	_, err = Fit([][]float64{{1, 2}}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Fit([][]float64{{1, 2}, {1}}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestPredictDimensionError(t *testing.T) {
	model, err := Fit([][]float64{{1}, {2}, {3}}, []float64{2, 4, 6})
	require.NoError(t, err)

	_, err = model.Predict([]float64{1, 2})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFitConstantTarget(t *testing.T) {
	rows := [][]float64{{1}, {2}, {3}, {4}}
	targets := []float64{7, 7, 7, 7}

	model, err := Fit(rows, targets)
	require.NoError(t, err)

	y, err := model.Predict([]float64{10})
	require.NoError(t, err)
	assert.InDelta(t, 7, y, 1e-3)
}
