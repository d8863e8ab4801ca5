package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRejectsTooFewValues(t *testing.T) {
	_, err := Compute(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Compute([]float64{42})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestComputeBasicMoments(t *testing.T) {
	s, err := Compute([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	require.NoError(t, err)

	assert.InDelta(t, 5.0, s.Mean, 1e-9)
	// Population stddev, not sample stddev.
	assert.InDelta(t, 2.0, s.StdDev, 1e-9)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.Equal(t, 8, s.Count)
}

func TestComputeIdenticalValues(t *testing.T) {
	s, err := Compute([]float64{100, 100, 100, 100})
	require.NoError(t, err)

	assert.Equal(t, 100.0, s.Mean)
	assert.Equal(t, 0.0, s.StdDev)
	assert.Equal(t, 0.0, s.IQR())
}

func TestComputeQuartilesNearestRank(t *testing.T) {
	// n=8: Q1 at index floor(8*0.25)=2, Q3 at index floor(8*0.75)=6.
	s, err := Compute([]float64{10, 20, 30, 40, 50, 60, 70, 80})
	require.NoError(t, err)

	assert.Equal(t, 30.0, s.Q1)
	assert.Equal(t, 70.0, s.Q3)
	assert.Equal(t, 40.0, s.IQR())
}

func TestComputeQuartilesUnsortedInput(t *testing.T) {
	// Quartiles come from the sorted copy; input order must not matter.
	s1, err := Compute([]float64{80, 10, 60, 30, 70, 20, 50, 40})
	require.NoError(t, err)
	s2, err := Compute([]float64{10, 20, 30, 40, 50, 60, 70, 80})
	require.NoError(t, err)

	assert.Equal(t, s2.Q1, s1.Q1)
	assert.Equal(t, s2.Q3, s1.Q3)
}

func TestComputeDoesNotMutateInput(t *testing.T) {
	values := []float64{3, 1, 2}
	_, err := Compute(values)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestComputeQuartilesOddCount(t *testing.T) {
	// n=21: Q1 at index 5, Q3 at index 15.
	values := make([]float64, 0, 21)
	for i := 0; i < 21; i++ {
		values = append(values, 1000+float64(i)*50)
	}
	s, err := Compute(values)
	require.NoError(t, err)

	assert.Equal(t, 1250.0, s.Q1)
	assert.Equal(t, 1750.0, s.Q3)
}
