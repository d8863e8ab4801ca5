// Package ml provides the trainable regression model behind the power
// predictor: multivariate linear regression fit by the normal equations with
// a small ridge term for numerical stability. Engineered telemetry features
// are strongly correlated (power factor and efficiency differ only by a
// constant factor), so an unregularized Gram matrix can be singular; the
// ridge term keeps the solve well-posed without materially biasing the fit.
package ml

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when feature vectors disagree in length
// or the target vector does not match the sample count.
var ErrDimensionMismatch = errors.New("ml: dimension mismatch")

// defaultRidge is the regularization strength added to the Gram diagonal.
// Small enough to leave a well-conditioned fit essentially exact.
const defaultRidge = 1e-6

// LinearModel is a fitted linear regression y = intercept + w·x.
// A LinearModel is immutable after Fit returns it.
type LinearModel struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// Fit trains a linear model on rows of features against targets.
// Each row must have the same length; len(targets) must equal len(rows).
func Fit(rows [][]float64, targets []float64) (*LinearModel, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("ml: no training rows")
	}
	if len(rows) != len(targets) {
		return nil, ErrDimensionMismatch
	}
	dim := len(rows[0])
	if dim == 0 {
		return nil, fmt.Errorf("ml: empty feature vector")
	}
	for _, r := range rows {
		if len(r) != dim {
			return nil, ErrDimensionMismatch
		}
	}

	// Augment with an intercept column and solve (XᵀX + λI)β = Xᵀy.
	d := dim + 1
	gram := make([][]float64, d)
	for i := range gram {
		gram[i] = make([]float64, d)
	}
	rhs := make([]float64, d)

	for k, row := range rows {
		aug := make([]float64, d)
		aug[0] = 1
		copy(aug[1:], row)
		for i := 0; i < d; i++ {
			for j := 0; j < d; j++ {
				gram[i][j] += aug[i] * aug[j]
			}
			rhs[i] += aug[i] * targets[k]
		}
	}
	for i := 0; i < d; i++ {
		gram[i][i] += defaultRidge
	}

	beta, err := solve(gram, rhs)
	if err != nil {
		return nil, err
	}

	model := &LinearModel{
		Intercept: beta[0],
		Weights:   beta[1:],
	}
	for _, w := range beta {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("ml: fit produced non-finite coefficients")
		}
	}
	return model, nil
}

// Predict evaluates the model at the given feature vector.
func (m *LinearModel) Predict(features []float64) (float64, error) {
	if len(features) != len(m.Weights) {
		return 0, ErrDimensionMismatch
	}
	y := m.Intercept
	for i, w := range m.Weights {
		y += w * features[i]
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("ml: non-finite prediction")
	}
	return y, nil
}

// solve performs Gaussian elimination with partial pivoting on a copy of the
// inputs. The system is tiny (one row per feature plus intercept).
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	m := make([][]float64, n)
	for i := range a {
		m[i] = make([]float64, n+1)
		copy(m[i], a[i])
		m[i][n] = b[i]
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("ml: singular system")
		}
		m[col], m[pivot] = m[pivot], m[col]

		for r := col + 1; r < n; r++ {
			f := m[r][col] / m[col][col]
			for c := col; c <= n; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := m[i][n]
		for j := i + 1; j < n; j++ {
			sum -= m[i][j] * x[j]
		}
		x[i] = sum / m[i][i]
	}
	return x, nil
}
