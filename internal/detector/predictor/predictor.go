// Package predictor wraps the trainable regression model that maps
// engineered telemetry features to expected power draw.
//
// Exactly one model is live at a time. Fit builds the replacement fully off
// to the side and publishes it with a single atomic pointer swap, so readers
// on the ingestion hot path never observe a half-updated model. A failed fit
// leaves the previous model (or its absence) untouched.
package predictor

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gridpulse/gridpulse-detector/internal/ml"
	"github.com/gridpulse/gridpulse-detector/internal/telemetry"
)

// DefaultMinTrainingSize is the training floor when none is configured.
const DefaultMinTrainingSize = 50

// ErrModelNotReady is returned by Predict before the first successful Fit.
// Callers treat it as "skip predictive detection", never as a fatal error.
var ErrModelNotReady = errors.New("predictor: model not ready")

// ErrInsufficientTrainingData is returned by Fit when fewer records than the
// training floor are supplied.
var ErrInsufficientTrainingData = errors.New("predictor: insufficient training data")

// trained bundles a fitted model with the moment it went live, so both are
// published in one swap.
type trained struct {
	model *ml.LinearModel
	at    time.Time
}

// PowerPredictor predicts power draw from voltage and current using the
// last successfully fitted regression model.
type PowerPredictor struct {
	minTrainingSize int
	live            atomic.Pointer[trained]
}

// New creates a predictor with the given training floor. Non-positive
// values fall back to DefaultMinTrainingSize.
func New(minTrainingSize int) *PowerPredictor {
	if minTrainingSize <= 0 {
		minTrainingSize = DefaultMinTrainingSize
	}
	return &PowerPredictor{minTrainingSize: minTrainingSize}
}

// MinTrainingSize returns the configured training floor.
func (p *PowerPredictor) MinTrainingSize() int {
	return p.minTrainingSize
}

// Ready reports whether a model has ever been fit successfully.
func (p *PowerPredictor) Ready() bool {
	return p.live.Load() != nil
}

// LastTrained returns when the live model was published, or the zero time if
// no model has ever been fit.
func (p *PowerPredictor) LastTrained() time.Time {
	if t := p.live.Load(); t != nil {
		return t.at
	}
	return time.Time{}
}

// Fit trains a replacement model on the given records and publishes it with
// the supplied timestamp. The previous model stays live until the new one is
// fully built; on any fit error nothing changes.
func (p *PowerPredictor) Fit(records []telemetry.FeatureRecord, now time.Time) error {
	if len(records) < p.minTrainingSize {
		return fmt.Errorf("%w: have %d, need %d",
			ErrInsufficientTrainingData, len(records), p.minTrainingSize)
	}

	rows := make([][]float64, len(records))
	targets := make([]float64, len(records))
	for i, rec := range records {
		rows[i] = rec.Features()
		targets[i] = rec.Power
	}

	model, err := ml.Fit(rows, targets)
	if err != nil {
		return fmt.Errorf("fit power model: %w", err)
	}

	p.live.Store(&trained{model: model, at: now})
	return nil
}

// Predict evaluates the live model at a query point. Power-factor features
// for the query are derived the same way ingestion derives them, with the
// power term taken at apparent power.
func (p *PowerPredictor) Predict(voltage, current float64) (float64, error) {
	t := p.live.Load()
	if t == nil {
		return 0, ErrModelNotReady
	}
	predicted, err := t.model.Predict(telemetry.QueryFeatures(voltage, current))
	if err != nil {
		return 0, fmt.Errorf("predict power: %w", err)
	}
	return predicted, nil
}
