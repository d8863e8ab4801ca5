// Package detector implements the streaming anomaly engine for electrical
// telemetry.
//
// Responsibilities:
//   - Maintain a bounded sliding window of engineered feature records
//   - Run statistical detection (Z-score, IQR fencing) on every sample
//   - Run predictive detection against the live regression model
//   - Retrain the model in the background once enough history accumulates
package detector

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gridpulse/gridpulse-detector/internal/detector/history"
	"github.com/gridpulse/gridpulse-detector/internal/detector/predictor"
	"github.com/gridpulse/gridpulse-detector/internal/metrics"
	"github.com/gridpulse/gridpulse-detector/internal/telemetry"
)

// Engine is the streaming anomaly engine. One engine instance serves all
// devices on a shared baseline; Ingest is safe for concurrent use.
type Engine struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	hist     *history.Store
	training bool

	pred        *predictor.PowerPredictor
	statistical statisticalDetector
	predictive  predictiveDetector

	clock        func() time.Time
	syncTraining bool
}

// Status is a point-in-time snapshot of engine state.
type Status struct {
	HistorySize  int       `json:"history_size"`
	ModelTrained bool      `json:"model_trained"`
	LastTrained  time.Time `json:"last_trained,omitempty"`
}

// Option customizes engine construction.
type Option func(*Engine)

// WithClock replaces the wall clock. Used by tests to drive the retrain
// schedule deterministically.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithSynchronousTraining makes Ingest block on model fits instead of
// dispatching them to a goroutine. Used by tests.
func WithSynchronousTraining() Option {
	return func(e *Engine) { e.syncTraining = true }
}

// NewEngine creates an engine with the given thresholds. Zero-valued config
// fields fall back to defaults.
func NewEngine(cfg Config, log *zap.Logger, opts ...Option) *Engine {
	cfg = cfg.Normalize()
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		cfg:         cfg,
		log:         log,
		hist:        history.New(cfg.HistoryCapacity),
		pred:        predictor.New(cfg.MinTrainingSize),
		statistical: statisticalDetector{cfg: cfg},
		clock:       time.Now,
	}
	e.predictive = predictiveDetector{cfg: cfg, log: log}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ingest records one sample and returns the findings it produced, in the
// fixed order voltage-Z, current-Z, power-Z, power-IQR, predictive. A clean
// sample returns an empty (non-nil) slice.
//
// The sample joins the history before detection runs, so it contributes to
// its own baseline. Retraining, when due, happens off the ingest path.
func (e *Engine) Ingest(sample telemetry.Sample) ([]Finding, error) {
	if err := sample.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}()

	record := telemetry.NewFeatureRecord(sample)

	e.mu.Lock()
	e.hist.Append(record)
	size := e.hist.Size()

	findings := e.statistical.detect(sample, e.hist)
	if f := e.predictive.detect(sample, e.pred, size); f != nil {
		findings = append(findings, *f)
	}

	var snapshot []telemetry.FeatureRecord
	if e.retrainDueLocked(size) {
		e.training = true
		snapshot = e.hist.Records()
	}
	e.mu.Unlock()

	metrics.SamplesIngested.WithLabelValues(sample.DeviceID).Inc()
	metrics.HistorySize.Set(float64(size))
	for _, f := range findings {
		metrics.FindingsTotal.WithLabelValues(string(f.Method), string(f.Severity)).Inc()
	}

	if snapshot != nil {
		if e.syncTraining {
			e.retrain(snapshot)
		} else {
			go e.retrain(snapshot)
		}
	}

	if findings == nil {
		findings = []Finding{}
	}
	return findings, nil
}

// retrainDueLocked decides whether a model fit should start. Callers must
// hold e.mu.
func (e *Engine) retrainDueLocked(size int) bool {
	if e.training || size < e.cfg.MinTrainingSize {
		return false
	}
	last := e.pred.LastTrained()
	if last.IsZero() {
		return true
	}
	return e.clock().Sub(last) >= e.cfg.RetrainInterval
}

// retrain fits a replacement model on a history snapshot. A failed fit keeps
// the previous model live and does not reset the retrain schedule beyond
// logging the failure.
func (e *Engine) retrain(snapshot []telemetry.FeatureRecord) {
	defer func() {
		e.mu.Lock()
		e.training = false
		e.mu.Unlock()
	}()

	start := time.Now()
	err := e.pred.Fit(snapshot, e.clock())
	metrics.TrainingDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RetrainingsTotal.WithLabelValues("failure").Inc()
		e.log.Error("model retraining failed",
			zap.Int("training_size", len(snapshot)),
			zap.Error(err))
		return
	}

	metrics.RetrainingsTotal.WithLabelValues("success").Inc()
	metrics.ModelTrained.Set(1)
	e.log.Info("model retrained",
		zap.Int("training_size", len(snapshot)),
		zap.Duration("duration", time.Since(start)))
}

// Status returns a consistent snapshot of the engine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	size := e.hist.Size()
	e.mu.Unlock()

	return Status{
		HistorySize:  size,
		ModelTrained: e.pred.Ready(),
		LastTrained:  e.pred.LastTrained(),
	}
}
