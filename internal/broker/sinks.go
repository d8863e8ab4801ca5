package broker

import (
	"context"

	"go.uber.org/zap"

	"github.com/gridpulse/gridpulse-detector/internal/db"
	"github.com/gridpulse/gridpulse-detector/internal/detector"
	"github.com/gridpulse/gridpulse-detector/internal/registry"
	"github.com/gridpulse/gridpulse-detector/internal/telemetry"
)

// StoreSink persists samples and findings to the database. Persistence
// failures are logged, not propagated; detection results have already been
// produced and losing one history row is preferable to stalling the queue.
type StoreSink struct {
	store db.Store
	log   *zap.Logger
}

// NewStoreSink creates a sink writing to the given store.
func NewStoreSink(store db.Store, log *zap.Logger) *StoreSink {
	return &StoreSink{store: store, log: log}
}

func (s *StoreSink) HandleSample(ctx context.Context, sample telemetry.Sample, findings []detector.Finding) {
	rec := &db.SampleRecord{
		DeviceID:  sample.DeviceID,
		Voltage:   sample.Voltage,
		Current:   sample.Current,
		Power:     sample.Power,
		Timestamp: sample.Timestamp,
	}
	if err := s.store.AppendSample(ctx, rec); err != nil {
		s.log.Error("persist sample failed",
			zap.String("device_id", sample.DeviceID),
			zap.Error(err))
	}

	for _, f := range findings {
		frec := &db.FindingRecord{
			ID:         f.ID,
			DeviceID:   f.DeviceID,
			Metric:     f.Metric,
			Kind:       string(f.Kind),
			Method:     string(f.Method),
			Score:      f.Score,
			Severity:   string(f.Severity),
			Message:    f.Message,
			Value:      f.Value,
			Expected:   f.Expected,
			DetectedAt: f.Timestamp,
		}
		if err := s.store.AppendFinding(ctx, frec); err != nil {
			s.log.Error("persist finding failed",
				zap.String("finding_id", f.ID),
				zap.Error(err))
		}
	}
}

// RegistrySink records device liveness in the registry on every sample.
type RegistrySink struct {
	registry *registry.Registry
	log      *zap.Logger
}

// NewRegistrySink creates a sink updating the device registry.
func NewRegistrySink(reg *registry.Registry, log *zap.Logger) *RegistrySink {
	return &RegistrySink{registry: reg, log: log}
}

func (s *RegistrySink) HandleSample(ctx context.Context, sample telemetry.Sample, findings []detector.Finding) {
	if err := s.registry.Touch(ctx, sample.DeviceID, sample.Timestamp); err != nil {
		s.log.Warn("registry touch failed",
			zap.String("device_id", sample.DeviceID),
			zap.Error(err))
	}
}
