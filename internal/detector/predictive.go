package detector

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/gridpulse/gridpulse-detector/internal/detector/predictor"
	"github.com/gridpulse/gridpulse-detector/internal/telemetry"
)

// predictiveDetector compares the actual power reading against the live
// model's prediction. It degrades gracefully: a missing model or a transient
// prediction fault skips the check rather than failing ingestion.
type predictiveDetector struct {
	cfg Config
	log *zap.Logger
}

// detect returns at most one finding, or nil when predictive detection is
// skipped or the reading is within tolerance.
func (d *predictiveDetector) detect(sample telemetry.Sample, pred *predictor.PowerPredictor, historySize int) *Finding {
	if !pred.Ready() || historySize < d.cfg.MinTrainingSize {
		return nil
	}

	predicted, err := pred.Predict(sample.Voltage, sample.Current)
	if err != nil {
		if !errors.Is(err, predictor.ErrModelNotReady) {
			d.log.Warn("predictive detection skipped",
				zap.String("device_id", sample.DeviceID),
				zap.Error(err))
		}
		return nil
	}

	absErr := math.Abs(sample.Power - predicted)
	// Floor the denominator at 1 so near-zero predictions don't blow up the
	// relative error.
	relErr := absErr / math.Max(predicted, 1)
	if relErr <= d.cfg.RelativeErrorThreshold {
		return nil
	}

	f := newFinding(sample.DeviceID, sample.Timestamp)
	f.Metric = "power"
	f.Kind = KindDeviation
	f.Method = MethodPredictive
	f.Score = relErr
	f.Severity = tierFor(relErr, d.cfg.RelativeErrorHighThreshold)
	f.Value = sample.Power
	f.Expected = predicted
	f.Message = fmt.Sprintf("power deviation: actual %.2f vs predicted %.2f (relative error %.1f%%)",
		sample.Power, predicted, relErr*100)
	return &f
}
