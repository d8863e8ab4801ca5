package detector

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies how urgent a finding is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// DetectionMethod identifies which detector produced a finding.
type DetectionMethod string

const (
	MethodZScore     DetectionMethod = "z_score"
	MethodIQR        DetectionMethod = "iqr"
	MethodPredictive DetectionMethod = "predictive"
)

// AnomalyKind describes the shape of the deviation.
type AnomalyKind string

const (
	KindSpike     AnomalyKind = "spike"     // value above baseline
	KindDrop      AnomalyKind = "drop"      // value below baseline
	KindOutlier   AnomalyKind = "outlier"   // outside IQR fences
	KindDeviation AnomalyKind = "deviation" // diverges from model prediction
)

// Finding is one detected anomaly. Findings are transient values: the engine
// hands them to the caller and retains nothing.
type Finding struct {
	ID        string          `json:"id"`
	DeviceID  string          `json:"device_id"`
	IsAnomaly bool            `json:"is_anomaly"`
	Metric    string          `json:"metric"`
	Kind      AnomalyKind     `json:"kind"`
	Method    DetectionMethod `json:"detection_method"`
	Score     float64         `json:"score"`
	Severity  Severity        `json:"severity"`
	Message   string          `json:"message"`
	Value     float64         `json:"value"`
	Expected  float64         `json:"expected"`
	Timestamp time.Time       `json:"timestamp"`
}

func newFinding(deviceID string, ts time.Time) Finding {
	return Finding{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		IsAnomaly: true,
		Timestamp: ts,
	}
}

// tierFor maps a detection score to an alert tier. The score already cleared
// the firing threshold, so the only question is whether it also cleared the
// method's high cutoff.
func tierFor(score, highCutoff float64) Severity {
	if score > highCutoff {
		return SeverityHigh
	}
	return SeverityMedium
}
