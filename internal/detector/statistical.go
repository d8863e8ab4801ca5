package detector

import (
	"fmt"
	"math"

	"github.com/gridpulse/gridpulse-detector/internal/detector/history"
	"github.com/gridpulse/gridpulse-detector/internal/detector/stats"
	"github.com/gridpulse/gridpulse-detector/internal/telemetry"
)

// statisticalDetector applies the Z-score rule to voltage, current, and
// power, plus IQR fencing on power. The baseline is the history store as it
// stands when Detect is called; the engine appends the incoming record
// first, so the new value is part of its own baseline.
type statisticalDetector struct {
	cfg Config
}

// detect returns zero or more findings for the newest sample, in the fixed
// order voltage-Z, current-Z, power-Z, power-IQR.
func (d *statisticalDetector) detect(sample telemetry.Sample, hist *history.Store) []Finding {
	if hist.Size() < d.cfg.StatisticalFloor {
		return nil
	}

	var findings []Finding
	metrics := []struct {
		metric history.Metric
		value  float64
	}{
		{history.MetricVoltage, sample.Voltage},
		{history.MetricCurrent, sample.Current},
		{history.MetricPower, sample.Power},
	}

	var powerSummary stats.Summary
	var havePower bool

	for _, m := range metrics {
		summary, err := stats.Compute(hist.Projection(m.metric))
		if err != nil {
			continue
		}
		if m.metric == history.MetricPower {
			powerSummary = summary
			havePower = true
		}
		if f, ok := d.zScore(sample, m.metric, m.value, summary); ok {
			findings = append(findings, f)
		}
	}

	if havePower {
		if f, ok := d.iqrFence(sample, powerSummary); ok {
			findings = append(findings, f)
		}
	}
	return findings
}

// zScore checks one metric against the mean/stddev baseline. A zero stddev
// is a degenerate metric: z is forced to 0 and nothing fires.
func (d *statisticalDetector) zScore(sample telemetry.Sample, metric history.Metric, value float64, summary stats.Summary) (Finding, bool) {
	z := 0.0
	if summary.StdDev > 0 {
		z = math.Abs(value-summary.Mean) / summary.StdDev
	}
	if z <= d.cfg.ZScoreThreshold {
		return Finding{}, false
	}

	kind := KindSpike
	if value < summary.Mean {
		kind = KindDrop
	}

	f := newFinding(sample.DeviceID, sample.Timestamp)
	f.Metric = metric.String()
	f.Kind = kind
	f.Method = MethodZScore
	f.Score = z
	f.Severity = tierFor(z, d.cfg.ZScoreHighThreshold)
	f.Value = value
	f.Expected = summary.Mean
	f.Message = fmt.Sprintf("%s %s: value %.2f is %.2f standard deviations from mean %.2f",
		metric, kind, value, z, summary.Mean)
	return f, true
}

// iqrFence checks power against the quartile fences. The score is the
// distance to the nearest fence; clearing twice the IQR escalates to high.
func (d *statisticalDetector) iqrFence(sample telemetry.Sample, summary stats.Summary) (Finding, bool) {
	iqr := summary.IQR()
	lower := summary.Q1 - d.cfg.IQRMultiplier*iqr
	upper := summary.Q3 + d.cfg.IQRMultiplier*iqr

	value := sample.Power
	if value >= lower && value <= upper {
		return Finding{}, false
	}

	distance := value - upper
	if value < lower {
		distance = lower - value
	}

	f := newFinding(sample.DeviceID, sample.Timestamp)
	f.Metric = history.MetricPower.String()
	f.Kind = KindOutlier
	f.Method = MethodIQR
	f.Score = distance
	f.Severity = tierFor(distance, 2*iqr)
	f.Value = value
	f.Expected = (summary.Q1 + summary.Q3) / 2
	f.Message = fmt.Sprintf("power outlier: value %.2f outside normal range [%.2f, %.2f]",
		value, lower, upper)
	return f, true
}
