package detector

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gridpulse/gridpulse-detector/internal/telemetry"
)

var testBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sample(voltage, current, power float64) telemetry.Sample {
	return telemetry.Sample{
		DeviceID:  "meter-1",
		Timestamp: testBase,
		Voltage:   voltage,
		Current:   current,
		Power:     power,
	}
}

func newTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	return NewEngine(cfg, zap.NewNop(), opts...)
}

func TestIngestRejectsInvalidSample(t *testing.T) {
	e := newTestEngine(t, Config{})

	_, err := e.Ingest(telemetry.Sample{Timestamp: testBase})
	assert.Error(t, err)

	_, err = e.Ingest(telemetry.Sample{DeviceID: "meter-1"})
	assert.Error(t, err)
}

func TestIngestBelowStatisticalFloor(t *testing.T) {
	e := newTestEngine(t, Config{})

	// Wild swings, but fewer samples than the floor: no detection yet.
	for _, p := range []float64{100, 5000, 3, 900, 42, 7000, 1, 250, 666} {
		findings, err := e.Ingest(sample(230, 5, p))
		require.NoError(t, err)
		assert.Empty(t, findings)
		assert.NotNil(t, findings)
	}
}

func TestConcurrentIngestLosesNoSamples(t *testing.T) {
	const workers = 100

	e := newTestEngine(t, Config{})

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(p float64) {
			defer wg.Done()
			_, err := e.Ingest(sample(230, 5, p))
			assert.NoError(t, err)
		}(1000 + float64(i))
	}
	wg.Wait()

	assert.Equal(t, workers, e.Status().HistorySize)
}

func TestConcurrentIngestHoldsCapacityBound(t *testing.T) {
	const (
		capacity = 64
		workers  = 200
	)

	e := newTestEngine(t, Config{HistoryCapacity: capacity})

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(p float64) {
			defer wg.Done()
			_, err := e.Ingest(sample(230, 5, p))
			assert.NoError(t, err)
		}(1000 + float64(i))
	}
	wg.Wait()

	assert.Equal(t, capacity, e.Status().HistorySize)
}

func TestIdenticalSamplesProduceNoFindings(t *testing.T) {
	e := newTestEngine(t, Config{})

	var findings []Finding
	var err error
	for i := 0; i < 15; i++ {
		findings, err = e.Ingest(sample(230, 5, 1150))
		require.NoError(t, err)
	}
	// Zero stddev forces z to 0, and the IQR fences collapse onto the value.
	assert.Empty(t, findings)
}

func TestPowerSpikeFiresHighSeverity(t *testing.T) {
	e := newTestEngine(t, Config{})

	for i := 0; i < 20; i++ {
		_, err := e.Ingest(sample(230, 5, 100))
		require.NoError(t, err)
	}

	findings, err := e.Ingest(sample(230, 5, 1000))
	require.NoError(t, err)
	require.Len(t, findings, 2)

	zf := findings[0]
	assert.Equal(t, MethodZScore, zf.Method)
	assert.Equal(t, "power", zf.Metric)
	assert.Equal(t, KindSpike, zf.Kind)
	assert.Equal(t, SeverityHigh, zf.Severity)
	assert.True(t, zf.IsAnomaly)
	assert.InDelta(t, 4.47, zf.Score, 0.05)
	assert.Equal(t, 1000.0, zf.Value)

	iqrf := findings[1]
	assert.Equal(t, MethodIQR, iqrf.Method)
	assert.Equal(t, KindOutlier, iqrf.Kind)
	assert.Equal(t, SeverityHigh, iqrf.Severity)
}

func TestPowerDropKind(t *testing.T) {
	e := newTestEngine(t, Config{})

	for i := 0; i < 20; i++ {
		p := 99.0
		if i%2 == 1 {
			p = 101.0
		}
		_, err := e.Ingest(sample(230, 5, p))
		require.NoError(t, err)
	}

	findings, err := e.Ingest(sample(230, 5, 90))
	require.NoError(t, err)
	require.NotEmpty(t, findings)

	assert.Equal(t, MethodZScore, findings[0].Method)
	assert.Equal(t, KindDrop, findings[0].Kind)
	assert.Less(t, findings[0].Value, findings[0].Expected)
}

func TestIQRFiresWithoutZScore(t *testing.T) {
	e := newTestEngine(t, Config{})

	// Heavy-tailed baseline: the extremes inflate the stddev so a moderate
	// outlier stays under the Z threshold, while the quartiles hug 100.
	for i := 0; i < 16; i++ {
		_, err := e.Ingest(sample(230, 5, 100))
		require.NoError(t, err)
	}
	for _, p := range []float64{500, 500, -300, -300} {
		_, err := e.Ingest(sample(230, 5, p))
		require.NoError(t, err)
	}

	findings, err := e.Ingest(sample(230, 5, 180))
	require.NoError(t, err)
	require.Len(t, findings, 1)

	assert.Equal(t, MethodIQR, findings[0].Method)
	assert.Equal(t, KindOutlier, findings[0].Kind)
	assert.Equal(t, "power", findings[0].Metric)
}

func TestVoltageAndCurrentChecked(t *testing.T) {
	e := newTestEngine(t, Config{})

	for i := 0; i < 20; i++ {
		_, err := e.Ingest(sample(230, 5, 1150))
		require.NoError(t, err)
	}

	findings, err := e.Ingest(sample(400, 5, 1150))
	require.NoError(t, err)
	require.NotEmpty(t, findings)

	assert.Equal(t, "voltage", findings[0].Metric)
	assert.Equal(t, MethodZScore, findings[0].Method)
	assert.Equal(t, KindSpike, findings[0].Kind)
}

func TestRetrainingAndPredictiveDetection(t *testing.T) {
	now := testBase
	cfg := Config{
		MinTrainingSize: 50,
		RetrainInterval: 30 * time.Minute,
	}
	e := newTestEngine(t, cfg,
		WithClock(func() time.Time { return now }),
		WithSynchronousTraining(),
	)

	// Warm up with an exactly linear power relation: power = 5 * voltage.
	for i := 0; i < 50; i++ {
		v := 200 + float64(i)
		_, err := e.Ingest(telemetry.Sample{
			DeviceID:  "meter-1",
			Timestamp: now,
			Voltage:   v,
			Current:   5,
			Power:     v * 5,
		})
		require.NoError(t, err)
	}

	status := e.Status()
	assert.Equal(t, 50, status.HistorySize)
	assert.True(t, status.ModelTrained)
	assert.Equal(t, now, status.LastTrained)
	trainedAt := status.LastTrained

	// A reading far from the model's prediction ends the findings list with
	// a predictive deviation.
	now = now.Add(time.Minute)
	findings, err := e.Ingest(sample(230, 5, 2000))
	require.NoError(t, err)
	require.NotEmpty(t, findings)

	last := findings[len(findings)-1]
	assert.Equal(t, MethodPredictive, last.Method)
	assert.Equal(t, KindDeviation, last.Kind)
	assert.Equal(t, SeverityHigh, last.Severity)
	assert.Equal(t, 2000.0, last.Value)
	assert.InDelta(t, 1150, last.Expected, 2.0)

	// Statistical findings precede the predictive one.
	for _, f := range findings[:len(findings)-1] {
		assert.NotEqual(t, MethodPredictive, f.Method)
	}

	// Inside the retrain interval nothing retrains.
	now = now.Add(10 * time.Minute)
	_, err = e.Ingest(sample(231, 5, 1155))
	require.NoError(t, err)
	assert.Equal(t, trainedAt, e.Status().LastTrained)

	// Past the interval the next ingest triggers a fresh fit.
	now = trainedAt.Add(31 * time.Minute)
	_, err = e.Ingest(sample(232, 5, 1160))
	require.NoError(t, err)
	assert.Equal(t, now, e.Status().LastTrained)
}

func TestNoPredictiveFindingWithinTolerance(t *testing.T) {
	now := testBase
	cfg := Config{
		MinTrainingSize: 50,
		RetrainInterval: 30 * time.Minute,
	}
	e := newTestEngine(t, cfg,
		WithClock(func() time.Time { return now }),
		WithSynchronousTraining(),
	)

	for i := 0; i < 50; i++ {
		v := 200 + float64(i)
		_, err := e.Ingest(telemetry.Sample{
			DeviceID:  "meter-1",
			Timestamp: now,
			Voltage:   v,
			Current:   5,
			Power:     v * 5,
		})
		require.NoError(t, err)
	}
	require.True(t, e.Status().ModelTrained)

	// 1150 predicted, 1200 actual: relative error ~4%, under the threshold.
	findings, err := e.Ingest(sample(230, 5, 1200))
	require.NoError(t, err)
	for _, f := range findings {
		assert.NotEqual(t, MethodPredictive, f.Method)
	}
}

func TestHistoryEvictionBoundsBaseline(t *testing.T) {
	e := newTestEngine(t, Config{HistoryCapacity: 30})

	for i := 0; i < 100; i++ {
		_, err := e.Ingest(sample(230, 5, 1150))
		require.NoError(t, err)
	}
	assert.Equal(t, 30, e.Status().HistorySize)
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{}.Normalize()
	assert.Equal(t, DefaultConfig(), cfg)

	custom := Config{ZScoreThreshold: 3.0}.Normalize()
	assert.Equal(t, 3.0, custom.ZScoreThreshold)
	assert.Equal(t, DefaultConfig().IQRMultiplier, custom.IQRMultiplier)
}
