package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSampleValidate(t *testing.T) {
	valid := Sample{DeviceID: "meter-1", Timestamp: time.Now(), Voltage: 230, Current: 5, Power: 1150}
	assert.NoError(t, valid.Validate())

	noDevice := valid
	noDevice.DeviceID = ""
	assert.Error(t, noDevice.Validate())

	noTime := valid
	noTime.Timestamp = time.Time{}
	assert.Error(t, noTime.Validate())
}

func TestNewFeatureRecordDerivesFactors(t *testing.T) {
	rec := NewFeatureRecord(Sample{
		DeviceID:  "meter-1",
		Timestamp: time.Now(),
		Voltage:   230,
		Current:   5,
		Power:     1035,
	})

	assert.Equal(t, 230.0, rec.Voltage)
	assert.Equal(t, 5.0, rec.Current)
	assert.Equal(t, 1035.0, rec.Power)
	// 1035 / (230*5) = 0.9
	assert.InDelta(t, 0.9, rec.PowerFactor, 1e-9)
	assert.InDelta(t, 90, rec.Efficiency, 1e-9)
}

func TestNewFeatureRecordZeroApparentPower(t *testing.T) {
	rec := NewFeatureRecord(Sample{
		DeviceID:  "meter-1",
		Timestamp: time.Now(),
		Voltage:   230,
		Current:   0,
		Power:     50,
	})

	assert.Equal(t, 0.0, rec.PowerFactor)
	assert.Equal(t, 0.0, rec.Efficiency)
}

func TestFeaturesOrder(t *testing.T) {
	rec := FeatureRecord{Voltage: 230, Current: 5, Power: 1150, PowerFactor: 1, Efficiency: 100}
	assert.Equal(t, []float64{230, 5, 1, 100}, rec.Features())
}

func TestQueryFeatures(t *testing.T) {
	assert.Equal(t, []float64{230, 5, 1, 100}, QueryFeatures(230, 5))
	assert.Equal(t, []float64{0, 5, 0, 0}, QueryFeatures(0, 5))
	assert.Equal(t, []float64{230, 0, 0, 0}, QueryFeatures(230, 0))
}
