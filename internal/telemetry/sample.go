// Package telemetry defines the wire-level and engineered data types for
// electrical telemetry.
//
// A Sample is what arrives from a device over the broker: raw voltage,
// current, and power readings at an instant. A FeatureRecord is the
// engineered form the detection engine stores and trains on: the raw
// readings plus power factor and efficiency derived from them.
package telemetry

import (
	"fmt"
	"time"
)

// Sample is a single raw telemetry reading from one device. Samples are
// immutable once constructed; the transport layer guarantees all fields are
// finite numbers before a Sample ever reaches the engine.
type Sample struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Voltage   float64   `json:"voltage"`
	Current   float64   `json:"current"`
	Power     float64   `json:"power"`
}

// Validate rejects samples that must never reach the engine.
func (s Sample) Validate() error {
	if s.DeviceID == "" {
		return fmt.Errorf("sample missing device_id")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("sample missing timestamp")
	}
	return nil
}

// FeatureRecord is the engineered representation of one Sample. Records are
// created once at ingestion and never mutated; the history store owns them.
type FeatureRecord struct {
	Voltage     float64 `json:"voltage"`
	Current     float64 `json:"current"`
	Power       float64 `json:"power"`
	PowerFactor float64 `json:"power_factor"`
	Efficiency  float64 `json:"efficiency"`
}

// NewFeatureRecord derives a FeatureRecord from a raw sample.
// powerFactor = power / (voltage * current); efficiency = powerFactor * 100.
// A zero apparent power (voltage*current == 0) is a degenerate sample: the
// derived features are zero, not a division fault.
func NewFeatureRecord(s Sample) FeatureRecord {
	rec := FeatureRecord{
		Voltage: s.Voltage,
		Current: s.Current,
		Power:   s.Power,
	}
	apparent := s.Voltage * s.Current
	if apparent != 0 {
		rec.PowerFactor = s.Power / apparent
		rec.Efficiency = rec.PowerFactor * 100
	}
	return rec
}

// Features returns the model input vector in the canonical order
// {voltage, current, powerFactor, efficiency}.
func (r FeatureRecord) Features() []float64 {
	return []float64{r.Voltage, r.Current, r.PowerFactor, r.Efficiency}
}

// QueryFeatures builds the model input vector for a prediction query where
// only voltage and current are known. Power is the quantity being predicted,
// so the power-factor term is taken at apparent power (unity power factor),
// using the same degenerate-sample guard as NewFeatureRecord.
func QueryFeatures(voltage, current float64) []float64 {
	if voltage*current == 0 {
		return []float64{voltage, current, 0, 0}
	}
	return []float64{voltage, current, 1, 100}
}
