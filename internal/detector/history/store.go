// Package history provides the bounded, insertion-ordered buffer of
// engineered telemetry records that the detectors use as their baseline.
// Insertion always appends; eviction always removes the oldest record.
// The store holds no detection logic and is not safe for concurrent use on
// its own; the engine serializes access behind its ingest lock.
package history

import (
	"github.com/gridpulse/gridpulse-detector/internal/telemetry"
)

// DefaultCapacity bounds the sliding window when no capacity is configured.
const DefaultCapacity = 1000

// Metric selects one projection of the stored feature records.
type Metric int

const (
	MetricVoltage Metric = iota
	MetricCurrent
	MetricPower
)

// String returns the metric name used in finding messages and labels.
func (m Metric) String() string {
	switch m {
	case MetricVoltage:
		return "voltage"
	case MetricCurrent:
		return "current"
	case MetricPower:
		return "power"
	}
	return "unknown"
}

// Store is a fixed-capacity FIFO of feature records backed by a circular
// buffer, so Append is O(1) with no reslicing churn at steady state.
type Store struct {
	data     []telemetry.FeatureRecord
	head     int
	size     int
	capacity int
}

// New creates a store with the given capacity. Non-positive capacities fall
// back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		data:     make([]telemetry.FeatureRecord, capacity),
		capacity: capacity,
	}
}

// Append adds a record, evicting the oldest when the store is full.
func (s *Store) Append(rec telemetry.FeatureRecord) {
	idx := (s.head + s.size) % s.capacity
	s.data[idx] = rec
	if s.size < s.capacity {
		s.size++
	} else {
		s.head = (s.head + 1) % s.capacity
	}
}

// Size returns the number of records currently held.
func (s *Store) Size() int {
	return s.size
}

// Capacity returns the configured bound.
func (s *Store) Capacity() int {
	return s.capacity
}

// Records returns all records in insertion order (oldest first).
func (s *Store) Records() []telemetry.FeatureRecord {
	out := make([]telemetry.FeatureRecord, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.data[(s.head+i)%s.capacity]
	}
	return out
}

// Projection returns one metric of every record, in insertion order.
func (s *Store) Projection(m Metric) []float64 {
	out := make([]float64, s.size)
	for i := 0; i < s.size; i++ {
		rec := s.data[(s.head+i)%s.capacity]
		switch m {
		case MetricVoltage:
			out[i] = rec.Voltage
		case MetricCurrent:
			out[i] = rec.Current
		case MetricPower:
			out[i] = rec.Power
		}
	}
	return out
}
