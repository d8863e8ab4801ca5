package db

import (
	"context"
	"time"
)

// Store is the main persistence interface for the detector.
type Store interface {
	SampleStore
	FindingStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Sample store ─────────────────────────────────────────────────────────────

// SampleRecord is the DB representation of one ingested telemetry sample.
type SampleRecord struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	Voltage   float64   `json:"voltage"`
	Current   float64   `json:"current"`
	Power     float64   `json:"power"`
	Timestamp time.Time `json:"timestamp"`
}

// SampleStore persists raw telemetry samples.
type SampleStore interface {
	// AppendSample stores one telemetry sample.
	AppendSample(ctx context.Context, rec *SampleRecord) error

	// RecentSamples returns samples for a device, newest first.
	RecentSamples(ctx context.Context, deviceID string, limit int) ([]*SampleRecord, error)

	// PruneSamples deletes samples older than the cutoff and returns the
	// number removed.
	PruneSamples(ctx context.Context, before time.Time) (int64, error)
}

// ─── Finding store ────────────────────────────────────────────────────────────

// FindingRecord is a persisted anomaly finding.
type FindingRecord struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	Metric     string    `json:"metric"`
	Kind       string    `json:"kind"`
	Method     string    `json:"detection_method"`
	Score      float64   `json:"score"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	Value      float64   `json:"value"`
	Expected   float64   `json:"expected"`
	DetectedAt time.Time `json:"detected_at"`
}

// FindingQuery filters finding queries.
type FindingQuery struct {
	DeviceID string
	Metric   string
	Method   string
	Severity string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// FindingStore persists anomaly finding history.
type FindingStore interface {
	// AppendFinding stores a detected anomaly finding.
	AppendFinding(ctx context.Context, rec *FindingRecord) error

	// QueryFindings retrieves findings with optional filters, newest first.
	QueryFindings(ctx context.Context, q FindingQuery) ([]*FindingRecord, error)

	// GetFinding retrieves a single finding by ID.
	GetFinding(ctx context.Context, id string) (*FindingRecord, error)

	// FindingSummary returns counts grouped by severity for a time window.
	FindingSummary(ctx context.Context, from, to time.Time) (map[string]int, error)
}
