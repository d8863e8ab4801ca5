package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// schema defines the tables for the detector persistence layer.
// Version is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS samples (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id  TEXT NOT NULL,
    voltage    REAL NOT NULL,
    current    REAL NOT NULL,
    power      REAL NOT NULL,
    timestamp  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_device_time ON samples(device_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_samples_timestamp   ON samples(timestamp DESC);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS findings (
    id           TEXT PRIMARY KEY,
    device_id    TEXT NOT NULL,
    metric       TEXT NOT NULL,
    kind         TEXT NOT NULL DEFAULT '',
    method       TEXT NOT NULL,
    score        REAL NOT NULL DEFAULT 0.0,
    severity     TEXT NOT NULL DEFAULT 'low',
    message      TEXT NOT NULL DEFAULT '',
    value        REAL NOT NULL DEFAULT 0.0,
    expected     REAL NOT NULL DEFAULT 0.0,
    detected_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_findings_detected_at ON findings(detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_findings_device_id   ON findings(device_id);
CREATE INDEX IF NOT EXISTS idx_findings_severity    ON findings(severity);
CREATE INDEX IF NOT EXISTS idx_findings_method      ON findings(method);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	// Ensure schema_versions table exists before reading from it.
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Samples ─────────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendSample(ctx context.Context, rec *SampleRecord) error {
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO samples(device_id, voltage, current, power, timestamp)
        VALUES(?,?,?,?,?)
    `,
		rec.DeviceID, rec.Voltage, rec.Current, rec.Power, rec.Timestamp.UTC(),
	)
	if err != nil {
		return err
	}
	id, _ := result.LastInsertId()
	rec.ID = id
	return nil
}

func (s *sqliteStore) RecentSamples(ctx context.Context, deviceID string, limit int) ([]*SampleRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,device_id,voltage,current,power,timestamp FROM samples`
	args := []any{}
	if deviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*SampleRecord
	for rows.Next() {
		rec := &SampleRecord{}
		var ts string
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.Voltage, &rec.Current, &rec.Power, &ts); err != nil {
			return nil, err
		}
		rec.Timestamp, _ = parseTime(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) PruneSamples(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE timestamp < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ─── Findings ────────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendFinding(ctx context.Context, rec *FindingRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO findings(id, device_id, metric, kind, method, score, severity, message, value, expected, detected_at)
        VALUES(?,?,?,?,?,?,?,?,?,?,?)
    `,
		rec.ID, rec.DeviceID, rec.Metric, rec.Kind, rec.Method,
		rec.Score, rec.Severity, rec.Message, rec.Value, rec.Expected,
		rec.DetectedAt.UTC(),
	)
	return err
}

func (s *sqliteStore) QueryFindings(ctx context.Context, q FindingQuery) ([]*FindingRecord, error) {
	query := `SELECT id,device_id,metric,kind,method,score,severity,message,value,expected,detected_at FROM findings WHERE 1=1`
	args := []any{}

	if q.DeviceID != "" {
		query += ` AND device_id = ?`
		args = append(args, q.DeviceID)
	}
	if q.Metric != "" {
		query += ` AND metric = ?`
		args = append(args, q.Metric)
	}
	if q.Method != "" {
		query += ` AND method = ?`
		args = append(args, q.Method)
	}
	if q.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, q.Severity)
	}
	if !q.From.IsZero() {
		query += ` AND detected_at >= ?`
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		query += ` AND detected_at <= ?`
		args = append(args, q.To.UTC())
	}
	query += ` ORDER BY detected_at DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*FindingRecord
	for rows.Next() {
		rec := &FindingRecord{}
		var ts string
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.Metric, &rec.Kind, &rec.Method,
			&rec.Score, &rec.Severity, &rec.Message, &rec.Value, &rec.Expected, &ts); err != nil {
			return nil, err
		}
		rec.DetectedAt, _ = parseTime(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) GetFinding(ctx context.Context, id string) (*FindingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,device_id,metric,kind,method,score,severity,message,value,expected,detected_at FROM findings WHERE id=?`, id)
	rec := &FindingRecord{}
	var ts string
	if err := row.Scan(&rec.ID, &rec.DeviceID, &rec.Metric, &rec.Kind, &rec.Method,
		&rec.Score, &rec.Severity, &rec.Message, &rec.Value, &rec.Expected, &ts); err != nil {
		return nil, err
	}
	rec.DetectedAt, _ = parseTime(ts)
	return rec, nil
}

func (s *sqliteStore) FindingSummary(ctx context.Context, from, to time.Time) (map[string]int, error) {
	query := `SELECT severity, COUNT(*) FROM findings WHERE 1=1`
	args := []any{}
	if !from.IsZero() {
		query += ` AND detected_at >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND detected_at <= ?`
		args = append(args, to.UTC())
	}
	query += ` GROUP BY severity`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := map[string]int{}
	for rows.Next() {
		var sev string
		var count int
		if err := rows.Scan(&sev, &count); err != nil {
			return nil, err
		}
		summary[sev] = count
	}
	return summary, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// parseTime handles multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
