package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gridpulse/gridpulse-detector/internal/db"
	"github.com/gridpulse/gridpulse-detector/internal/detector"
	"github.com/gridpulse/gridpulse-detector/internal/telemetry"
)

func newTestServer(t *testing.T, store db.Store) (*Server, *http.ServeMux) {
	t.Helper()

	engine := detector.NewEngine(detector.Config{}, zap.NewNop())
	srv, err := NewServer(&Config{Port: 0}, engine, store, nil, zap.NewNop())
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.registerHandlers(mux)
	return srv, mux
}

func TestHealthEndpoint(t *testing.T) {
	_, mux := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestHealthRejectsPost(t *testing.T) {
	_, mux := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusEndpointReflectsEngine(t *testing.T) {
	srv, mux := newTestServer(t, nil)

	for i := 0; i < 5; i++ {
		_, err := srv.engine.Ingest(telemetry.Sample{
			DeviceID:  "meter-1",
			Timestamp: time.Now(),
			Voltage:   230,
			Current:   5,
			Power:     1150,
		})
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status detector.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 5, status.HistorySize)
	assert.False(t, status.ModelTrained)
}

func TestAnomaliesWithoutStore(t *testing.T) {
	_, mux := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/anomalies", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAnomaliesQuery(t *testing.T) {
	store, err := db.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.AppendFinding(context.Background(), &db.FindingRecord{
		ID: "f1", DeviceID: "meter-1", Metric: "power", Method: "z_score",
		Severity: "high", DetectedAt: time.Now().UTC(),
	}))

	_, mux := newTestServer(t, store)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/anomalies?device_id=meter-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Findings []db.FindingRecord `json:"findings"`
		Count    int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "f1", body.Findings[0].ID)
}

func TestAnomaliesRejectsBadTimestamp(t *testing.T) {
	store, err := db.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, mux := newTestServer(t, store)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/anomalies?from=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDevicesWithoutRegistry(t *testing.T) {
	_, mux := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000"})

	allowed := httptest.NewRequest(http.MethodGet, "/ws/findings", nil)
	allowed.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, check(allowed))

	denied := httptest.NewRequest(http.MethodGet, "/ws/findings", nil)
	denied.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(denied))

	// Non-browser clients send no Origin header.
	noOrigin := httptest.NewRequest(http.MethodGet, "/ws/findings", nil)
	assert.True(t, check(noOrigin))

	wildcard := originChecker([]string{"*"})
	assert.True(t, wildcard(denied))
}
