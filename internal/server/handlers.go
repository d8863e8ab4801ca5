package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gridpulse/gridpulse-detector/internal/db"
	"github.com/gridpulse/gridpulse-detector/internal/registry"
)

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response failed", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth handles liveness probes
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles readiness probes. The server is ready when its backing
// stores answer.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": "database unreachable",
			})
			return
		}
	}
	if s.registry != nil {
		if err := s.registry.Ping(ctx); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": "registry unreachable",
			})
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleStatus returns the engine snapshot
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

// handleAnomalies lists persisted findings with optional filters
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}

	q := db.FindingQuery{
		DeviceID: r.URL.Query().Get("device_id"),
		Metric:   r.URL.Query().Get("metric"),
		Method:   r.URL.Query().Get("method"),
		Severity: r.URL.Query().Get("severity"),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}
	var err error
	if q.From, err = queryTime(r, "from"); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid 'from' timestamp (want RFC3339)")
		return
	}
	if q.To, err = queryTime(r, "to"); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid 'to' timestamp (want RFC3339)")
		return
	}

	findings, err := s.store.QueryFindings(r.Context(), q)
	if err != nil {
		s.log.Error("query findings failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if findings == nil {
		findings = []*db.FindingRecord{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"findings": findings,
		"count":    len(findings),
	})
}

// handleAnomalySummary returns finding counts grouped by severity
func (s *Server) handleAnomalySummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}

	from, err := queryTime(r, "from")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid 'from' timestamp (want RFC3339)")
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid 'to' timestamp (want RFC3339)")
		return
	}

	summary, err := s.store.FindingSummary(r.Context(), from, to)
	if err != nil {
		s.log.Error("finding summary failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

// handleSamples lists recent raw samples
func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}

	samples, err := s.store.RecentSamples(r.Context(),
		r.URL.Query().Get("device_id"), queryInt(r, "limit", 100))
	if err != nil {
		s.log.Error("query samples failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if samples == nil {
		samples = []*db.SampleRecord{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"samples": samples,
		"count":   len(samples),
	})
}

// handleDevices lists registered devices
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.registry == nil {
		s.writeError(w, http.StatusServiceUnavailable, "registry disabled")
		return
	}

	devices, err := s.registry.List(r.Context())
	if err != nil {
		s.log.Error("list devices failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleDeviceByID serves GET/PUT/DELETE for a single device
func (s *Server) handleDeviceByID(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		s.writeError(w, http.StatusServiceUnavailable, "registry disabled")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "device not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		dev, err := s.registry.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, registry.ErrDeviceNotFound) {
				s.writeError(w, http.StatusNotFound, "device not found")
				return
			}
			s.log.Error("get device failed", zap.String("device_id", id), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		s.writeJSON(w, http.StatusOK, dev)

	case http.MethodPut:
		var body struct {
			Name     string `json:"name"`
			Location string `json:"location"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.registry.Update(r.Context(), id, body.Name, body.Location); err != nil {
			if errors.Is(err, registry.ErrDeviceNotFound) {
				s.writeError(w, http.StatusNotFound, "device not found")
				return
			}
			s.log.Error("update device failed", zap.String("device_id", id), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})

	case http.MethodDelete:
		if err := s.registry.Remove(r.Context(), id); err != nil {
			s.log.Error("remove device failed", zap.String("device_id", id), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "delete failed")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// queryTime parses an RFC3339 query parameter; absent means the zero time.
func queryTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
