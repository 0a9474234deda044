package rest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

const healthTimeout = 2 * time.Second

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus   `json:"status"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
	DurationMs int64          `json:"duration_ms"`
}

// HealthCheck checks one component. A failing Critical check makes the
// service unready; any other failure only degrades it.
type HealthCheck struct {
	Name     string
	Critical bool
	Run      func(ctx context.Context) (map[string]any, error)
}

// PostgresCheck pings db and reports pool statistics. A nil db always fails.
func PostgresCheck(db *sql.DB) HealthCheck {
	return HealthCheck{
		Name:     "postgres",
		Critical: true,
		Run:      func(ctx context.Context) (map[string]any, error) {
			if db == nil {
				return nil, errors.New("database not configured")
			}
			if err := db.PingContext(ctx); err != nil {
				return nil, err
			}
			stats := db.Stats()
			return map[string]any{
				"open_connections": stats.OpenConnections,
				"in_use":           stats.InUse,
				"idle":             stats.Idle,
			}, nil
		},
	}
}

type HealthHandler struct {
	checks []HealthCheck
}

func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// pingHandler reports liveness only
func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	writeHealthJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:     HealthHealthy,
		Components: make(map[string]CheckEntry, len(h.checks)),
	}

	for _, check := range h.checks {
		start := time.Now()
		details, err := check.Run(ctx)
		entry := CheckEntry{
			Status:     HealthHealthy,
			Details:    details,
			CheckedAt:  time.Now(),
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			entry.Status = HealthUnhealthy
			entry.Message = err.Error()
			switch {
			case check.Critical:
				resp.Status = HealthUnhealthy
			case resp.Status == HealthHealthy:
				resp.Status = HealthDegraded
			}
		}
		resp.Components[check.Name] = entry
	}
	resp.CheckedAt = time.Now()

	status := http.StatusOK
	if resp.Status == HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeHealthJSON(w, status, resp)
}

func writeHealthJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
