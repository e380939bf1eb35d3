package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// readyTimeout bounds all dependency checks of one readiness probe.
const readyTimeout = 5 * time.Second

// Probe status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker is implemented by the health package's checkers.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependency is one readiness check. A nil Checker means the dependency runs
// in-process and is always ready. A failing optional dependency degrades the
// service without taking it out of rotation.
type Dependency struct {
	Name     string
	Checker  HealthChecker
	Optional bool
}

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	deps   []Dependency
	logger *slog.Logger
	now    func() time.Time
}

// NewHealthHandlers creates probe handlers over deps, checked in order.
func NewHealthHandlers(logger *slog.Logger, deps ...Dependency) *HealthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandlers{deps: deps, logger: logger, now: time.Now}
}

// HealthResponse is the body of both probes.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health. Answering at all is proof of liveness.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusOK, StatusHealthy, map[string]string{"runtime": "ok"})
}

// Ready handles GET /ready. It returns 503 when a required dependency fails.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.deps))
	status := StatusHealthy
	for _, dep := range h.deps {
		if dep.Checker == nil {
			checks[dep.Name] = "ok"
			continue
		}
		err := dep.Checker.HealthCheck(ctx)
		if err == nil {
			checks[dep.Name] = "ok"
			continue
		}

		checks[dep.Name] = "error"
		h.logger.WarnContext(ctx, "dependency check failed",
			slog.String("dependency", dep.Name),
			slog.Bool("optional", dep.Optional),
			slog.Any("error", err))
		if !dep.Optional {
			status = StatusUnhealthy
		} else if status == StatusHealthy {
			status = StatusDegraded
		}
	}

	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	h.write(w, r, code, status, checks)
}

func (h *HealthHandlers) write(w http.ResponseWriter, r *http.Request, code int, status string, checks map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	resp := HealthResponse{Status: status, Checks: checks, Timestamp: h.now().UTC().Format(time.RFC3339)}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode probe response", "error", err)
	}
}
