package handler

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"
)

// Check is an optional readiness probe for a non-critical dependency. A
// failing check marks the service degraded but still ready.
type Check func(ctx context.Context) error

type HealthHandler struct {
	db     *sql.DB
	checks map[string]Check
}

func NewHealthHandler(db *sql.DB, checks map[string]Check) *HealthHandler {
	return &HealthHandler{db: db, checks: checks}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}
	httpStatus := http.StatusOK
	overallStatus := "ok"

	if err := h.db.PingContext(r.Context()); err != nil {
		slog.Warn("readiness check failed: database unreachable", "error", err)
		checks["database"] = "down"
		httpStatus = http.StatusServiceUnavailable
		overallStatus = "down"
	}

	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			checks[name] = "down"
			if overallStatus == "ok" {
				overallStatus = "degraded"
			}
			continue
		}
		checks[name] = "ok"
	}

	RespondJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
