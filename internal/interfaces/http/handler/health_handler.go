package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/interfaces/http/middleware"
	"github.com/dreschagin/perf-audit-history/pkg/logger"
)

// ReadinessCheck проверяет одну внешнюю зависимость
type ReadinessCheck func(ctx context.Context) error

// HealthHandler отвечает на liveness и readiness пробы
type HealthHandler struct {
	checks  map[string]ReadinessCheck
	timeout time.Duration
	logger  *logger.Logger
}

// NewHealthHandler создает handler; checks может быть пустым
func NewHealthHandler(checks map[string]ReadinessCheck, log *logger.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second, logger: log}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := make(map[string]string)
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("Readiness check failed", "dependency", name, "error", err.Error())
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not ready",
			"failed": failed,
		})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
