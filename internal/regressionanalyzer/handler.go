package regressionanalyzer

import (
	"net/http"
	"strings"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/interfaces/http/middleware"
)

type Handler struct {
	runner *Runner
}

func NewHandler(runner *Runner) *Handler {
	return &Handler{runner: runner}
}

// Routes:
//
//	GET  /api/v1/regression-analyzer/summary?site_id=&page_id=&severity=
//	POST /api/v1/regression-analyzer/run?site_id=&page_id=
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)
	mux.HandleFunc("GET /api/v1/regression-analyzer/summary", h.summary)
	mux.HandleFunc("POST /api/v1/regression-analyzer/run", h.runNow)

	return mux
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.runner.Snapshot()

	response := map[string]any{
		"status":     "ok",
		"uptime":     time.Since(snapshot.StartedAt).Round(time.Second).String(),
		"last_run":   snapshot.LastRunAt.UTC().Format(time.RFC3339),
		"last_error": snapshot.LastError,
	}
	if s := snapshot.LastSummary; s != nil {
		response["slots_total"] = s.SlotsTotal
		response["regressed_count"] = s.RegressedCount
	}

	middleware.WriteJSON(w, http.StatusOK, response)
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.runner.Snapshot()
	switch {
	case snapshot.LastRunAt.IsZero():
		middleware.WriteError(w, http.StatusServiceUnavailable, "not ready: no analyzer cycle yet")
	case time.Since(snapshot.LastRunAt) > snapshot.Interval*3:
		middleware.WriteError(w, http.StatusServiceUnavailable, "not ready: stale analyzer cycle")
	case snapshot.LastError != "":
		middleware.WriteError(w, http.StatusServiceUnavailable, "not ready: last cycle failed")
	default:
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// summary serves the last full cycle, optionally narrowed to a site, a page or a severity.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	scope, err := scopeFromQuery(query.Get)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	severity, err := ParseSeverity(strings.TrimSpace(query.Get("severity")))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshot := h.runner.Snapshot()
	if snapshot.LastSummary != nil && (!scope.IsZero() || severity != "") {
		snapshot.LastSummary = snapshot.LastSummary.Filter(scope, severity)
	}

	middleware.WriteJSON(w, http.StatusOK, snapshot)
}

// runNow evaluates immediately. Without a scope it is a full cycle.
func (h *Handler) runNow(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromQuery(r.URL.Query().Get)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.runner.RunScoped(r.Context(), scope)
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, summary)
}

func scopeFromQuery(get func(string) string) (SlotScope, error) {
	scope := SlotScope{
		SiteID: strings.TrimSpace(get("site_id")),
		PageID: strings.TrimSpace(get("page_id")),
	}
	if err := scope.Validate(); err != nil {
		return SlotScope{}, err
	}
	return scope, nil
}
