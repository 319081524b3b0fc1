package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/application/usecase"
	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
	"github.com/dreschagin/perf-audit-history/internal/domain/schema"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
	"github.com/dreschagin/perf-audit-history/internal/interfaces/http/middleware"
	"github.com/dreschagin/perf-audit-history/pkg/logger"
)

const (
	maxTrendLimit       = 1000
	unboundedTrendLimit = "all"
)

// AuditAPIHandler обрабатывает API запросы истории аудитов
type AuditAPIHandler struct {
	ingestRunUC       *usecase.IngestRunUseCase
	getTrendUC        *usecase.GetTrendUseCase
	getLatestUC       *usecase.GetLatestUseCase
	getReportDetailUC *usecase.GetReportDetailUseCase
	maxBodyBytes      int64
	maxWindow         time.Duration
	logger            *logger.Logger
	now               func() time.Time
}

// NewAuditAPIHandler создает новый handler
func NewAuditAPIHandler(
	ingestRunUC *usecase.IngestRunUseCase,
	getTrendUC *usecase.GetTrendUseCase,
	getLatestUC *usecase.GetLatestUseCase,
	getReportDetailUC *usecase.GetReportDetailUseCase,
	maxBodyBytes int64,
	logger *logger.Logger,
) *AuditAPIHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 32 << 20
	}

	return &AuditAPIHandler{
		ingestRunUC:       ingestRunUC,
		getTrendUC:        getTrendUC,
		getLatestUC:       getLatestUC,
		getReportDetailUC: getReportDetailUC,
		maxBodyBytes:      maxBodyBytes,
		maxWindow:         366 * 24 * time.Hour,
		logger:            logger,
		now:               time.Now,
	}
}

type attemptRequest struct {
	DeclaredVersion string          `json:"declared_version"`
	Report          json.RawMessage `json:"report"`
}

type overridesRequest struct {
	Enabled            *bool    `json:"enabled"`
	BlockedURLPatterns []string `json:"blocked_url_patterns"`
}

type ingestRunRequest struct {
	SiteID      string           `json:"site_id"`
	PageID      string           `json:"page_id"`
	RunID       int64            `json:"run_id"`
	Device      string           `json:"device"`
	ToolVersion string           `json:"tool_version"`
	ProfileID   string           `json:"profile_id"`
	Overrides   overridesRequest `json:"overrides"`
	Attempts    []attemptRequest `json:"attempts"`
}

func (req ingestRunRequest) command() usecase.IngestRunCommand {
	attempts := make([]usecase.RawAttempt, 0, len(req.Attempts))
	for _, a := range req.Attempts {
		attempts = append(attempts, usecase.RawAttempt{Body: a.Report, DeclaredVersion: a.DeclaredVersion})
	}

	return usecase.IngestRunCommand{
		SiteID:      req.SiteID,
		PageID:      req.PageID,
		RunID:       req.RunID,
		Device:      req.Device,
		ToolVersion: req.ToolVersion,
		ProfileID:   req.ProfileID,
		Overrides: entity.ProfileOverrides{
			Enabled:            req.Overrides.Enabled,
			BlockedURLPatterns: req.Overrides.BlockedURLPatterns,
		},
		Attempts: attempts,
	}
}

// IngestRun принимает прогон: POST /api/v1/runs
func (h *AuditAPIHandler) IngestRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req ingestRunRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	result, err := h.ingestRunUC.Execute(r.Context(), req.command())
	if err != nil {
		h.writeUseCaseError(w, "Failed to ingest run", err,
			"site", req.SiteID, "page", req.PageID, "run_id", req.RunID)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, result)
}

// GetTrend возвращает историю слота: GET /api/v1/trend
func (h *AuditAPIHandler) GetTrend(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	slot, err := slotFromQuery(query.Get)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	timeRange, err := h.timeRangeFromQuery(query.Get)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := parseTrendLimit(query.Get("limit"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	trend, err := h.getTrendUC.Execute(r.Context(), slot, timeRange, limit)
	if err != nil {
		h.writeUseCaseError(w, "Failed to get trend", err, "slot", slot.String())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, trend)
}

// parseTrendLimit: без параметра - последние maxTrendLimit прогонов,
// "all" - вся история слота (0 для use case)
func parseTrendLimit(raw string) (int, error) {
	switch raw {
	case "":
		return maxTrendLimit, nil
	case unboundedTrendLimit:
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxTrendLimit {
		return 0, fmt.Errorf("limit must be within [1, %d] or %q", maxTrendLimit, unboundedTrendLimit)
	}
	return limit, nil
}

// GetLatest возвращает последнюю сводку слота: GET /api/v1/latest
func (h *AuditAPIHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	slot, err := slotFromQuery(r.URL.Query().Get)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.getLatestUC.Execute(r.Context(), slot)
	if err != nil {
		h.writeUseCaseError(w, "Failed to get latest run", err, "slot", slot.String())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, summary)
}

// GetReportDetail возвращает полный нормализованный отчет: GET /api/v1/details/{id}
func (h *AuditAPIHandler) GetReportDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		middleware.WriteError(w, http.StatusBadRequest, "detail id is required")
		return
	}

	report, err := h.getReportDetailUC.Execute(r.Context(), id)
	if err != nil {
		h.writeUseCaseError(w, "Failed to get report detail", err, "detail_id", id)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}

// slotFromQuery: явный profile_id или пара device + tool_version
func slotFromQuery(get func(string) string) (valueobject.SlotKey, error) {
	var (
		key valueobject.ProfileKey
		err error
	)
	if profileID := get("profile_id"); profileID != "" {
		key, err = valueobject.NewExplicitProfileKey(profileID)
	} else {
		key, err = valueobject.DeriveProfileKey(get("device"), get("tool_version"))
	}
	if err != nil {
		return valueobject.SlotKey{}, err
	}

	return valueobject.NewSlotKey(get("site_id"), get("page_id"), key)
}

// timeRangeFromQuery понимает from/to в RFC 3339 или window как длительность до текущего момента
func (h *AuditAPIHandler) timeRangeFromQuery(get func(string) string) (*valueobject.TimeRange, error) {
	if raw := get("window"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil {
			return nil, errors.New("invalid window duration")
		}
		if window <= 0 || window > h.maxWindow {
			return nil, errors.New("window out of allowed range")
		}
		tr, err := valueobject.NewTimeRangeFromDuration(h.now(), window)
		if err != nil {
			return nil, err
		}
		return &tr, nil
	}

	fromRaw, toRaw := get("from"), get("to")
	if fromRaw == "" && toRaw == "" {
		return nil, nil
	}

	var from, to time.Time
	var err error
	if fromRaw != "" {
		if from, err = time.Parse(time.RFC3339, fromRaw); err != nil {
			return nil, errors.New("from must be RFC 3339")
		}
	}
	if toRaw != "" {
		if to, err = time.Parse(time.RFC3339, toRaw); err != nil {
			return nil, errors.New("to must be RFC 3339")
		}
	}

	tr, err := valueobject.NewTimeRange(from, to)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

func (h *AuditAPIHandler) writeUseCaseError(w http.ResponseWriter, msg string, err error, args ...interface{}) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, err, args...)
		middleware.WriteError(w, status, "internal error")
		return
	}

	h.logger.Debug(msg, append(args, "status", status, "error", err.Error())...)
	middleware.WriteError(w, status, err.Error())
}

// statusFor сопоставляет ошибки use case с HTTP статусами
func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrProfileDisabled),
		errors.Is(err, usecase.ErrNoUsableAttempt),
		errors.Is(err, usecase.ErrInvalidSummary),
		errors.Is(err, schema.ErrUnsupportedVersion),
		errors.Is(err, schema.ErrMissingRequiredField),
		errors.Is(err, schema.ErrMalformedReport):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrOutOfOrderRun),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrInvalidQuery):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
