package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dreschagin/perf-audit-history/internal/application/dto"
	"github.com/dreschagin/perf-audit-history/internal/application/port"
	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
	"github.com/dreschagin/perf-audit-history/internal/domain/service"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
	"github.com/dreschagin/perf-audit-history/pkg/logger"
)

var (
	// ErrInvalidCommand - команда приема не прошла проверку
	ErrInvalidCommand = errors.New("invalid ingest command")
	// ErrProfileDisabled - профиль явно выключен, прогон не записывается
	ErrProfileDisabled = errors.New("audit profile is disabled")
	// ErrNoUsableAttempt - ни одна попытка не нормализовалась
	ErrNoUsableAttempt = errors.New("no attempt could be normalized")
)

// RawAttempt - один сырой отчет Lighthouse
type RawAttempt struct {
	Body            []byte
	DeclaredVersion string
}

// IngestRunCommand описывает один прогон: несколько попыток одного измерения
type IngestRunCommand struct {
	SiteID      string
	PageID      string
	RunID       int64
	Device      string
	ToolVersion string
	ProfileID   string
	Overrides   entity.ProfileOverrides
	Attempts    []RawAttempt
}

type IngestRunConfig struct {
	MaxAttempts         int
	Concurrency         int
	RegressionThreshold float64
	SubjectPrefix       string
}

// IngestRunUseCase нормализует попытки, выбирает лучшую и добавляет прогон в историю
type IngestRunUseCase struct {
	normalizer port.ReportNormalizer
	selector   *service.AttemptSelector
	resolver   *service.ProfileResolver
	aggregator *service.TrendAggregator
	history    repository.HistoryRepository
	details    repository.ReportDetailRepository
	appender   *AppendHistoryUseCase
	events     port.EventPublisher
	publisher  port.MetricsPublisher
	metrics    port.IngestMetrics
	config     IngestRunConfig
	logger     *logger.Logger

	newID func() string
	now   func() time.Time
}

// NewIngestRunUseCase создает новый use case.
// events, publisher и metrics необязательны (nil отключает).
func NewIngestRunUseCase(
	normalizer port.ReportNormalizer,
	selector *service.AttemptSelector,
	resolver *service.ProfileResolver,
	aggregator *service.TrendAggregator,
	history repository.HistoryRepository,
	details repository.ReportDetailRepository,
	appender *AppendHistoryUseCase,
	events port.EventPublisher,
	publisher port.MetricsPublisher,
	metrics port.IngestMetrics,
	config IngestRunConfig,
	logger *logger.Logger,
) *IngestRunUseCase {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &IngestRunUseCase{
		normalizer: normalizer,
		selector:   selector,
		resolver:   resolver,
		aggregator: aggregator,
		history:    history,
		details:    details,
		appender:   appender,
		events:     events,
		publisher:  publisher,
		metrics:    metrics,
		config:     config,
		logger:     logger,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// Execute выполняет прием прогона
func (uc *IngestRunUseCase) Execute(ctx context.Context, cmd IngestRunCommand) (*dto.RunResultDTO, error) {
	if err := uc.validate(cmd); err != nil {
		uc.observeRun(port.RunOutcomeRejected)
		return nil, err
	}

	// 1. Нормализуем попытки параллельно
	reports, indexes, failures, err := uc.normalizeAttempts(ctx, cmd.Attempts)
	if err != nil {
		uc.observeRun(port.RunOutcomeFailed)
		return nil, err
	}
	if len(reports) == 0 {
		uc.observeRun(port.RunOutcomeRejected)
		return nil, fmt.Errorf("%w: %s", ErrNoUsableAttempt, joinFailures(failures))
	}

	// 2. Выбираем лучшую попытку
	attempts, err := uc.selector.SelectBestWithFailures(reports, failures)
	if err != nil {
		uc.observeRun(port.RunOutcomeRejected)
		return nil, fmt.Errorf("%w: %v", ErrNoUsableAttempt, err)
	}
	best := attempts.Best()

	// 3. Определяем профиль
	toolVersion := strings.TrimSpace(cmd.ToolVersion)
	if toolVersion == "" {
		toolVersion = best.ToolVersion
	}
	profile, err := uc.resolver.Resolve(cmd.Device, toolVersion, cmd.ProfileID, cmd.Overrides)
	if err != nil {
		uc.observeRun(port.RunOutcomeRejected)
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if !profile.IsEnabled() {
		uc.observeRun(port.RunOutcomeRejected)
		return nil, fmt.Errorf("%w: %s", ErrProfileDisabled, profile.Name())
	}

	slot, err := valueobject.NewSlotKey(cmd.SiteID, cmd.PageID, profile.Key())
	if err != nil {
		uc.observeRun(port.RunOutcomeRejected)
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	// 4. Ранняя проверка порядка, чтобы не сохранять отчет, который не попадет в историю.
	// Окончательное решение принимает Append.
	last, err := uc.history.LastRunID(ctx, slot)
	if err != nil {
		uc.observeRun(port.RunOutcomeFailed)
		return nil, fmt.Errorf("failed to read last run id: %w", err)
	}
	if cmd.RunID <= last {
		uc.observeRun(port.RunOutcomeRejected)
		return nil, fmt.Errorf("run %d after %d: %w", cmd.RunID, last, repository.ErrOutOfOrderRun)
	}

	previous, err := uc.history.Latest(ctx, slot)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		uc.observeRun(port.RunOutcomeFailed)
		return nil, fmt.Errorf("failed to read latest run: %w", err)
	}

	// 5. Строим и проверяем сводку до записи полного отчета:
	// отвергнутый прогон не должен оставлять отчет без ссылки из истории
	detailID := uc.newID()
	summary, err := entity.NewAuditSummary(slot, cmd.RunID, profile, attempts, detailID)
	if err != nil {
		uc.observeRun(port.RunOutcomeRejected)
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := uc.appender.Validate(summary); err != nil {
		uc.observeRun(port.RunOutcomeRejected)
		uc.logger.Warn("Run summary rejected", "slot", slot.String(), "run_id", cmd.RunID, "error", err.Error())
		return nil, err
	}

	// 6. Сохраняем полный отчет и добавляем сводку
	if err := uc.details.Save(ctx, detailID, best); err != nil {
		uc.observeRun(port.RunOutcomeFailed)
		uc.logger.Error("Failed to save report detail", err, "slot", slot.String(), "run_id", cmd.RunID)
		return nil, fmt.Errorf("failed to save report detail: %w", err)
	}

	if err := uc.appender.Execute(ctx, summary); err != nil {
		if errors.Is(err, repository.ErrOutOfOrderRun) || errors.Is(err, repository.ErrConflict) {
			uc.observeRun(port.RunOutcomeRejected)
		} else {
			uc.observeRun(port.RunOutcomeFailed)
		}
		return nil, err
	}
	uc.observeRun(port.RunOutcomeAppended)

	result := dto.NewRunResultDTO(attempts, indexes, summary)

	// 7. Побочные эффекты не влияют на результат
	regression := uc.aggregator.DetectRegression(previous, summary, uc.config.RegressionThreshold)
	if regression != nil {
		result.Regression = dto.NewRegressionDTO(regression)
		if uc.metrics != nil {
			uc.metrics.ObserveRegression()
		}
		uc.logger.Warn("Score regression detected",
			"slot", slot.String(),
			"previous_run_id", regression.PreviousRunID,
			"run_id", regression.CurrentRunID,
			"drop", regression.ScoreDrop)
	}

	uc.publishEvents(ctx, summary, result.Regression)

	if uc.publisher != nil {
		if err := uc.publisher.PublishBatch(ctx, []*entity.AuditSummary{summary}); err != nil {
			uc.logger.Error("Failed to publish run metrics", err, "slot", slot.String())
		}
	}

	return result, nil
}

func (uc *IngestRunUseCase) validate(cmd IngestRunCommand) error {
	if strings.TrimSpace(cmd.SiteID) == "" {
		return fmt.Errorf("%w: site_id is required", ErrInvalidCommand)
	}
	if strings.TrimSpace(cmd.PageID) == "" {
		return fmt.Errorf("%w: page_id is required", ErrInvalidCommand)
	}
	if cmd.RunID <= 0 {
		return fmt.Errorf("%w: run_id must be positive", ErrInvalidCommand)
	}
	if len(cmd.Attempts) == 0 {
		return fmt.Errorf("%w: at least one attempt is required", ErrInvalidCommand)
	}
	if uc.config.MaxAttempts > 0 && len(cmd.Attempts) > uc.config.MaxAttempts {
		return fmt.Errorf("%w: too many attempts (%d > %d)", ErrInvalidCommand, len(cmd.Attempts), uc.config.MaxAttempts)
	}
	if strings.TrimSpace(cmd.ProfileID) == "" && strings.TrimSpace(cmd.Device) == "" {
		return fmt.Errorf("%w: device or profile_id is required", ErrInvalidCommand)
	}
	return nil
}

// normalizeAttempts возвращает успешные отчеты в исходном порядке,
// их исходные индексы и отброшенные попытки
func (uc *IngestRunUseCase) normalizeAttempts(
	ctx context.Context,
	raw []RawAttempt,
) ([]*entity.CanonicalReport, []int, []entity.AttemptFailure, error) {
	results := make([]*entity.CanonicalReport, len(raw))
	errs := make([]error, len(raw))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.config.Concurrency)

	started := uc.now()
	for i := range raw {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], errs[i] = uc.normalizer.Normalize(raw[i].Body, raw[i].DeclaredVersion)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, fmt.Errorf("normalization interrupted: %w", err)
	}
	if uc.metrics != nil {
		uc.metrics.ObserveNormalizeDuration(uc.now().Sub(started))
	}

	reports := make([]*entity.CanonicalReport, 0, len(raw))
	indexes := make([]int, 0, len(raw))
	var failures []entity.AttemptFailure
	sectionErrors := 0

	for i := range raw {
		if errs[i] != nil {
			uc.logger.Warn("Attempt rejected", "index", i, "error", errs[i].Error())
			failures = append(failures, entity.AttemptFailure{Index: i, Err: errs[i]})
			continue
		}
		sectionErrors += len(results[i].SectionErrors)
		reports = append(reports, results[i])
		indexes = append(indexes, i)
	}

	if uc.metrics != nil {
		uc.metrics.ObserveAttempts(len(reports), len(failures))
		uc.metrics.ObserveSectionErrors(sectionErrors)
	}

	return reports, indexes, failures, nil
}

func (uc *IngestRunUseCase) publishEvents(ctx context.Context, summary *entity.AuditSummary, regression *dto.RegressionDTO) {
	if uc.events == nil {
		return
	}

	slot := dto.NewSlotDTO(summary.Slot())
	now := uc.now().UTC()

	var score *float64
	if s, ok := summary.Score(); ok {
		score = &s
	}

	appended := dto.RunAppendedEvent{
		Slot:       slot,
		RunID:      summary.RunID(),
		Score:      score,
		DetailID:   summary.DetailID(),
		FetchTime:  summary.FetchTime(),
		AppendedAt: now,
	}
	if err := uc.events.PublishEvent(ctx, uc.subject(dto.SubjectRunAppended), appended); err != nil {
		uc.logger.Error("Failed to publish run event", err, "run_id", summary.RunID())
	}

	if regression == nil {
		return
	}
	event := dto.RegressionDetectedEvent{Slot: slot, Regression: regression, DetectedAt: now}
	if err := uc.events.PublishEvent(ctx, uc.subject(dto.SubjectRegressionDetected), event); err != nil {
		uc.logger.Error("Failed to publish regression event", err, "run_id", summary.RunID())
	}
}

func (uc *IngestRunUseCase) subject(name string) string {
	prefix := strings.Trim(uc.config.SubjectPrefix, ".")
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func (uc *IngestRunUseCase) observeRun(outcome string) {
	if uc.metrics != nil {
		uc.metrics.ObserveRun(outcome)
	}
}

func joinFailures(failures []entity.AttemptFailure) string {
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("attempt %d: %v", f.Index, f.Err))
	}
	return strings.Join(parts, "; ")
}
