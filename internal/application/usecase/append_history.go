package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreschagin/perf-audit-history/internal/application/port"
	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
	"github.com/dreschagin/perf-audit-history/internal/domain/service"
	"github.com/dreschagin/perf-audit-history/pkg/logger"
)

// ErrInvalidSummary - сводка прогона не прошла доменную валидацию
var ErrInvalidSummary = errors.New("invalid run summary")

// AppendHistoryUseCase добавляет сводку прогона в историю слота
type AppendHistoryUseCase struct {
	repository repository.HistoryRepository
	validator  *service.SummaryValidator
	cache      port.Cache
	logger     *logger.Logger
}

// NewAppendHistoryUseCase создает новый use case
func NewAppendHistoryUseCase(
	repository repository.HistoryRepository,
	validator *service.SummaryValidator,
	cache port.Cache,
	logger *logger.Logger,
) *AppendHistoryUseCase {
	return &AppendHistoryUseCase{
		repository: repository,
		validator:  validator,
		cache:      cache,
		logger:     logger,
	}
}

// Execute выполняет добавление. Ошибки ErrOutOfOrderRun и ErrConflict
// возвращаются вызывающему без повторов.
func (uc *AppendHistoryUseCase) Execute(ctx context.Context, summary *entity.AuditSummary) error {
	if err := uc.Validate(summary); err != nil {
		return err
	}

	if err := uc.repository.Append(ctx, summary); err != nil {
		uc.logger.Warn("History append rejected",
			"slot", summary.Slot().String(),
			"run_id", summary.RunID(),
			"error", err.Error())
		return fmt.Errorf("failed to append run %d: %w", summary.RunID(), err)
	}

	uc.logger.Info("Run appended to history",
		"slot", summary.Slot().String(),
		"run_id", summary.RunID())

	uc.invalidate(ctx, summary)
	return nil
}

// Validate проверяет сводку без записи; ошибка оборачивает ErrInvalidSummary
func (uc *AppendHistoryUseCase) Validate(summary *entity.AuditSummary) error {
	if err := uc.validator.Validate(summary); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSummary, err)
	}
	return nil
}

// invalidate сбрасывает latest и все окна trend слота
func (uc *AppendHistoryUseCase) invalidate(ctx context.Context, summary *entity.AuditSummary) {
	if uc.cache == nil {
		return
	}

	slot := summary.Slot()
	if err := uc.cache.Delete(ctx, latestCacheKey(slot)); err != nil {
		uc.logger.Warn("Failed to invalidate latest cache", "slot", slot.String(), "error", err.Error())
	}
	if err := uc.cache.DeletePattern(ctx, trendCachePattern(slot)); err != nil {
		uc.logger.Warn("Failed to invalidate trend cache", "slot", slot.String(), "error", err.Error())
	}
}
