package usecase

import (
	"context"
	"fmt"

	"github.com/dreschagin/perf-audit-history/internal/application/dto"
	"github.com/dreschagin/perf-audit-history/internal/application/port"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
	"github.com/dreschagin/perf-audit-history/pkg/logger"
)

// GetLatestUseCase возвращает последний прогон слота.
// Читает тот же журнал, что и GetTrendUseCase.
type GetLatestUseCase struct {
	repository repository.HistoryRepository
	cache      port.Cache
	logger     *logger.Logger
}

// NewGetLatestUseCase создает новый use case
func NewGetLatestUseCase(
	repository repository.HistoryRepository,
	cache port.Cache,
	logger *logger.Logger,
) *GetLatestUseCase {
	return &GetLatestUseCase{
		repository: repository,
		cache:      cache,
		logger:     logger,
	}
}

// Execute возвращает сводку или ошибку, оборачивающую repository.ErrNotFound
func (uc *GetLatestUseCase) Execute(ctx context.Context, slot valueobject.SlotKey) (*dto.AuditSummaryDTO, error) {
	if err := slot.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid slot: %v", ErrInvalidQuery, err)
	}

	cacheKey := latestCacheKey(slot)
	if uc.cache != nil {
		// RunID в кеше служит версией: прогоны неизменяемы, и запись
		// с RunID текущей головы не может быть устаревшей
		head, err := uc.repository.LastRunID(ctx, slot)
		if err != nil {
			return nil, fmt.Errorf("failed to read slot head: %w", err)
		}
		if head > 0 {
			var cached dto.AuditSummaryDTO
			if err := uc.cache.Get(ctx, cacheKey, &cached); err == nil && cached.RunID == head {
				uc.logger.Debug("Cache hit for latest run", "slot", slot.String())
				return &cached, nil
			}
		}
	}

	summary, err := uc.repository.Latest(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest run: %w", err)
	}

	result := dto.FromSummary(summary)

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, cacheKey, result); err != nil {
			uc.logger.Warn("Failed to cache latest run", "slot", slot.String(), "error", err.Error())
		}
	}

	return result, nil
}
