package usecase

import (
	"context"
	"fmt"

	"github.com/dreschagin/perf-audit-history/internal/application/dto"
	"github.com/dreschagin/perf-audit-history/internal/application/port"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
	"github.com/dreschagin/perf-audit-history/internal/domain/service"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
	"github.com/dreschagin/perf-audit-history/pkg/logger"
)

// cachedTrend - trend вместе с головой слота на момент чтения.
// Запись действительна, пока голова слота не сдвинулась.
type cachedTrend struct {
	LastRunID int64         `json:"last_run_id"`
	Trend     *dto.TrendDTO `json:"trend"`
}

// GetTrendUseCase возвращает историю слота с агрегатами и кешированием
type GetTrendUseCase struct {
	repository repository.HistoryRepository
	aggregator *service.TrendAggregator
	cache      port.Cache
	logger     *logger.Logger
}

// NewGetTrendUseCase создает новый use case
func NewGetTrendUseCase(
	repository repository.HistoryRepository,
	aggregator *service.TrendAggregator,
	cache port.Cache,
	logger *logger.Logger,
) *GetTrendUseCase {
	return &GetTrendUseCase{
		repository: repository,
		aggregator: aggregator,
		cache:      cache,
		logger:     logger,
	}
}

// Execute возвращает прогоны слота по возрастанию runID.
// nil timeRange означает всю историю, limit <= 0 - без ограничения.
func (uc *GetTrendUseCase) Execute(
	ctx context.Context,
	slot valueobject.SlotKey,
	timeRange *valueobject.TimeRange,
	limit int,
) (*dto.TrendDTO, error) {
	if err := slot.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid slot: %v", ErrInvalidQuery, err)
	}

	var window valueobject.TimeRange
	if timeRange != nil {
		window = *timeRange
	}

	// Если кеш не настроен, используем стандартный путь
	if uc.cache == nil {
		return uc.executeWithoutCache(ctx, slot, window, limit)
	}

	// Голова читается до данных: запись с той же головой не может быть старше журнала
	head, err := uc.repository.LastRunID(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to read slot head: %w", err)
	}

	cacheKey := trendCacheKey(slot, window, limit)

	var cached cachedTrend
	if err := uc.cache.Get(ctx, cacheKey, &cached); err == nil && cached.Trend != nil && cached.LastRunID == head {
		uc.logger.Debug("Cache hit for trend", "slot", slot.String(), "runs", len(cached.Trend.Runs))
		return cached.Trend, nil
	}

	uc.logger.Debug("Cache miss for trend, fetching from store", "slot", slot.String(), "last_run_id", head)

	trend, err := uc.executeWithoutCache(ctx, slot, window, limit)
	if err != nil {
		return nil, err
	}

	if err := uc.cache.Set(ctx, cacheKey, cachedTrend{LastRunID: head, Trend: trend}); err != nil {
		uc.logger.Warn("Failed to cache trend", "slot", slot.String(), "error", err.Error())
	}

	return trend, nil
}

func (uc *GetTrendUseCase) executeWithoutCache(
	ctx context.Context,
	slot valueobject.SlotKey,
	window valueobject.TimeRange,
	limit int,
) (*dto.TrendDTO, error) {
	history, err := uc.repository.Trend(ctx, slot, window, limit)
	if err != nil {
		uc.logger.Error("Failed to fetch trend", err, "slot", slot.String())
		return nil, fmt.Errorf("failed to fetch trend: %w", err)
	}

	sorted := uc.aggregator.SortByRunID(history, false)

	return &dto.TrendDTO{
		Slot:  dto.NewSlotDTO(slot),
		Runs:  dto.ToSummaryDTOs(sorted),
		Stats: dto.NewTrendStatsDTO(uc.aggregator.Summarize(sorted)),
	}, nil
}
