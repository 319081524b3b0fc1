package repository

import (
	"context"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

// HistoryRepository определяет интерфейс append-only истории прогонов (Port)
// Реализация будет в Infrastructure слое
type HistoryRepository interface {
	// Append атомарно добавляет сводку, если ее runID больше последнего в слоте.
	// Возвращает ErrOutOfOrderRun или ErrConflict; повторов внутри нет.
	Append(ctx context.Context, summary *entity.AuditSummary) error

	// Trend возвращает сводки слота по возрастанию runID, отфильтрованные по fetchTime.
	// limit <= 0 означает без ограничения; при ограничении возвращаются последние limit.
	Trend(ctx context.Context, slot valueobject.SlotKey, timeRange valueobject.TimeRange, limit int) ([]*entity.AuditSummary, error)

	// Latest возвращает последнюю сводку слота или ErrNotFound
	Latest(ctx context.Context, slot valueobject.SlotKey) (*entity.AuditSummary, error)

	// LastRunID возвращает последний runID слота (0, если слот пуст)
	LastRunID(ctx context.Context, slot valueobject.SlotKey) (int64, error)

	// ListSlots возвращает все непустые слоты
	ListSlots(ctx context.Context) ([]valueobject.SlotKey, error)
}
