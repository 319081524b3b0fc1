package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

// HistoryRepository реализует repository.HistoryRepository в памяти процесса.
// Проверка runID и добавление выполняются под одной блокировкой слота.
type HistoryRepository struct {
	mu    sync.RWMutex
	slots map[valueobject.SlotKey]*slotHistory
}

type slotHistory struct {
	mu   sync.RWMutex
	runs []*entity.AuditSummary
}

// NewHistoryRepository создает пустую историю
func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{
		slots: make(map[valueobject.SlotKey]*slotHistory),
	}
}

func (r *HistoryRepository) slot(key valueobject.SlotKey, create bool) *slotHistory {
	r.mu.RLock()
	h, ok := r.slots[key]
	r.mu.RUnlock()
	if ok || !create {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok = r.slots[key]; !ok {
		h = &slotHistory{}
		r.slots[key] = h
	}
	return h
}

// Append добавляет сводку, если ее runID больше последнего в слоте
func (r *HistoryRepository) Append(ctx context.Context, summary *entity.AuditSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h := r.slot(summary.Slot(), true)
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.runs); n > 0 && h.runs[n-1].RunID() >= summary.RunID() {
		return fmt.Errorf("run %d, last %d: %w", summary.RunID(), h.runs[n-1].RunID(), repository.ErrOutOfOrderRun)
	}
	h.runs = append(h.runs, summary)
	return nil
}

// Trend возвращает сводки слота по возрастанию runID
func (r *HistoryRepository) Trend(
	ctx context.Context,
	slot valueobject.SlotKey,
	timeRange valueobject.TimeRange,
	limit int,
) ([]*entity.AuditSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := r.slot(slot, false)
	if h == nil {
		return []*entity.AuditSummary{}, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*entity.AuditSummary, 0, len(h.runs))
	for _, s := range h.runs {
		if timeRange.Contains(s.FetchTime()) {
			out = append(out, s)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Latest возвращает последнюю сводку слота
func (r *HistoryRepository) Latest(ctx context.Context, slot valueobject.SlotKey) (*entity.AuditSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := r.slot(slot, false)
	if h == nil {
		return nil, repository.ErrNotFound
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.runs) == 0 {
		return nil, repository.ErrNotFound
	}
	return h.runs[len(h.runs)-1], nil
}

// LastRunID возвращает последний runID слота или 0
func (r *HistoryRepository) LastRunID(ctx context.Context, slot valueobject.SlotKey) (int64, error) {
	latest, err := r.Latest(ctx, slot)
	if err == repository.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return latest.RunID(), nil
}

// ListSlots возвращает непустые слоты в стабильном порядке
func (r *HistoryRepository) ListSlots(ctx context.Context) ([]valueobject.SlotKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	slots := make([]valueobject.SlotKey, 0, len(r.slots))
	for key, h := range r.slots {
		h.mu.RLock()
		nonEmpty := len(h.runs) > 0
		h.mu.RUnlock()
		if nonEmpty {
			slots = append(slots, key)
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].String() < slots[j].String()
	})
	return slots, nil
}
