package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
)

// DetailRepository хранит полные отчеты в сериализованном виде,
// чтобы вызывающий код не мог изменить сохраненный отчет.
type DetailRepository struct {
	mu      sync.RWMutex
	reports map[string][]byte
}

// NewDetailRepository создает пустое хранилище отчетов
func NewDetailRepository() *DetailRepository {
	return &DetailRepository{reports: make(map[string][]byte)}
}

// Save сохраняет отчет под id; повторная запись того же id запрещена
func (r *DetailRepository) Save(ctx context.Context, id string, report *entity.CanonicalReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.reports[id]; exists {
		return fmt.Errorf("report %s: %w", id, repository.ErrConflict)
	}
	r.reports[id] = data
	return nil
}

// FindByID возвращает копию отчета
func (r *DetailRepository) FindByID(ctx context.Context, id string) (*entity.CanonicalReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	data, ok := r.reports[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("report %s: %w", id, repository.ErrNotFound)
	}

	var report entity.CanonicalReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}
