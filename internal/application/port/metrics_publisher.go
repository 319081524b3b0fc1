package port

import (
	"context"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
)

// MetricsPublisher выгружает оценки и web vitals принятых прогонов
// во внешнюю систему метрик.
type MetricsPublisher interface {
	PublishBatch(ctx context.Context, summaries []*entity.AuditSummary) error
	// PublishSingle отправляет одну сводку без буферизации
	PublishSingle(ctx context.Context, summary *entity.AuditSummary) error
	// Flush вызывается при остановке процесса
	Flush(ctx context.Context) error
}
