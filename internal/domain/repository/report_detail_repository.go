package repository

import (
	"context"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
)

// ReportDetailRepository хранит полный нормализованный отчет лучшей попытки (Port)
// Каждый отчет записывается один раз; сводки ссылаются на него по id.
type ReportDetailRepository interface {
	Save(ctx context.Context, id string, report *entity.CanonicalReport) error

	// FindByID возвращает отчет или ErrNotFound
	FindByID(ctx context.Context, id string) (*entity.CanonicalReport, error)
}
