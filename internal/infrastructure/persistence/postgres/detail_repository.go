package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
)

// DetailRepository хранит полные отчеты в JSONB
type DetailRepository struct {
	db *sql.DB
}

// NewDetailRepository создает новый PostgreSQL repository отчетов
func NewDetailRepository(db *sql.DB) *DetailRepository {
	return &DetailRepository{db: db}
}

// Save записывает отчет один раз
func (r *DetailRepository) Save(ctx context.Context, id string, report *entity.CanonicalReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO report_details (id, tool_version, requested_url, fetch_time, report, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, id, report.ToolVersion, report.RequestedURL, report.FetchTime, data)
	if err != nil {
		return mapPQError("failed to insert report detail", err)
	}

	return nil
}

// FindByID находит отчет по идентификатору
func (r *DetailRepository) FindByID(ctx context.Context, id string) (*entity.CanonicalReport, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT report FROM report_details WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("report %s: %w", id, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan report detail: %w", err)
	}

	var report entity.CanonicalReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report detail: %w", err)
	}
	return &report, nil
}
