package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

const summaryColumns = `
	site_id, page_id, profile_kind, profile_id, run_id, profile_name, tool_version,
	requested_url, final_url, fetch_time, score, web_vitals, config, attempt_count,
	detail_id, created_at, profile`

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
)

// HistoryRepository реализует repository.HistoryRepository для PostgreSQL.
// Последний runID слота хранится в audit_heads; продвижение головы и вставка
// сводки выполняются в одной транзакции.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository создает новый PostgreSQL repository
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append атомарно продвигает голову слота и добавляет сводку
func (r *HistoryRepository) Append(ctx context.Context, summary *entity.AuditSummary) error {
	model, err := ToDBModel(summary)
	if err != nil {
		return fmt.Errorf("failed to convert to DB model: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Условный upsert: строка возвращается, только если runID вырос
	var head int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO audit_heads (site_id, page_id, profile_kind, profile_id, last_run_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (site_id, page_id, profile_kind, profile_id) DO UPDATE
		SET last_run_id = EXCLUDED.last_run_id, updated_at = EXCLUDED.updated_at
		WHERE audit_heads.last_run_id < EXCLUDED.last_run_id
		RETURNING last_run_id
	`, model.SiteID, model.PageID, model.ProfileKind, model.ProfileID, model.RunID).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %d: %w", model.RunID, repository.ErrOutOfOrderRun)
	}
	if err != nil {
		return mapPQError("failed to advance slot head", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_summaries (`+summaryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		model.SiteID,
		model.PageID,
		model.ProfileKind,
		model.ProfileID,
		model.RunID,
		model.ProfileName,
		model.ToolVersion,
		model.RequestedURL,
		model.FinalURL,
		model.FetchTime,
		model.Score,
		model.WebVitals,
		model.Config,
		model.AttemptCount,
		model.DetailID,
		model.CreatedAt,
		model.Profile,
	)
	if err != nil {
		return mapPQError("failed to insert summary", err)
	}

	if err := tx.Commit(); err != nil {
		return mapPQError("failed to commit transaction", err)
	}

	return nil
}

// Trend возвращает сводки слота по возрастанию runID
func (r *HistoryRepository) Trend(
	ctx context.Context,
	slot valueobject.SlotKey,
	timeRange valueobject.TimeRange,
	limit int,
) ([]*entity.AuditSummary, error) {
	query, args := buildTrendQuery(slot, timeRange, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trend: %w", err)
	}
	defer rows.Close()

	summaries, err := r.scanSummaries(rows)
	if err != nil {
		return nil, err
	}

	// при limit выборка идет с конца, разворачиваем
	if limit > 0 {
		for i, j := 0, len(summaries)-1; i < j; i, j = i+1, j-1 {
			summaries[i], summaries[j] = summaries[j], summaries[i]
		}
	}
	return summaries, nil
}

// buildTrendQuery строит запрос истории; открытые границы окна опускаются
func buildTrendQuery(slot valueobject.SlotKey, timeRange valueobject.TimeRange, limit int) (string, []interface{}) {
	query := `SELECT ` + summaryColumns + `
		FROM audit_summaries
		WHERE site_id = $1 AND page_id = $2 AND profile_kind = $3 AND profile_id = $4`
	args := []interface{}{slot.SiteID, slot.PageID, string(slot.Profile.Kind()), slot.Profile.ID()}

	if start := timeRange.Start(); !start.IsZero() {
		args = append(args, start)
		query += fmt.Sprintf(" AND fetch_time >= $%d", len(args))
	}
	if end := timeRange.End(); !end.IsZero() {
		args = append(args, end)
		query += fmt.Sprintf(" AND fetch_time <= $%d", len(args))
	}

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" ORDER BY run_id DESC LIMIT $%d", len(args))
	} else {
		query += " ORDER BY run_id ASC"
	}

	return query, args
}

// Latest возвращает последнюю сводку слота
func (r *HistoryRepository) Latest(ctx context.Context, slot valueobject.SlotKey) (*entity.AuditSummary, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+summaryColumns+`
		FROM audit_summaries
		WHERE site_id = $1 AND page_id = $2 AND profile_kind = $3 AND profile_id = $4
		ORDER BY run_id DESC
		LIMIT 1
	`, slot.SiteID, slot.PageID, string(slot.Profile.Kind()), slot.Profile.ID())

	model, err := ScanSummaryRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("slot %s: %w", slot, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan summary: %w", err)
	}

	return ToEntity(model)
}

// LastRunID читает голову слота
func (r *HistoryRepository) LastRunID(ctx context.Context, slot valueobject.SlotKey) (int64, error) {
	var last int64
	err := r.db.QueryRowContext(ctx, `
		SELECT last_run_id FROM audit_heads
		WHERE site_id = $1 AND page_id = $2 AND profile_kind = $3 AND profile_id = $4
	`, slot.SiteID, slot.PageID, string(slot.Profile.Kind()), slot.Profile.ID()).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read slot head: %w", err)
	}
	return last, nil
}

// ListSlots возвращает все слоты с историей
func (r *HistoryRepository) ListSlots(ctx context.Context) ([]valueobject.SlotKey, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT site_id, page_id, profile_kind, profile_id
		FROM audit_heads
		ORDER BY site_id, page_id, profile_kind, profile_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()

	var slots []valueobject.SlotKey
	for rows.Next() {
		var siteID, pageID, kind, id string
		if err := rows.Scan(&siteID, &pageID, &kind, &id); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		profile, err := valueobject.ReconstructProfileKey(kind, id)
		if err != nil {
			return nil, fmt.Errorf("corrupt profile key: %w", err)
		}
		slots = append(slots, valueobject.SlotKey{SiteID: siteID, PageID: pageID, Profile: profile})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return slots, nil
}

// scanSummaries сканирует несколько строк в слайс сводок
func (r *HistoryRepository) scanSummaries(rows *sql.Rows) ([]*entity.AuditSummary, error) {
	summaries := make([]*entity.AuditSummary, 0)

	for rows.Next() {
		model, err := ScanSummaryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}

		summary, err := ToEntity(model)
		if err != nil {
			return nil, fmt.Errorf("failed to convert to entity: %w", err)
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return summaries, nil
}

// mapPQError переводит гонки записи в ErrConflict
func mapPQError(msg string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation, pqSerializationFailure:
			return fmt.Errorf("%s: %w", msg, repository.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
