package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
)

// ErrInvalidQuery - параметры чтения истории или отчета некорректны
var ErrInvalidQuery = errors.New("invalid query")

// GetReportDetailUseCase возвращает полный нормализованный отчет по detailID сводки
type GetReportDetailUseCase struct {
	details repository.ReportDetailRepository
}

// NewGetReportDetailUseCase создает новый use case
func NewGetReportDetailUseCase(details repository.ReportDetailRepository) *GetReportDetailUseCase {
	return &GetReportDetailUseCase{details: details}
}

// Execute возвращает отчет или ошибку, оборачивающую repository.ErrNotFound
func (uc *GetReportDetailUseCase) Execute(ctx context.Context, detailID string) (*entity.CanonicalReport, error) {
	if detailID == "" {
		return nil, fmt.Errorf("%w: detail id is required", ErrInvalidQuery)
	}

	report, err := uc.details.FindByID(ctx, detailID)
	if err != nil {
		return nil, fmt.Errorf("failed to load report detail %s: %w", detailID, err)
	}
	return report, nil
}
