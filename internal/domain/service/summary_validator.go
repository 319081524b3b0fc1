package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
)

// SummaryValidator предоставляет сервисы для валидации сводок истории (Domain Service)
type SummaryValidator struct {
	now func() time.Time
}

// NewSummaryValidator создает новый SummaryValidator
func NewSummaryValidator() *SummaryValidator {
	return &SummaryValidator{now: time.Now}
}

// maxClockSkew - допустимое опережение fetchTime относительно часов сервиса
const maxClockSkew = 5 * time.Minute

// Validate выполняет полную валидацию сводки перед добавлением в историю
func (v *SummaryValidator) Validate(summary *entity.AuditSummary) error {
	if summary == nil {
		return errors.New("summary cannot be nil")
	}

	if err := summary.Slot().Validate(); err != nil {
		return err
	}

	if summary.RunID() <= 0 {
		return errors.New("run id must be positive")
	}

	if summary.DetailID() == "" {
		return errors.New("detail id cannot be empty")
	}

	if summary.FetchTime().IsZero() {
		return errors.New("fetch time cannot be zero")
	}

	// Проверка, что прогон не из будущего
	if summary.FetchTime().After(v.now().Add(maxClockSkew)) {
		return errors.New("fetch time cannot be in the future")
	}

	if score, ok := summary.Score(); ok && !entity.IsValidScore(score) {
		return fmt.Errorf("score %v is outside [0, 1]", score)
	}

	for vital, m := range summary.WebVitals() {
		if err := vital.Validate(); err != nil {
			return err
		}
		if m.Unit() != vital.Unit() {
			return fmt.Errorf("invalid unit %q for %s", m.Unit(), vital)
		}
	}

	return nil
}

// ValidateBatch валидирует группу сводок
func (v *SummaryValidator) ValidateBatch(summaries []*entity.AuditSummary) []error {
	var errs []error

	for i, summary := range summaries {
		if err := v.Validate(summary); err != nil {
			errs = append(errs, fmt.Errorf("summary %d: %w", i, err))
		}
	}

	return errs
}
