package service

import (
	"errors"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
)

// ErrEmptyAttemptSet - ни одна попытка не была нормализована
var ErrEmptyAttemptSet = errors.New("empty attempt set")

// AttemptSelector выбирает представительную попытку среди повторных измерений (Domain Service)
type AttemptSelector struct{}

// NewAttemptSelector создает новый AttemptSelector
func NewAttemptSelector() *AttemptSelector {
	return &AttemptSelector{}
}

// SelectBest возвращает набор попыток с индексом максимальной оценки.
// При равенстве побеждает меньший индекс. NaN и оценки вне [0, 1]
// ниже любой валидной; если валидных нет, выбирается первая попытка.
func (s *AttemptSelector) SelectBest(attempts []*entity.CanonicalReport) (*entity.AttemptSet, error) {
	return s.SelectBestWithFailures(attempts, nil)
}

// SelectBestWithFailures дополнительно сохраняет в наборе отброшенные попытки
func (s *AttemptSelector) SelectBestWithFailures(
	attempts []*entity.CanonicalReport,
	failures []entity.AttemptFailure,
) (*entity.AttemptSet, error) {
	if len(attempts) == 0 {
		return nil, ErrEmptyAttemptSet
	}

	best := -1
	for i, attempt := range attempts {
		if attempt == nil || !attempt.HasValidScore() {
			continue
		}
		// строгое сравнение оставляет первый индекс при равенстве
		if best < 0 || attempt.OverallScore > attempts[best].OverallScore {
			best = i
		}
	}
	if best < 0 {
		best = firstNonNil(attempts)
	}
	if best < 0 {
		return nil, ErrEmptyAttemptSet
	}

	return entity.NewAttemptSet(attempts, best, failures)
}

func firstNonNil(attempts []*entity.CanonicalReport) int {
	for i, attempt := range attempts {
		if attempt != nil {
			return i
		}
	}
	return -1
}
