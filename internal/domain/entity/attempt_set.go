package entity

import (
	"errors"
	"fmt"
)

// AttemptFailure - попытка, которую не удалось нормализовать
type AttemptFailure struct {
	Index int
	Err   error
}

// AttemptSet - успешно нормализованные попытки одного прогона и индекс лучшей
type AttemptSet struct {
	attempts       []*CanonicalReport
	bestScoreIndex int
	failures       []AttemptFailure
}

// NewAttemptSet проверяет инвариант 0 <= best < len(attempts)
func NewAttemptSet(attempts []*CanonicalReport, bestScoreIndex int, failures []AttemptFailure) (*AttemptSet, error) {
	if len(attempts) == 0 {
		return nil, errors.New("attempt set cannot be empty")
	}
	if bestScoreIndex < 0 || bestScoreIndex >= len(attempts) {
		return nil, fmt.Errorf("best score index %d out of range [0, %d)", bestScoreIndex, len(attempts))
	}
	if attempts[bestScoreIndex] == nil {
		return nil, fmt.Errorf("best attempt %d is nil", bestScoreIndex)
	}

	return &AttemptSet{
		attempts:       append([]*CanonicalReport(nil), attempts...),
		bestScoreIndex: bestScoreIndex,
		failures:       append([]AttemptFailure(nil), failures...),
	}, nil
}

// Attempts возвращает копию списка попыток
func (s *AttemptSet) Attempts() []*CanonicalReport {
	return append([]*CanonicalReport(nil), s.attempts...)
}

// Len возвращает количество попыток
func (s *AttemptSet) Len() int {
	return len(s.attempts)
}

// BestScoreIndex возвращает индекс лучшей попытки
func (s *AttemptSet) BestScoreIndex() int {
	return s.bestScoreIndex
}

// Best возвращает лучшую попытку
func (s *AttemptSet) Best() *CanonicalReport {
	return s.attempts[s.bestScoreIndex]
}

// Failures возвращает попытки, отброшенные при нормализации
func (s *AttemptSet) Failures() []AttemptFailure {
	return append([]AttemptFailure(nil), s.failures...)
}

// BestScore возвращает оценку лучшей попытки (NaN, если валидных оценок нет)
func (s *AttemptSet) BestScore() float64 {
	return s.attempts[s.bestScoreIndex].OverallScore
}
