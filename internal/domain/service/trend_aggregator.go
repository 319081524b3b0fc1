package service

import (
	"errors"
	"sort"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

// TrendStats - сводная статистика оценок по окну истории
type TrendStats struct {
	Count   int
	Scored  int
	Average float64
	Min     float64
	Max     float64
	P50     float64
	P90     float64
}

// VitalDelta - изменение одной метрики между двумя прогонами
type VitalDelta struct {
	Vital    valueobject.WebVital
	Previous float64
	Current  float64
	Delta    float64
}

// Regression описывает ухудшение между соседними прогонами
type Regression struct {
	PreviousRunID int64
	CurrentRunID  int64
	PreviousScore float64
	CurrentScore  float64
	ScoreDrop     float64
	Vitals        []VitalDelta
}

// TrendAggregator предоставляет сервисы агрегации истории прогонов (Domain Service)
// Содержит бизнес-логику, которая не принадлежит одной конкретной сводке
type TrendAggregator struct{}

// NewTrendAggregator создает новый TrendAggregator
func NewTrendAggregator() *TrendAggregator {
	return &TrendAggregator{}
}

var errNoScores = errors.New("no scored runs to aggregate")

// scores собирает только валидные оценки в порядке истории
func scores(history []*entity.AuditSummary) []float64 {
	values := make([]float64, 0, len(history))
	for _, s := range history {
		if score, ok := s.Score(); ok {
			values = append(values, score)
		}
	}
	return values
}

// CalculateAverage вычисляет среднюю оценку
func (a *TrendAggregator) CalculateAverage(history []*entity.AuditSummary) (float64, error) {
	values := scores(history)
	if len(values) == 0 {
		return 0, errNoScores
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values)), nil
}

// CalculateMin находит минимальную оценку
func (a *TrendAggregator) CalculateMin(history []*entity.AuditSummary) (float64, error) {
	values := scores(history)
	if len(values) == 0 {
		return 0, errNoScores
	}

	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}

	return min, nil
}

// CalculateMax находит максимальную оценку
func (a *TrendAggregator) CalculateMax(history []*entity.AuditSummary) (float64, error) {
	values := scores(history)
	if len(values) == 0 {
		return 0, errNoScores
	}

	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}

	return max, nil
}

// CalculatePercentile вычисляет процентиль оценок (nearest-rank снизу)
func (a *TrendAggregator) CalculatePercentile(history []*entity.AuditSummary, percentile float64) (float64, error) {
	values := scores(history)
	if len(values) == 0 {
		return 0, errNoScores
	}

	if percentile < 0 || percentile > 100 {
		return 0, errors.New("percentile must be between 0 and 100")
	}

	sort.Float64s(values)
	index := int(float64(len(values)-1) * (percentile / 100.0))

	return values[index], nil
}

// Summarize считает всю статистику окна; пустое окно дает нулевые значения
func (a *TrendAggregator) Summarize(history []*entity.AuditSummary) TrendStats {
	stats := TrendStats{Count: len(history), Scored: len(scores(history))}
	if stats.Scored == 0 {
		return stats
	}

	stats.Average, _ = a.CalculateAverage(history)
	stats.Min, _ = a.CalculateMin(history)
	stats.Max, _ = a.CalculateMax(history)
	stats.P50, _ = a.CalculatePercentile(history, 50)
	stats.P90, _ = a.CalculatePercentile(history, 90)
	return stats
}

// DetectRegression сравнивает два прогона; nil означает отсутствие регрессии.
// threshold - минимальное падение оценки (в долях от 1), считающееся регрессией.
func (a *TrendAggregator) DetectRegression(previous, current *entity.AuditSummary, threshold float64) *Regression {
	if previous == nil || current == nil {
		return nil
	}

	prevScore, okPrev := previous.Score()
	curScore, okCur := current.Score()
	if !okPrev || !okCur {
		return nil
	}

	drop := prevScore - curScore
	if drop <= threshold {
		return nil
	}

	return &Regression{
		PreviousRunID: previous.RunID(),
		CurrentRunID:  current.RunID(),
		PreviousScore: prevScore,
		CurrentScore:  curScore,
		ScoreDrop:     drop,
		Vitals:        a.CompareVitals(previous, current),
	}
}

// CompareVitals возвращает изменения метрик, присутствующих в обоих прогонах
func (a *TrendAggregator) CompareVitals(previous, current *entity.AuditSummary) []VitalDelta {
	var deltas []VitalDelta
	for _, vital := range valueobject.AllWebVitals() {
		prev, okPrev := previous.Metric(vital)
		cur, okCur := current.Metric(vital)
		if !okPrev || !okCur {
			continue
		}
		deltas = append(deltas, VitalDelta{
			Vital:    vital,
			Previous: prev.Raw(),
			Current:  cur.Raw(),
			Delta:    cur.Raw() - prev.Raw(),
		})
	}
	return deltas
}

// SortByRunID сортирует сводки по номеру прогона
func (a *TrendAggregator) SortByRunID(history []*entity.AuditSummary, descending bool) []*entity.AuditSummary {
	sorted := make([]*entity.AuditSummary, len(history))
	copy(sorted, history)

	sort.Slice(sorted, func(i, j int) bool {
		if descending {
			return sorted[i].RunID() > sorted[j].RunID()
		}
		return sorted[i].RunID() < sorted[j].RunID()
	})

	return sorted
}
