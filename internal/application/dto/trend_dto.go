package dto

import "github.com/dreschagin/perf-audit-history/internal/domain/service"

// TrendStatsDTO содержит агрегаты оценок по окну
type TrendStatsDTO struct {
	Count   int     `json:"count"`
	Scored  int     `json:"scored"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	P50     float64 `json:"p50"`
	P90     float64 `json:"p90"`
}

// TrendDTO представляет историю слота с агрегатами
type TrendDTO struct {
	Slot  SlotDTO            `json:"slot"`
	Runs  []*AuditSummaryDTO `json:"runs"`
	Stats TrendStatsDTO      `json:"stats"`
}

// NewTrendStatsDTO конвертирует статистику домена в DTO
func NewTrendStatsDTO(stats service.TrendStats) TrendStatsDTO {
	return TrendStatsDTO(stats)
}

// VitalDeltaDTO - изменение одной метрики
type VitalDeltaDTO struct {
	Vital    string  `json:"vital"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
	Delta    float64 `json:"delta"`
}

// RegressionDTO описывает падение оценки между соседними прогонами
type RegressionDTO struct {
	PreviousRunID int64           `json:"previous_run_id"`
	CurrentRunID  int64           `json:"current_run_id"`
	PreviousScore float64         `json:"previous_score"`
	CurrentScore  float64         `json:"current_score"`
	ScoreDrop     float64         `json:"score_drop"`
	Vitals        []VitalDeltaDTO `json:"vitals,omitempty"`
}

// NewRegressionDTO конвертирует регрессию домена в DTO; nil остается nil
func NewRegressionDTO(r *service.Regression) *RegressionDTO {
	if r == nil {
		return nil
	}

	vitals := make([]VitalDeltaDTO, 0, len(r.Vitals))
	for _, v := range r.Vitals {
		vitals = append(vitals, VitalDeltaDTO{
			Vital:    v.Vital.String(),
			Previous: v.Previous,
			Current:  v.Current,
			Delta:    v.Delta,
		})
	}

	return &RegressionDTO{
		PreviousRunID: r.PreviousRunID,
		CurrentRunID:  r.CurrentRunID,
		PreviousScore: r.PreviousScore,
		CurrentScore:  r.CurrentScore,
		ScoreDrop:     r.ScoreDrop,
		Vitals:        vitals,
	}
}
