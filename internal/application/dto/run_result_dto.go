package dto

import (
	"time"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
)

// SectionErrorDTO - раздел, пропущенный при нормализации
type SectionErrorDTO struct {
	AuditID string `json:"audit_id"`
	Error   string `json:"error"`
}

// AttemptResultDTO - успешно нормализованная попытка
type AttemptResultDTO struct {
	Index         int               `json:"index"`
	Score         *float64          `json:"score"`
	ToolVersion   string            `json:"tool_version"`
	FetchTime     time.Time         `json:"fetch_time"`
	SectionErrors []SectionErrorDTO `json:"section_errors,omitempty"`
}

// AttemptFailureDTO - попытка, отброшенная при нормализации
type AttemptFailureDTO struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// RunResultDTO - результат приема одного прогона
type RunResultDTO struct {
	BestScore      *float64            `json:"best_score"`
	BestScoreIndex int                 `json:"best_score_index"`
	Results        []AttemptResultDTO  `json:"results"`
	Failures       []AttemptFailureDTO `json:"failures,omitempty"`
	Summary        *AuditSummaryDTO    `json:"summary"`
	Regression     *RegressionDTO      `json:"regression,omitempty"`
}

// NewRunResultDTO собирает ответ из набора попыток.
// originalIndexes сопоставляет позицию в наборе с индексом исходного запроса.
func NewRunResultDTO(set *entity.AttemptSet, originalIndexes []int, summary *entity.AuditSummary) *RunResultDTO {
	attempts := set.Attempts()
	results := make([]AttemptResultDTO, 0, len(attempts))
	for i, report := range attempts {
		result := AttemptResultDTO{
			Index:       originalIndex(originalIndexes, i),
			Score:       validScore(report.OverallScore),
			ToolVersion: report.ToolVersion,
			FetchTime:   report.FetchTime,
		}
		for _, se := range report.SectionErrors {
			result.SectionErrors = append(result.SectionErrors, SectionErrorDTO{AuditID: string(se.AuditID), Error: se.Err.Error()})
		}
		results = append(results, result)
	}

	var failures []AttemptFailureDTO
	for _, f := range set.Failures() {
		failures = append(failures, AttemptFailureDTO{Index: f.Index, Error: f.Err.Error()})
	}

	out := &RunResultDTO{
		BestScore:      validScore(set.BestScore()),
		BestScoreIndex: set.BestScoreIndex(),
		Results:        results,
		Failures:       failures,
	}
	if summary != nil {
		out.Summary = FromSummary(summary)
	}
	return out
}

func originalIndex(indexes []int, i int) int {
	if i < len(indexes) {
		return indexes[i]
	}
	return i
}

func validScore(score float64) *float64 {
	if !entity.IsValidScore(score) {
		return nil
	}
	return &score
}
