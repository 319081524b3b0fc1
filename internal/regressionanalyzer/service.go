package regressionanalyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/application/dto"
	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
	"github.com/dreschagin/perf-audit-history/internal/domain/service"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

// Service compares the two most recent runs of every slot.
type Service struct {
	history    repository.HistoryRepository
	aggregator *service.TrendAggregator
	threshold  float64
	staleAfter time.Duration
	now        func() time.Time
}

func NewService(history repository.HistoryRepository, threshold float64, staleAfter time.Duration) *Service {
	return &Service{
		history:    history,
		aggregator: service.NewTrendAggregator(),
		threshold:  threshold,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Evaluate assesses every slot the scope covers. A zero scope walks the whole history.
func (s *Service) Evaluate(ctx context.Context, scope SlotScope) (*CycleSummary, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	slots, err := s.history.ListSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	summary := newCycleSummary(s.now(), scope, len(slots))

	for _, slot := range slots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !scope.Covers(slot.SiteID, slot.PageID) {
			continue
		}

		runs, err := s.history.Trend(ctx, slot, valueobject.TimeRange{}, 2)
		if err != nil {
			return nil, fmt.Errorf("load trend for %s: %w", slot, err)
		}
		if len(runs) == 0 {
			continue
		}

		summary.add(s.assess(slot, runs, summary.GeneratedAt))
	}

	return summary, nil
}

// runs are ordered by ascending run id
func (s *Service) assess(slot valueobject.SlotKey, runs []*entity.AuditSummary, now time.Time) SlotAssessment {
	latest := runs[len(runs)-1]

	assessment := SlotAssessment{
		Slot:          dto.NewSlotDTO(slot),
		LatestRunID:   latest.RunID(),
		LatestFetchAt: latest.FetchTime(),
		Severity:      SeverityOK,
	}
	if score, ok := latest.Score(); ok {
		assessment.LatestScore = &score
	}

	if len(runs) == 2 {
		if regression := s.aggregator.DetectRegression(runs[0], latest, s.threshold); regression != nil {
			assessment.Severity = SeverityRegressed
			assessment.Regression = dto.NewRegressionDTO(regression)
			return assessment
		}
	}

	if s.staleAfter > 0 && now.Sub(latest.FetchTime()) > s.staleAfter {
		assessment.Severity = SeverityStale
	}

	return assessment
}
