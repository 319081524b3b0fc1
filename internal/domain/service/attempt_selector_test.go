package service

import (
	"errors"
	"math"
	"testing"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
)

func reportsWithScores(scores ...float64) []*entity.CanonicalReport {
	reports := make([]*entity.CanonicalReport, len(scores))
	for i, s := range scores {
		reports[i] = &entity.CanonicalReport{OverallScore: s}
	}
	return reports
}

func TestAttemptSelector_SelectBest(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name      string
		scores    []float64
		wantIndex int
	}{
		{name: "single attempt", scores: []float64{0.5}, wantIndex: 0},
		{name: "tie keeps first index", scores: []float64{0.42, 0.91, 0.91}, wantIndex: 1},
		{name: "max at end", scores: []float64{0.1, 0.2, 0.3}, wantIndex: 2},
		{name: "NaN never wins", scores: []float64{nan, 0.01, nan}, wantIndex: 1},
		{name: "NaN first then valid", scores: []float64{nan, 0.9}, wantIndex: 1},
		{name: "out of range ranks lowest", scores: []float64{1.5, 0.3, -0.2}, wantIndex: 1},
		{name: "infinity ranks lowest", scores: []float64{math.Inf(1), 0.0}, wantIndex: 1},
		{name: "all invalid picks first", scores: []float64{nan, nan}, wantIndex: 0},
		{name: "zero is a valid score", scores: []float64{nan, 0}, wantIndex: 1},
	}

	selector := NewAttemptSelector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := reportsWithScores(tt.scores...)

			set, err := selector.SelectBest(attempts)
			if err != nil {
				t.Fatalf("SelectBest() error = %v", err)
			}
			if set.BestScoreIndex() != tt.wantIndex {
				t.Fatalf("expected index %d, got %d", tt.wantIndex, set.BestScoreIndex())
			}
			if set.Len() != len(tt.scores) {
				t.Fatalf("expected %d attempts, got %d", len(tt.scores), set.Len())
			}
			if set.Best() != attempts[tt.wantIndex] {
				t.Fatalf("best attempt does not match index")
			}
		})
	}
}

func TestAttemptSelector_BestScoreIsMaxOfValid(t *testing.T) {
	attempts := reportsWithScores(0.3, math.NaN(), 0.77, 0.5, 0.77)

	set, err := NewAttemptSelector().SelectBest(attempts)
	if err != nil {
		t.Fatalf("SelectBest() error = %v", err)
	}

	for i, a := range attempts {
		if a.HasValidScore() && a.OverallScore > set.BestScore() {
			t.Fatalf("attempt %d has a higher score %v than best %v", i, a.OverallScore, set.BestScore())
		}
	}
	if set.BestScoreIndex() != 2 {
		t.Fatalf("expected first index of the max, got %d", set.BestScoreIndex())
	}
}

func TestAttemptSelector_Empty(t *testing.T) {
	_, err := NewAttemptSelector().SelectBest(nil)
	if !errors.Is(err, ErrEmptyAttemptSet) {
		t.Fatalf("expected ErrEmptyAttemptSet, got %v", err)
	}

	_, err = NewAttemptSelector().SelectBest([]*entity.CanonicalReport{nil, nil})
	if !errors.Is(err, ErrEmptyAttemptSet) {
		t.Fatalf("expected ErrEmptyAttemptSet for nil attempts, got %v", err)
	}
}

func TestAttemptSelector_KeepsFailures(t *testing.T) {
	failures := []entity.AttemptFailure{{Index: 1, Err: errors.New("bad json")}}

	set, err := NewAttemptSelector().SelectBestWithFailures(reportsWithScores(0.4), failures)
	if err != nil {
		t.Fatalf("SelectBestWithFailures() error = %v", err)
	}
	if len(set.Failures()) != 1 || set.Failures()[0].Index != 1 {
		t.Fatalf("unexpected failures: %+v", set.Failures())
	}
}
