package regressionanalyzer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/application/dto"
	"github.com/dreschagin/perf-audit-history/pkg/logger"
)

// Runner drives periodic full cycles and on-demand scoped cycles over the same Service.
// Only full cycles feed the health snapshot; every cycle takes part in regression reporting.
type Runner struct {
	service  *Service
	log      *logger.Logger
	interval time.Duration
	timeout  time.Duration

	runMu sync.Mutex

	mu          sync.RWMutex
	startedAt   time.Time
	lastRunAt   time.Time
	lastError   string
	lastSummary *CycleSummary
	// last regressed run id reported per slot
	reported map[dto.SlotDTO]int64
}

func NewRunner(service *Service, log *logger.Logger, interval, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{
		service:   service,
		log:       log,
		interval:  interval,
		timeout:   timeout,
		startedAt: time.Now(),
		reported:  make(map[dto.SlotDTO]int64),
	}
}

func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// RunOnce stores the error state and logs it
			_, _ = r.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce evaluates every slot and records the outcome for /healthz and /readyz.
func (r *Runner) RunOnce(ctx context.Context) (*CycleSummary, error) {
	summary, err := r.evaluate(ctx, SlotScope{})
	runAt := time.Now()

	r.mu.Lock()
	r.lastRunAt = runAt
	if err != nil {
		r.lastError = err.Error()
	} else {
		r.lastError = ""
		r.lastSummary = summary
	}
	r.mu.Unlock()

	return summary, err
}

// RunScoped evaluates one site or page without touching the periodic cycle state.
func (r *Runner) RunScoped(ctx context.Context, scope SlotScope) (*CycleSummary, error) {
	if scope.IsZero() {
		return r.RunOnce(ctx)
	}
	return r.evaluate(ctx, scope)
}

func (r *Runner) evaluate(ctx context.Context, scope SlotScope) (*CycleSummary, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	summary, err := r.service.Evaluate(queryCtx, scope)
	if err != nil {
		wrappedErr := fmt.Errorf("analyzer cycle failed: %w", err)
		r.log.Error("Regression analyzer cycle failed", wrappedErr,
			"site", scope.SiteID,
			"page", scope.PageID,
		)
		return nil, wrappedErr
	}

	r.markNewRegressions(summary)

	if summary.SlotsTotal == 0 {
		r.log.Warn("Regression analyzer cycle found no history slots",
			"site", scope.SiteID,
			"page", scope.PageID,
		)
		return summary, nil
	}

	r.log.Info(
		"Regression analyzer cycle completed",
		"site", scope.SiteID,
		"page", scope.PageID,
		"slots_total", summary.SlotsTotal,
		"regressed_count", summary.RegressedCount,
		"new_regressions", summary.NewRegressions,
		"stale_count", summary.StaleCount,
		"oldest_run_age", summary.OldestRunAge.String(),
	)

	return summary, nil
}

// markNewRegressions warns once per regressed run. A slot that recovers is forgotten,
// so its next regression is reported again.
func (r *Runner) markNewRegressions(summary *CycleSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range summary.Assessments {
		a := &summary.Assessments[i]
		if a.Severity != SeverityRegressed {
			delete(r.reported, a.Slot)
			continue
		}
		if r.reported[a.Slot] == a.LatestRunID {
			continue
		}

		r.reported[a.Slot] = a.LatestRunID
		a.NewRegression = true
		summary.NewRegressions++

		r.log.Warn("Score regression",
			"site", a.Slot.SiteID,
			"page", a.Slot.PageID,
			"profile", a.Slot.ProfileID,
			"previous_run_id", a.Regression.PreviousRunID,
			"run_id", a.LatestRunID,
			"score_drop", a.Regression.ScoreDrop,
		)
	}
}

func (r *Runner) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := Snapshot{
		StartedAt: r.startedAt,
		Interval:  r.interval,
		LastRunAt: r.lastRunAt,
		LastError: r.lastError,
	}

	if r.lastSummary != nil {
		copiedSummary := *r.lastSummary
		copiedSummary.Assessments = append([]SlotAssessment(nil), r.lastSummary.Assessments...)
		snapshot.LastSummary = &copiedSummary
	}

	return snapshot
}
