package regressionanalyzer

import (
	"errors"
	"fmt"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/application/dto"
)

type Severity string

const (
	SeverityOK        Severity = "ok"
	SeverityStale     Severity = "stale"
	SeverityRegressed Severity = "regressed"
)

// ParseSeverity accepts an empty string as "any severity".
func ParseSeverity(raw string) (Severity, error) {
	switch s := Severity(raw); s {
	case "", SeverityOK, SeverityStale, SeverityRegressed:
		return s, nil
	default:
		return "", fmt.Errorf("unknown severity %q", raw)
	}
}

// SlotScope narrows a cycle or a summary read to one site or one page of a site.
// The zero value covers every slot.
type SlotScope struct {
	SiteID string `json:"site_id,omitempty"`
	PageID string `json:"page_id,omitempty"`
}

func (s SlotScope) IsZero() bool {
	return s.SiteID == "" && s.PageID == ""
}

func (s SlotScope) Validate() error {
	if s.PageID != "" && s.SiteID == "" {
		return errors.New("page_id requires site_id")
	}
	return nil
}

func (s SlotScope) Covers(siteID, pageID string) bool {
	if s.SiteID != "" && s.SiteID != siteID {
		return false
	}
	return s.PageID == "" || s.PageID == pageID
}

type SlotAssessment struct {
	Slot          dto.SlotDTO        `json:"slot"`
	LatestRunID   int64              `json:"latest_run_id"`
	LatestScore   *float64           `json:"latest_score"`
	LatestFetchAt time.Time          `json:"latest_fetch_at"`
	Severity      Severity           `json:"severity"`
	Regression    *dto.RegressionDTO `json:"regression,omitempty"`
	// NewRegression is set the first time a regressed run is seen by the runner
	NewRegression bool `json:"new_regression,omitempty"`
}

type CycleSummary struct {
	GeneratedAt    time.Time        `json:"generated_at"`
	Scope          SlotScope        `json:"scope"`
	SlotsTotal     int              `json:"slots_total"`
	RegressedCount int              `json:"regressed_count"`
	NewRegressions int              `json:"new_regressions"`
	StaleCount     int              `json:"stale_count"`
	OldestRunAge   time.Duration    `json:"oldest_run_age"`
	Assessments    []SlotAssessment `json:"assessments"`
}

func newCycleSummary(generatedAt time.Time, scope SlotScope, capacity int) *CycleSummary {
	return &CycleSummary{
		GeneratedAt: generatedAt,
		Scope:       scope,
		Assessments: make([]SlotAssessment, 0, capacity),
	}
}

func (c *CycleSummary) add(a SlotAssessment) {
	c.Assessments = append(c.Assessments, a)
	c.SlotsTotal++

	switch a.Severity {
	case SeverityRegressed:
		c.RegressedCount++
		if a.NewRegression {
			c.NewRegressions++
		}
	case SeverityStale:
		c.StaleCount++
	}

	if age := c.GeneratedAt.Sub(a.LatestFetchAt); age > c.OldestRunAge {
		c.OldestRunAge = age
	}
}

// Filter returns a copy holding only the matching assessments, with the counters recomputed.
func (c *CycleSummary) Filter(scope SlotScope, severity Severity) *CycleSummary {
	out := newCycleSummary(c.GeneratedAt, scope, len(c.Assessments))
	for _, a := range c.Assessments {
		if !scope.Covers(a.Slot.SiteID, a.Slot.PageID) {
			continue
		}
		if severity != "" && a.Severity != severity {
			continue
		}
		out.add(a)
	}
	return out
}

type Snapshot struct {
	StartedAt   time.Time     `json:"started_at"`
	Interval    time.Duration `json:"interval"`
	LastRunAt   time.Time     `json:"last_run_at"`
	LastError   string        `json:"last_error,omitempty"`
	LastSummary *CycleSummary `json:"last_summary,omitempty"`
}
