package regressionanalyzer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
	"github.com/dreschagin/perf-audit-history/internal/infrastructure/persistence/memory"
	"github.com/dreschagin/perf-audit-history/pkg/logger"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func appendRun(t *testing.T, repo *memory.HistoryRepository, page string, runID int64, score float64, at time.Time) {
	t.Helper()
	appendSiteRun(t, repo, "shop", page, runID, score, at)
}

func appendSiteRun(t *testing.T, repo *memory.HistoryRepository, site, page string, runID int64, score float64, at time.Time) {
	t.Helper()

	key, err := valueobject.DeriveProfileKey("mobile", "10.1.0")
	if err != nil {
		t.Fatalf("DeriveProfileKey() error = %v", err)
	}
	slot, err := valueobject.NewSlotKey(site, page, key)
	if err != nil {
		t.Fatalf("NewSlotKey() error = %v", err)
	}

	s := score
	summary := entity.ReconstructAuditSummary(slot, runID, entity.ProfileSnapshot{Name: "mobile / lighthouse 10.1.0"}, "10.1.0",
		"https://example.com/"+page, "https://example.com/"+page, at, &s, nil, entity.ConfigSettings{}, 1, "d", at)
	if err := repo.Append(context.Background(), summary); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
}

func newTestService(repo *memory.HistoryRepository) *Service {
	svc := NewService(repo, 0.1, 24*time.Hour)
	svc.now = func() time.Time { return now }
	return svc
}

func TestService_Evaluate(t *testing.T) {
	repo := memory.NewHistoryRepository()

	// regressed: 0.95 -> 0.70
	appendRun(t, repo, "cart", 1, 0.95, now.Add(-2*time.Hour))
	appendRun(t, repo, "cart", 2, 0.70, now.Add(-time.Hour))
	// stable
	appendRun(t, repo, "home", 1, 0.90, now.Add(-2*time.Hour))
	appendRun(t, repo, "home", 2, 0.88, now.Add(-time.Hour))
	// stale single run
	appendRun(t, repo, "search", 7, 0.80, now.Add(-72*time.Hour))

	summary, err := newTestService(repo).Evaluate(context.Background(), SlotScope{})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if summary.SlotsTotal != 3 || summary.RegressedCount != 1 || summary.StaleCount != 1 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if summary.OldestRunAge != 72*time.Hour {
		t.Fatalf("expected oldest run age 72h, got %v", summary.OldestRunAge)
	}

	bySeverity := map[string]SlotAssessment{}
	for _, a := range summary.Assessments {
		bySeverity[a.Slot.PageID] = a
	}
	cart := bySeverity["cart"]
	if cart.Severity != SeverityRegressed || cart.Regression == nil || cart.Regression.CurrentRunID != 2 {
		t.Fatalf("unexpected cart assessment: %+v", cart)
	}
	if bySeverity["home"].Severity != SeverityOK {
		t.Fatalf("expected home ok, got %s", bySeverity["home"].Severity)
	}
	if bySeverity["search"].Severity != SeverityStale || bySeverity["search"].LatestRunID != 7 {
		t.Fatalf("unexpected search assessment: %+v", bySeverity["search"])
	}
}

func TestService_CanceledContext(t *testing.T) {
	repo := memory.NewHistoryRepository()
	appendRun(t, repo, "home", 1, 0.9, now)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestService(repo).Evaluate(ctx, SlotScope{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestService_EvaluateScoped(t *testing.T) {
	repo := memory.NewHistoryRepository()
	appendRun(t, repo, "cart", 1, 0.95, now.Add(-2*time.Hour))
	appendRun(t, repo, "cart", 2, 0.70, now.Add(-time.Hour))
	appendRun(t, repo, "home", 1, 0.90, now.Add(-time.Hour))
	appendSiteRun(t, repo, "blog", "home", 1, 0.90, now.Add(-time.Hour))

	tests := []struct {
		name      string
		scope     SlotScope
		wantSlots int
		wantErr   bool
	}{
		{name: "all", scope: SlotScope{}, wantSlots: 3},
		{name: "site", scope: SlotScope{SiteID: "shop"}, wantSlots: 2},
		{name: "page", scope: SlotScope{SiteID: "shop", PageID: "cart"}, wantSlots: 1},
		{name: "same page id on another site", scope: SlotScope{SiteID: "blog", PageID: "home"}, wantSlots: 1},
		{name: "unknown site", scope: SlotScope{SiteID: "docs"}, wantSlots: 0},
		{name: "page without site", scope: SlotScope{PageID: "home"}, wantErr: true},
	}

	svc := newTestService(repo)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := svc.Evaluate(context.Background(), tt.scope)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if summary.SlotsTotal != tt.wantSlots || summary.Scope != tt.scope {
				t.Fatalf("expected %d slots in scope %+v, got %+v", tt.wantSlots, tt.scope, summary)
			}
			for _, a := range summary.Assessments {
				if !tt.scope.Covers(a.Slot.SiteID, a.Slot.PageID) {
					t.Fatalf("assessment outside scope: %+v", a.Slot)
				}
			}
		})
	}
}

func TestCycleSummary_Filter(t *testing.T) {
	repo := memory.NewHistoryRepository()
	appendRun(t, repo, "cart", 1, 0.95, now.Add(-2*time.Hour))
	appendRun(t, repo, "cart", 2, 0.70, now.Add(-time.Hour))
	appendRun(t, repo, "search", 7, 0.80, now.Add(-72*time.Hour))
	appendSiteRun(t, repo, "blog", "home", 1, 0.90, now.Add(-time.Hour))

	full, err := newTestService(repo).Evaluate(context.Background(), SlotScope{})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	regressed := full.Filter(SlotScope{}, SeverityRegressed)
	if regressed.SlotsTotal != 1 || regressed.RegressedCount != 1 || regressed.StaleCount != 0 {
		t.Fatalf("unexpected regressed view: %+v", regressed)
	}

	shop := full.Filter(SlotScope{SiteID: "shop"}, "")
	if shop.SlotsTotal != 2 || shop.StaleCount != 1 || shop.OldestRunAge != 72*time.Hour {
		t.Fatalf("unexpected shop view: %+v", shop)
	}

	blog := full.Filter(SlotScope{SiteID: "blog"}, "")
	if blog.SlotsTotal != 1 || blog.OldestRunAge != time.Hour {
		t.Fatalf("unexpected blog view: %+v", blog)
	}

	if full.SlotsTotal != 3 {
		t.Fatal("filter must not modify the source summary")
	}
}

func TestRunner_ReportsEachRegressionOnce(t *testing.T) {
	repo := memory.NewHistoryRepository()
	appendRun(t, repo, "cart", 1, 0.95, now.Add(-3*time.Hour))
	appendRun(t, repo, "cart", 2, 0.70, now.Add(-2*time.Hour))

	runner := NewRunner(newTestService(repo), logger.New("error"), time.Minute, time.Second)
	ctx := context.Background()

	first, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if first.RegressedCount != 1 || first.NewRegressions != 1 || !first.Assessments[0].NewRegression {
		t.Fatalf("expected a new regression, got %+v", first)
	}

	second, _ := runner.RunOnce(ctx)
	if second.RegressedCount != 1 || second.NewRegressions != 0 {
		t.Fatalf("regression of run 2 must be reported once, got %+v", second)
	}

	// Scoped runs share the reported set
	scoped, _ := runner.RunScoped(ctx, SlotScope{SiteID: "shop", PageID: "cart"})
	if scoped.NewRegressions != 0 {
		t.Fatalf("scoped run repeated a known regression: %+v", scoped)
	}

	appendRun(t, repo, "cart", 3, 0.50, now.Add(-time.Hour))
	third, _ := runner.RunOnce(ctx)
	if third.NewRegressions != 1 || third.Assessments[0].LatestRunID != 3 {
		t.Fatalf("expected regression of run 3 to be new, got %+v", third)
	}

	// a recovered slot reports its next regression again
	appendRun(t, repo, "cart", 4, 0.90, now.Add(-30*time.Minute))
	if recovered, _ := runner.RunOnce(ctx); recovered.RegressedCount != 0 {
		t.Fatalf("expected recovery, got %+v", recovered)
	}
	appendRun(t, repo, "cart", 5, 0.50, now.Add(-10*time.Minute))
	if again, _ := runner.RunOnce(ctx); again.NewRegressions != 1 {
		t.Fatalf("expected regression after recovery to be new, got %+v", again)
	}
}

func TestRunner_ScopedRunKeepsCycleState(t *testing.T) {
	repo := memory.NewHistoryRepository()
	appendRun(t, repo, "home", 1, 0.9, now)
	appendRun(t, repo, "cart", 1, 0.9, now)

	runner := NewRunner(newTestService(repo), logger.New("error"), time.Minute, time.Second)

	summary, err := runner.RunScoped(context.Background(), SlotScope{SiteID: "shop", PageID: "home"})
	if err != nil {
		t.Fatalf("RunScoped() error = %v", err)
	}
	if summary.SlotsTotal != 1 {
		t.Fatalf("expected 1 slot, got %d", summary.SlotsTotal)
	}

	snapshot := runner.Snapshot()
	if !snapshot.LastRunAt.IsZero() || snapshot.LastSummary != nil {
		t.Fatalf("scoped run must not count as a cycle: %+v", snapshot)
	}

	if _, err := runner.RunScoped(context.Background(), SlotScope{PageID: "home"}); err == nil {
		t.Fatal("expected error for page without site")
	}
	if !runner.Snapshot().LastRunAt.IsZero() {
		t.Fatal("failed scoped run must not count as a cycle")
	}
}

func TestHandler_SummaryFilters(t *testing.T) {
	repo := memory.NewHistoryRepository()
	appendRun(t, repo, "cart", 1, 0.95, now.Add(-2*time.Hour))
	appendRun(t, repo, "cart", 2, 0.70, now.Add(-time.Hour))
	appendRun(t, repo, "search", 7, 0.80, now.Add(-72*time.Hour))
	appendSiteRun(t, repo, "blog", "home", 1, 0.90, now.Add(-time.Hour))

	runner := NewRunner(newTestService(repo), logger.New("error"), time.Minute, time.Second)
	if _, err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	routes := NewHandler(runner).Routes()

	tests := []struct {
		name      string
		query     string
		status    int
		wantSlots int
	}{
		{name: "unfiltered", query: "", status: http.StatusOK, wantSlots: 3},
		{name: "site", query: "?site_id=shop", status: http.StatusOK, wantSlots: 2},
		{name: "page", query: "?site_id=shop&page_id=cart", status: http.StatusOK, wantSlots: 1},
		{name: "severity", query: "?severity=stale", status: http.StatusOK, wantSlots: 1},
		{name: "site and severity", query: "?site_id=blog&severity=regressed", status: http.StatusOK, wantSlots: 0},
		{name: "unknown severity", query: "?severity=bad", status: http.StatusBadRequest},
		{name: "page without site", query: "?page_id=cart", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/regression-analyzer/summary"+tt.query, nil))
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}

			var snapshot Snapshot
			if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
				t.Fatalf("decode snapshot: %v", err)
			}
			if snapshot.LastSummary == nil || snapshot.LastSummary.SlotsTotal != tt.wantSlots {
				t.Fatalf("expected %d slots, got %+v", tt.wantSlots, snapshot.LastSummary)
			}
		})
	}
}

func TestHandler_RunNowAndReady(t *testing.T) {
	repo := memory.NewHistoryRepository()
	appendRun(t, repo, "home", 1, 0.9, time.Now().Add(-time.Minute))

	runner := NewRunner(NewService(repo, 0.1, time.Hour), logger.New("error"), time.Minute, time.Second)
	routes := NewHandler(runner).Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before first cycle, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/regression-analyzer/run", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var summary CycleSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.SlotsTotal != 1 {
		t.Fatalf("expected 1 slot, got %d", summary.SlotsTotal)
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected ready after cycle, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/regression-analyzer/run?site_id=shop&page_id=home", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for scoped run, got %d: %s", rec.Code, rec.Body.String())
	}
	var scoped CycleSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &scoped); err != nil {
		t.Fatalf("decode scoped summary: %v", err)
	}
	if scoped.Scope.PageID != "home" || scoped.SlotsTotal != 1 {
		t.Fatalf("unexpected scoped summary: %+v", scoped)
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/regression-analyzer/run?page_id=home", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for page without site, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/regression-analyzer/run", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET run, got %d", rec.Code)
	}

	snapshot := runner.Snapshot()
	if snapshot.LastSummary == nil || snapshot.LastError != "" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}
