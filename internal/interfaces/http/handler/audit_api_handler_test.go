package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/application/usecase"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
	"github.com/dreschagin/perf-audit-history/internal/domain/schema"
	"github.com/dreschagin/perf-audit-history/pkg/logger"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: usecase.ErrInvalidCommand, want: http.StatusBadRequest},
		{err: fmt.Errorf("%w: invalid slot", usecase.ErrInvalidQuery), want: http.StatusBadRequest},
		{err: usecase.ErrProfileDisabled, want: http.StatusUnprocessableEntity},
		{err: usecase.ErrNoUsableAttempt, want: http.StatusUnprocessableEntity},
		{err: fmt.Errorf("%w: fetch time cannot be in the future", usecase.ErrInvalidSummary), want: http.StatusUnprocessableEntity},
		{err: fmt.Errorf("attempt 0: %w", schema.ErrUnsupportedVersion), want: http.StatusUnprocessableEntity},
		{err: schema.ErrMissingRequiredField, want: http.StatusUnprocessableEntity},
		{err: schema.ErrMalformedReport, want: http.StatusUnprocessableEntity},
		{err: fmt.Errorf("run 2 after 3: %w", repository.ErrOutOfOrderRun), want: http.StatusConflict},
		{err: repository.ErrConflict, want: http.StatusConflict},
		{err: fmt.Errorf("report x: %w", repository.ErrNotFound), want: http.StatusNotFound},
		{err: errors.New("database is down"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSlotFromQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		want    string
		wantErr bool
	}{
		{
			name:  "derived",
			query: url.Values{"site_id": {"shop"}, "page_id": {"home"}, "device": {"Mobile"}, "tool_version": {"10.1.0"}},
			want:  "shop/home/derived:mobile|10.1.0",
		},
		{
			name:  "explicit wins over device",
			query: url.Values{"site_id": {"shop"}, "page_id": {"home"}, "device": {"mobile"}, "profile_id": {"checkout"}},
			want:  "shop/home/explicit:checkout",
		},
		{
			name:    "missing tool version",
			query:   url.Values{"site_id": {"shop"}, "page_id": {"home"}, "device": {"mobile"}},
			wantErr: true,
		},
		{
			name:    "missing page",
			query:   url.Values{"site_id": {"shop"}, "profile_id": {"checkout"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, err := slotFromQuery(tt.query.Get)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got slot %s", slot)
				}
				return
			}
			if err != nil {
				t.Fatalf("slotFromQuery() error = %v", err)
			}
			if slot.String() != tt.want {
				t.Fatalf("slot = %s, want %s", slot, tt.want)
			}
		})
	}
}

func TestTimeRangeFromQuery(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := NewAuditAPIHandler(nil, nil, nil, nil, 0, logger.New("error"))
	h.now = func() time.Time { return now }

	t.Run("empty means whole history", func(t *testing.T) {
		tr, err := h.timeRangeFromQuery(url.Values{}.Get)
		if err != nil || tr != nil {
			t.Fatalf("expected nil range, got %v, %v", tr, err)
		}
	})

	t.Run("window", func(t *testing.T) {
		tr, err := h.timeRangeFromQuery(url.Values{"window": {"24h"}}.Get)
		if err != nil {
			t.Fatalf("timeRangeFromQuery() error = %v", err)
		}
		if !tr.Contains(now.Add(-time.Hour)) || tr.Contains(now.Add(-48*time.Hour)) {
			t.Fatalf("unexpected window %v", tr)
		}
	})

	t.Run("open ended from", func(t *testing.T) {
		tr, err := h.timeRangeFromQuery(url.Values{"from": {"2026-02-01T00:00:00Z"}}.Get)
		if err != nil {
			t.Fatalf("timeRangeFromQuery() error = %v", err)
		}
		if !tr.Contains(now.Add(24*time.Hour)) || tr.Contains(now.Add(-60*24*time.Hour)) {
			t.Fatalf("unexpected range %v", tr)
		}
	})

	for _, raw := range []url.Values{
		{"window": {"-1h"}},
		{"window": {"9000h"}},
		{"window": {"a while"}},
		{"from": {"yesterday"}},
		{"from": {"2026-03-01T00:00:00Z"}, "to": {"2026-02-01T00:00:00Z"}},
	} {
		if _, err := h.timeRangeFromQuery(raw.Get); err == nil {
			t.Errorf("expected error for %v", raw)
		}
	}
}

func TestParseTrendLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "", want: maxTrendLimit},
		{raw: "all", want: 0},
		{raw: "25", want: 25},
		{raw: "1000", want: 1000},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "1001", wantErr: true},
		{raw: "ALL", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseTrendLimit(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTrendLimit(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("parseTrendLimit(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestIngestRun_BodyTooLarge(t *testing.T) {
	h := NewAuditAPIHandler(nil, nil, nil, nil, 64, logger.New("error"))

	body := `{"site_id":"` + strings.Repeat("x", 256) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.IngestRun(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestGetReportDetail_EmptyID(t *testing.T) {
	h := NewAuditAPIHandler(nil, nil, nil, nil, 0, logger.New("error"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/details/", nil)
	rec := httptest.NewRecorder()

	h.GetReportDetail(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
