package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HISTORY_BACKEND", "")
	t.Setenv("DETAIL_BACKEND", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.HistoryBackend != BackendPostgres {
		t.Fatalf("expected postgres history backend, got %s", cfg.Storage.HistoryBackend)
	}
	if cfg.Ingest.Concurrency <= 0 || cfg.Ingest.MaxAttempts <= 0 {
		t.Fatalf("unexpected ingest defaults: %+v", cfg.Ingest)
	}
	if cfg.Analyzer.Interval != 5*time.Minute || cfg.NATS.StreamName != "AUDIT_RUNS" {
		t.Fatalf("unexpected analyzer/nats defaults: %+v %+v", cfg.Analyzer, cfg.NATS)
	}
	if !cfg.UsesPostgres() {
		t.Fatalf("expected default config to use postgres")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown history backend",
			env:     map[string]string{"HISTORY_BACKEND": "mongo"},
			wantErr: "unsupported HISTORY_BACKEND",
		},
		{
			name:    "s3 details without bucket",
			env:     map[string]string{"DETAIL_BACKEND": "s3", "S3_BUCKET": ""},
			wantErr: "S3_BUCKET is required",
		},
		{
			name:    "auth without token",
			env:     map[string]string{"AUTH_ENABLED": "true", "AUTH_BEARER_TOKEN": ""},
			wantErr: "AUTH_BEARER_TOKEN is required",
		},
		{
			name:    "threshold out of range",
			env:     map[string]string{"INGEST_REGRESSION_THRESHOLD": "1.5"},
			wantErr: "INGEST_REGRESSION_THRESHOLD",
		},
		{
			name:    "analyzer interval too short",
			env:     map[string]string{"ANALYZER_INTERVAL": "1s"},
			wantErr: "ANALYZER_INTERVAL",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for key, value := range tc.env {
				t.Setenv(key, value)
			}

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestParseDimensions(t *testing.T) {
	got := parseDimensions("Environment=prod, Team = web ,broken,=empty")

	if len(got) != 2 {
		t.Fatalf("expected 2 dimensions, got %v", got)
	}
	if got["Environment"] != "prod" || got["Team"] != "web" {
		t.Fatalf("unexpected dimensions: %v", got)
	}
}
