package cloudwatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

type fakeCloudWatch struct {
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
	fail   int
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("throttled")
	}
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (f *fakeCloudWatch) datums() []types.MetricDatum {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.MetricDatum
	for _, in := range f.inputs {
		out = append(out, in.MetricData...)
	}
	return out
}

func testSummary(t *testing.T, score *float64) *entity.AuditSummary {
	t.Helper()

	key, err := valueobject.DeriveProfileKey("mobile", "10.1.0")
	if err != nil {
		t.Fatalf("DeriveProfileKey() error = %v", err)
	}
	slot, err := valueobject.NewSlotKey("shop", "home", key)
	if err != nil {
		t.Fatalf("NewSlotKey() error = %v", err)
	}

	lcp, _ := valueobject.NewMeasurement(2500, "ms", nil, "2.5 s")
	cls, _ := valueobject.NewMeasurement(0.12, "unitless", nil, "0.12")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	return entity.ReconstructAuditSummary(
		slot, 7, entity.ProfileSnapshot{Name: "mobile / lighthouse 10.1.0"}, "10.1.0",
		"https://example.com/", "https://example.com/", at, score,
		map[valueobject.WebVital]valueobject.Measurement{
			valueobject.LargestContentfulPaint: lcp,
			valueobject.CumulativeLayoutShift:  cls,
		},
		entity.ConfigSettings{}, 1, "detail-7", at,
	)
}

func TestMapUnit(t *testing.T) {
	tests := []struct {
		unit     string
		expected types.StandardUnit
	}{
		{"ms", types.StandardUnitMilliseconds},
		{"s", types.StandardUnitSeconds},
		{"%", types.StandardUnitPercent},
		{"unitless", types.StandardUnitNone},
		{"custom", types.StandardUnitNone},
	}

	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			if got := mapUnit(tt.unit); got != tt.expected {
				t.Errorf("mapUnit(%q) = %v, want %v", tt.unit, got, tt.expected)
			}
		})
	}
}

func TestConvertToData(t *testing.T) {
	p := newMetricsPublisher(&fakeCloudWatch{}, MetricsPublisherConfig{
		Namespace:         "Test/Namespace",
		DefaultDimensions: map[string]string{"Environment": "test"},
		StorageResolution: 60,
	}, nil)

	score := 0.87
	data := p.convertToData(testSummary(t, &score))

	if len(data) != 3 {
		t.Fatalf("expected score plus two vitals, got %d datums", len(data))
	}
	if *data[0].MetricName != scoreMetricName || *data[0].Value != 87 || data[0].Unit != types.StandardUnitPercent {
		t.Errorf("unexpected score datum: %s=%v %s", *data[0].MetricName, *data[0].Value, data[0].Unit)
	}
	if *data[1].MetricName != "largest-contentful-paint" || data[1].Unit != types.StandardUnitMilliseconds {
		t.Errorf("unexpected vital datum: %s %s", *data[1].MetricName, data[1].Unit)
	}
	if *data[2].MetricName != "cumulative-layout-shift" || data[2].Unit != types.StandardUnitNone {
		t.Errorf("unexpected vital datum: %s %s", *data[2].MetricName, data[2].Unit)
	}

	want := map[string]string{
		"Environment": "test",
		"Site":        "shop",
		"Page":        "home",
		"Profile":     "derived:mobile|10.1.0",
	}
	for _, dim := range data[0].Dimensions {
		if want[*dim.Name] != *dim.Value {
			t.Errorf("dimension %s = %q, want %q", *dim.Name, *dim.Value, want[*dim.Name])
		}
	}
	if len(data[0].Dimensions) != len(want) {
		t.Errorf("expected %d dimensions, got %d", len(want), len(data[0].Dimensions))
	}
	if data[0].StorageResolution == nil || *data[0].StorageResolution != 60 {
		t.Errorf("expected storage resolution 60, got %v", data[0].StorageResolution)
	}
}

func TestConvertToData_NoScore(t *testing.T) {
	p := newMetricsPublisher(&fakeCloudWatch{}, MetricsPublisherConfig{Namespace: "Test"}, nil)

	data := p.convertToData(testSummary(t, nil))
	for _, d := range data {
		if *d.MetricName == scoreMetricName {
			t.Fatal("expected no score datum for a summary without score")
		}
	}
}

func TestMetricsPublisher_BufferAndFlush(t *testing.T) {
	client := &fakeCloudWatch{}
	p := newMetricsPublisher(client, MetricsPublisherConfig{Namespace: "Test", BufferSize: 100}, nil)
	score := 0.5

	if err := p.PublishBatch(context.Background(), []*entity.AuditSummary{testSummary(t, &score), nil}); err != nil {
		t.Fatalf("PublishBatch() error = %v", err)
	}
	if len(client.datums()) != 0 {
		t.Fatal("expected datums to stay buffered")
	}

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(client.datums()) != 3 {
		t.Fatalf("expected 3 flushed datums, got %d", len(client.datums()))
	}
}

func TestMetricsPublisher_RetriesTransientErrors(t *testing.T) {
	client := &fakeCloudWatch{fail: 1}
	p := newMetricsPublisher(client, MetricsPublisherConfig{Namespace: "Test"}, nil)
	score := 0.5

	if err := p.PublishSingle(context.Background(), testSummary(t, &score)); err != nil {
		t.Fatalf("PublishSingle() error = %v", err)
	}
	if len(client.inputs) != 1 || *client.inputs[0].Namespace != "Test" {
		t.Fatalf("expected one successful request, got %d", len(client.inputs))
	}

	if err := p.PublishSingle(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil summary")
	}
}

func TestNormalizeMetricsConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    MetricsPublisherConfig
		expectErr bool
	}{
		{name: "valid", config: MetricsPublisherConfig{Namespace: "N", Region: "us-east-1"}},
		{name: "missing namespace", config: MetricsPublisherConfig{Region: "us-east-1"}, expectErr: true},
		{name: "missing region", config: MetricsPublisherConfig{Namespace: "N"}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := normalizeMetricsConfig(tt.config)
			if (err != nil) != tt.expectErr {
				t.Fatalf("normalizeMetricsConfig() error = %v, expectErr %v", err, tt.expectErr)
			}
			if err != nil {
				return
			}
			if cfg.BufferSize != 100 || cfg.FlushInterval != 10*time.Second || cfg.StorageResolution != 60 {
				t.Fatalf("defaults not applied: %+v", cfg)
			}
		})
	}
}
