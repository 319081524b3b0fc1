package cloudwatch

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	applicationPort "github.com/dreschagin/perf-audit-history/internal/application/port"
	"github.com/dreschagin/perf-audit-history/pkg/logger"
)

type fakeLogs struct {
	mu        sync.Mutex
	batches   [][]types.InputLogEvent
	seqErrs   int
	groups    int
	streamErr error
}

func (f *fakeLogs) PutLogEvents(_ context.Context, in *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seqErrs > 0 {
		f.seqErrs--
		return nil, &types.InvalidSequenceTokenException{ExpectedSequenceToken: aws.String("expected")}
	}
	f.batches = append(f.batches, in.LogEvents)
	return &cloudwatchlogs.PutLogEventsOutput{NextSequenceToken: aws.String("next")}, nil
}

func (f *fakeLogs) CreateLogGroup(context.Context, *cloudwatchlogs.CreateLogGroupInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	f.groups++
	return nil, &types.ResourceAlreadyExistsException{}
}

func (f *fakeLogs) CreateLogStream(context.Context, *cloudwatchlogs.CreateLogStreamInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	return &cloudwatchlogs.CreateLogStreamOutput{}, f.streamErr
}

func TestConvertToLogEvent(t *testing.T) {
	timestamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := applicationPort.LogEntry{
		Timestamp: timestamp,
		Level:     applicationPort.LogLevelWarn,
		Message:   "Run rejected",
		Fields: map[string]interface{}{
			"slot":   "shop/home/derived:mobile|10.1.0",
			"run_id": 42,
		},
	}

	event, err := convertToLogEvent(entry)
	if err != nil {
		t.Fatalf("convertToLogEvent() error = %v", err)
	}
	if event.Timestamp == nil || *event.Timestamp != timestamp.UnixMilli() {
		t.Errorf("unexpected timestamp %v", event.Timestamp)
	}

	var logData map[string]interface{}
	if err := json.Unmarshal([]byte(*event.Message), &logData); err != nil {
		t.Fatalf("message is not JSON: %v", err)
	}
	if logData["level"] != "WARN" || logData["message"] != "Run rejected" {
		t.Errorf("unexpected log data %v", logData)
	}
	fields, ok := logData["fields"].(map[string]interface{})
	if !ok {
		t.Fatal("expected fields to be a map")
	}
	if fields["run_id"].(float64) != 42 {
		t.Errorf("expected run_id=42, got %v", fields["run_id"])
	}
}

func TestConvertToLogEvent_Truncation(t *testing.T) {
	entry := applicationPort.LogEntry{
		Timestamp: time.Now(),
		Level:     applicationPort.LogLevelInfo,
		Message:   strings.Repeat("x", maxLogEventSize+1000),
	}

	event, err := convertToLogEvent(entry)
	if err != nil {
		t.Fatalf("convertToLogEvent() error = %v", err)
	}
	if len(*event.Message) != maxLogEventSize {
		t.Errorf("expected message truncated to %d bytes, got %d", maxLogEventSize, len(*event.Message))
	}
	if !strings.HasSuffix(*event.Message, "...") {
		t.Error("expected truncation marker")
	}
}

func TestLogsPublisher_FlushesInChronologicalOrder(t *testing.T) {
	client := &fakeLogs{}
	p := newLogsPublisher(client, LogsPublisherConfig{LogGroupName: "/audit", LogStreamName: "api", BufferSize: 10})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := p.PublishBatch(context.Background(), []applicationPort.LogEntry{
		{Timestamp: now.Add(5 * time.Second), Level: applicationPort.LogLevelInfo, Message: "third"},
		{Timestamp: now, Level: applicationPort.LogLevelInfo, Message: "first"},
		{Timestamp: now.Add(2 * time.Second), Level: applicationPort.LogLevelInfo, Message: "second"},
	})
	if err != nil {
		t.Fatalf("PublishBatch() error = %v", err)
	}
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if len(client.batches) != 1 || len(client.batches[0]) != 3 {
		t.Fatalf("expected one batch of 3 events, got %v", client.batches)
	}
	for i := 1; i < 3; i++ {
		if *client.batches[0][i].Timestamp < *client.batches[0][i-1].Timestamp {
			t.Fatalf("events not in chronological order at %d", i)
		}
	}
}

func TestLogsPublisher_RecoversSequenceToken(t *testing.T) {
	client := &fakeLogs{seqErrs: 1}
	p := newLogsPublisher(client, LogsPublisherConfig{LogGroupName: "/audit", LogStreamName: "api", BufferSize: 1})

	err := p.Publish(context.Background(), applicationPort.LogEntry{Timestamp: time.Now(), Level: applicationPort.LogLevelInfo, Message: "m"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(client.batches) != 1 {
		t.Fatalf("expected auto-flush after sequence token retry, got %d batches", len(client.batches))
	}
	if aws.ToString(p.sequenceToken) != "next" {
		t.Fatalf("unexpected sequence token %q", aws.ToString(p.sequenceToken))
	}
}

func TestEnsureLogGroupAndStream_IgnoresExisting(t *testing.T) {
	client := &fakeLogs{}
	p := newLogsPublisher(client, LogsPublisherConfig{LogGroupName: "/audit", LogStreamName: "api"})

	if err := p.ensureLogGroupAndStream(context.Background()); err != nil {
		t.Fatalf("ensureLogGroupAndStream() error = %v", err)
	}
	if client.groups != 1 {
		t.Fatalf("expected CreateLogGroup call")
	}
}

func TestLoggerSink_ForwardsEntries(t *testing.T) {
	client := &fakeLogs{}
	p := newLogsPublisher(client, LogsPublisherConfig{LogGroupName: "/audit", LogStreamName: "api", BufferSize: 100})

	log := logger.New("info")
	log.SetPublisher(NewLoggerSink(p, "audit-history-api"))
	log.Info("Run appended", "run_id", 3)
	log.Debug("not forwarded")

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(client.batches) != 1 || len(client.batches[0]) != 1 {
		t.Fatalf("expected one forwarded entry, got %v", client.batches)
	}
	msg := *client.batches[0][0].Message
	if !strings.Contains(msg, `"message":"Run appended"`) || !strings.Contains(msg, `"service":"audit-history-api"`) {
		t.Fatalf("unexpected message %s", msg)
	}
}
