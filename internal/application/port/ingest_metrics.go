package port

import "time"

// Run outcomes reported to IngestMetrics.
const (
	RunOutcomeAppended = "appended"
	RunOutcomeRejected = "rejected"
	RunOutcomeFailed   = "failed"
)

// IngestMetrics receives in-process counters for the ingest pipeline.
type IngestMetrics interface {
	ObserveRun(outcome string)
	ObserveAttempts(normalized, failed int)
	ObserveSectionErrors(count int)
	ObserveNormalizeDuration(d time.Duration)
	ObserveRegression()
}
