package dto

import (
	"fmt"
	"time"
)

// Event subjects, appended to the configured prefix.
const (
	SubjectRunAppended        = "run.appended"
	SubjectRegressionDetected = "run.regression"
)

// RunAppendedEvent публикуется после успешного добавления прогона в историю
type RunAppendedEvent struct {
	Slot       SlotDTO   `json:"slot"`
	RunID      int64     `json:"run_id"`
	Score      *float64  `json:"score"`
	DetailID   string    `json:"detail_id"`
	FetchTime  time.Time `json:"fetch_time"`
	AppendedAt time.Time `json:"appended_at"`
}

// RegressionDetectedEvent публикуется, если оценка упала сильнее порога
type RegressionDetectedEvent struct {
	Slot       SlotDTO        `json:"slot"`
	Regression *RegressionDTO `json:"regression"`
	DetectedAt time.Time      `json:"detected_at"`
}

// MessageID идентифицирует событие для дедупликации брокером
func (e RunAppendedEvent) MessageID() string {
	return fmt.Sprintf("%s/%s/%s:%s#%d", e.Slot.SiteID, e.Slot.PageID, e.Slot.ProfileKind, e.Slot.ProfileID, e.RunID)
}

// MessageID идентифицирует событие для дедупликации брокером
func (e RegressionDetectedEvent) MessageID() string {
	var runID int64
	if e.Regression != nil {
		runID = e.Regression.CurrentRunID
	}
	return fmt.Sprintf("regression:%s/%s/%s:%s#%d", e.Slot.SiteID, e.Slot.PageID, e.Slot.ProfileKind, e.Slot.ProfileID, runID)
}
