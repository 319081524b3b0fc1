package dto

import (
	"time"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

// SlotDTO адресует последовательность истории
type SlotDTO struct {
	SiteID      string `json:"site_id"`
	PageID      string `json:"page_id"`
	ProfileKind string `json:"profile_kind"`
	ProfileID   string `json:"profile_id"`
}

// NewSlotDTO конвертирует SlotKey в DTO
func NewSlotDTO(slot valueobject.SlotKey) SlotDTO {
	return SlotDTO{
		SiteID:      slot.SiteID,
		PageID:      slot.PageID,
		ProfileKind: string(slot.Profile.Kind()),
		ProfileID:   slot.Profile.ID(),
	}
}

// MeasurementDTO представляет значение web vital
type MeasurementDTO struct {
	Value        float64  `json:"value"`
	Unit         string   `json:"unit"`
	Score        *float64 `json:"score,omitempty"`
	DisplayValue string   `json:"display_value,omitempty"`
}

// ProfileDTO - снимок профиля, под которым выполнен прогон
type ProfileDTO struct {
	Name               string   `json:"name"`
	Device             string   `json:"device,omitempty"`
	ToolVersion        string   `json:"tool_version,omitempty"`
	Enabled            *bool    `json:"enabled,omitempty"`
	BlockedURLPatterns []string `json:"blocked_url_patterns,omitempty"`
}

// NewProfileDTO конвертирует снимок профиля в DTO
func NewProfileDTO(snapshot entity.ProfileSnapshot) ProfileDTO {
	return ProfileDTO{
		Name:               snapshot.Name,
		Device:             snapshot.Device,
		ToolVersion:        snapshot.ToolVersion,
		Enabled:            snapshot.Enabled,
		BlockedURLPatterns: snapshot.BlockedURLPatterns,
	}
}

// AuditSummaryDTO представляет сводку прогона для передачи между слоями
type AuditSummaryDTO struct {
	Slot         SlotDTO                   `json:"slot"`
	RunID        int64                     `json:"run_id"`
	ProfileName  string                    `json:"profile_name"`
	Profile      ProfileDTO                `json:"profile"`
	ToolVersion  string                    `json:"tool_version"`
	RequestedURL string                    `json:"requested_url"`
	FinalURL     string                    `json:"final_url"`
	FetchTime    time.Time                 `json:"fetch_time"`
	Score        *float64                  `json:"score"`
	WebVitals    map[string]MeasurementDTO `json:"web_vitals"`
	Config       entity.ConfigSettings     `json:"config"`
	AttemptCount int                       `json:"attempt_count"`
	DetailID     string                    `json:"detail_id"`
	CreatedAt    time.Time                 `json:"created_at"`
}

// FromSummary конвертирует Domain Entity в DTO
func FromSummary(summary *entity.AuditSummary) *AuditSummaryDTO {
	vitals := make(map[string]MeasurementDTO)
	for vital, m := range summary.WebVitals() {
		out := MeasurementDTO{Value: m.Raw(), Unit: m.Unit(), DisplayValue: m.DisplayValue()}
		if score, ok := m.Score(); ok {
			out.Score = &score
		}
		vitals[vital.String()] = out
	}

	var score *float64
	if s, ok := summary.Score(); ok {
		score = &s
	}

	return &AuditSummaryDTO{
		Slot:         NewSlotDTO(summary.Slot()),
		RunID:        summary.RunID(),
		ProfileName:  summary.ProfileName(),
		Profile:      NewProfileDTO(summary.Profile()),
		ToolVersion:  summary.ToolVersion(),
		RequestedURL: summary.RequestedURL(),
		FinalURL:     summary.FinalURL(),
		FetchTime:    summary.FetchTime(),
		Score:        score,
		WebVitals:    vitals,
		Config:       summary.Config(),
		AttemptCount: summary.AttemptCount(),
		DetailID:     summary.DetailID(),
		CreatedAt:    summary.CreatedAt(),
	}
}

// ToSummaryDTOs конвертирует слайс Entity в слайс DTO
func ToSummaryDTOs(summaries []*entity.AuditSummary) []*AuditSummaryDTO {
	dtos := make([]*AuditSummaryDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = FromSummary(s)
	}
	return dtos
}
