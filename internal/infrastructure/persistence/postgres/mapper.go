package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

// SummaryDBModel представляет сводку прогона в БД
type SummaryDBModel struct {
	SiteID       string
	PageID       string
	ProfileKind  string
	ProfileID    string
	RunID        int64
	ProfileName  string
	ToolVersion  string
	RequestedURL string
	FinalURL     string
	FetchTime    time.Time
	Score        sql.NullFloat64
	WebVitals    []byte // JSON
	Config       []byte // JSON
	AttemptCount int
	DetailID     string
	CreatedAt    time.Time
	Profile      []byte // JSON снимок профиля
}

// ToDBModel конвертирует Domain Entity в DB Model
func ToDBModel(summary *entity.AuditSummary) (*SummaryDBModel, error) {
	vitals := make(map[string]valueobject.Measurement)
	for vital, m := range summary.WebVitals() {
		vitals[vital.String()] = m
	}

	vitalsBytes, err := json.Marshal(vitals)
	if err != nil {
		return nil, err
	}

	configBytes, err := json.Marshal(summary.Config())
	if err != nil {
		return nil, err
	}

	profileBytes, err := json.Marshal(summary.Profile())
	if err != nil {
		return nil, err
	}

	slot := summary.Slot()
	model := &SummaryDBModel{
		SiteID:       slot.SiteID,
		PageID:       slot.PageID,
		ProfileKind:  string(slot.Profile.Kind()),
		ProfileID:    slot.Profile.ID(),
		RunID:        summary.RunID(),
		ProfileName:  summary.ProfileName(),
		ToolVersion:  summary.ToolVersion(),
		RequestedURL: summary.RequestedURL(),
		FinalURL:     summary.FinalURL(),
		FetchTime:    summary.FetchTime(),
		WebVitals:    vitalsBytes,
		Config:       configBytes,
		AttemptCount: summary.AttemptCount(),
		DetailID:     summary.DetailID(),
		CreatedAt:    summary.CreatedAt(),
		Profile:      profileBytes,
	}
	if score, ok := summary.Score(); ok {
		model.Score = sql.NullFloat64{Float64: score, Valid: true}
	}

	return model, nil
}

// ToEntity конвертирует DB Model в Domain Entity
func ToEntity(model *SummaryDBModel) (*entity.AuditSummary, error) {
	profile, err := valueobject.ReconstructProfileKey(model.ProfileKind, model.ProfileID)
	if err != nil {
		return nil, err
	}

	slot, err := valueobject.NewSlotKey(model.SiteID, model.PageID, profile)
	if err != nil {
		return nil, err
	}

	var rawVitals map[string]valueobject.Measurement
	if len(model.WebVitals) > 0 {
		if err := json.Unmarshal(model.WebVitals, &rawVitals); err != nil {
			return nil, err
		}
	}
	vitals := make(map[valueobject.WebVital]valueobject.Measurement, len(rawVitals))
	for name, m := range rawVitals {
		vitals[valueobject.WebVital(name)] = m
	}

	var config entity.ConfigSettings
	if len(model.Config) > 0 {
		if err := json.Unmarshal(model.Config, &config); err != nil {
			return nil, err
		}
	}

	// Строки до появления снимка содержат '{}', имя берем из profile_name
	var snapshot entity.ProfileSnapshot
	if len(model.Profile) > 0 {
		if err := json.Unmarshal(model.Profile, &snapshot); err != nil {
			return nil, err
		}
	}
	snapshot.Name = model.ProfileName

	var score *float64
	if model.Score.Valid {
		s := model.Score.Float64
		score = &s
	}

	// Восстанавливаем entity через Reconstruct
	return entity.ReconstructAuditSummary(
		slot,
		model.RunID,
		snapshot,
		model.ToolVersion,
		model.RequestedURL,
		model.FinalURL,
		model.FetchTime,
		score,
		vitals,
		config,
		model.AttemptCount,
		model.DetailID,
		model.CreatedAt,
	), nil
}

// ScanSummaryRow сканирует строку БД в SummaryDBModel
func ScanSummaryRow(row interface {
	Scan(dest ...interface{}) error
}) (*SummaryDBModel, error) {
	var model SummaryDBModel

	err := row.Scan(
		&model.SiteID,
		&model.PageID,
		&model.ProfileKind,
		&model.ProfileID,
		&model.RunID,
		&model.ProfileName,
		&model.ToolVersion,
		&model.RequestedURL,
		&model.FinalURL,
		&model.FetchTime,
		&model.Score,
		&model.WebVitals,
		&model.Config,
		&model.AttemptCount,
		&model.DetailID,
		&model.CreatedAt,
		&model.Profile,
	)
	if err != nil {
		return nil, err
	}

	return &model, nil
}
