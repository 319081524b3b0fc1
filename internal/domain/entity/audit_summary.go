package entity

import (
	"errors"
	"math"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

// AuditSummary - компактная проекция лучшей попытки прогона (Aggregate Root истории).
// Полный отчет хранится отдельно и доступен по detailID.
type AuditSummary struct {
	slot         valueobject.SlotKey
	runID        int64
	profile      ProfileSnapshot
	toolVersion  string
	requestedURL string
	finalURL     string
	fetchTime    time.Time
	score        *float64
	webVitals    map[valueobject.WebVital]valueobject.Measurement
	config       ConfigSettings
	attemptCount int
	detailID     string
	createdAt    time.Time
}

// NewAuditSummary проецирует лучшую попытку набора в сводку истории (Factory Method)
func NewAuditSummary(
	slot valueobject.SlotKey,
	runID int64,
	profile *AuditProfile,
	attempts *AttemptSet,
	detailID string,
) (*AuditSummary, error) {
	if err := slot.Validate(); err != nil {
		return nil, err
	}
	if runID <= 0 {
		return nil, errors.New("run id must be positive")
	}
	if profile == nil {
		return nil, errors.New("profile is required")
	}
	if profile.Key() != slot.Profile {
		return nil, errors.New("profile key does not match slot")
	}
	if attempts == nil {
		return nil, errors.New("attempt set is required")
	}
	if detailID == "" {
		return nil, errors.New("detail id is required")
	}

	best := attempts.Best()

	var score *float64
	if best.HasValidScore() {
		s := best.OverallScore
		score = &s
	}

	vitals := make(map[valueobject.WebVital]valueobject.Measurement, len(best.WebVitals))
	for k, v := range best.WebVitals {
		vitals[k] = v
	}

	return &AuditSummary{
		slot:         slot,
		runID:        runID,
		profile:      profile.Snapshot(),
		toolVersion:  best.ToolVersion,
		requestedURL: best.RequestedURL,
		finalURL:     best.FinalURL,
		fetchTime:    best.FetchTime,
		score:        score,
		webVitals:    vitals,
		config:       best.Config,
		attemptCount: attempts.Len(),
		detailID:     detailID,
		createdAt:    time.Now().UTC(),
	}, nil
}

// ReconstructAuditSummary восстанавливает сводку из хранилища (для Repository)
func ReconstructAuditSummary(
	slot valueobject.SlotKey,
	runID int64,
	profile ProfileSnapshot,
	toolVersion string,
	requestedURL string,
	finalURL string,
	fetchTime time.Time,
	score *float64,
	webVitals map[valueobject.WebVital]valueobject.Measurement,
	config ConfigSettings,
	attemptCount int,
	detailID string,
	createdAt time.Time,
) *AuditSummary {
	if webVitals == nil {
		webVitals = make(map[valueobject.WebVital]valueobject.Measurement)
	}
	if score != nil && math.IsNaN(*score) {
		score = nil
	}

	return &AuditSummary{
		slot:         slot,
		runID:        runID,
		profile:      profile.clone(),
		toolVersion:  toolVersion,
		requestedURL: requestedURL,
		finalURL:     finalURL,
		fetchTime:    fetchTime,
		score:        score,
		webVitals:    webVitals,
		config:       config,
		attemptCount: attemptCount,
		detailID:     detailID,
		createdAt:    createdAt,
	}
}

// Slot возвращает ключ слота истории
func (s *AuditSummary) Slot() valueobject.SlotKey {
	return s.slot
}

// RunID возвращает номер прогона
func (s *AuditSummary) RunID() int64 {
	return s.runID
}

// ProfileName возвращает имя профиля на момент прогона
func (s *AuditSummary) ProfileName() string {
	return s.profile.Name
}

// Profile возвращает копию снимка профиля
func (s *AuditSummary) Profile() ProfileSnapshot {
	return s.profile.clone()
}

func (s *AuditSummary) ToolVersion() string {
	return s.toolVersion
}

func (s *AuditSummary) RequestedURL() string {
	return s.requestedURL
}

func (s *AuditSummary) FinalURL() string {
	return s.finalURL
}

// FetchTime возвращает время выполнения лучшей попытки
func (s *AuditSummary) FetchTime() time.Time {
	return s.fetchTime
}

// Score возвращает общую оценку, если она валидна
func (s *AuditSummary) Score() (float64, bool) {
	if s.score == nil {
		return 0, false
	}
	return *s.score, true
}

// WebVitals возвращает копию измерений
func (s *AuditSummary) WebVitals() map[valueobject.WebVital]valueobject.Measurement {
	result := make(map[valueobject.WebVital]valueobject.Measurement, len(s.webVitals))
	for k, v := range s.webVitals {
		result[k] = v
	}
	return result
}

// Metric возвращает одно измерение
func (s *AuditSummary) Metric(vital valueobject.WebVital) (valueobject.Measurement, bool) {
	m, ok := s.webVitals[vital]
	return m, ok
}

func (s *AuditSummary) Config() ConfigSettings {
	return s.config
}

// AttemptCount возвращает число успешно нормализованных попыток
func (s *AuditSummary) AttemptCount() int {
	return s.attemptCount
}

// DetailID возвращает ссылку на полный отчет
func (s *AuditSummary) DetailID() string {
	return s.detailID
}

func (s *AuditSummary) CreatedAt() time.Time {
	return s.createdAt
}

// Domain Methods (бизнес-логика)

// IsStale проверяет, устарел ли прогон
func (s *AuditSummary) IsStale(threshold time.Duration) bool {
	return time.Since(s.fetchTime) > threshold
}

// Age возвращает возраст прогона
func (s *AuditSummary) Age() time.Duration {
	return time.Since(s.fetchTime)
}
