package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

// ErrRecoverableSection - раздел деталей не разобран, остальной отчет валиден
var ErrRecoverableSection = errors.New("recoverable section error")

// SectionError описывает раздел, пропущенный при нормализации
type SectionError struct {
	AuditID AuditID
	Err     error
}

func (e SectionError) Error() string {
	return fmt.Sprintf("section %s: %v", e.AuditID, e.Err)
}

func (e SectionError) Unwrap() []error {
	return []error{ErrRecoverableSection, e.Err}
}

// Throttling - параметры эмуляции сети и CPU
type Throttling struct {
	RTTMs                  float64 `json:"rttMs"`
	ThroughputKbps         float64 `json:"throughputKbps"`
	RequestLatencyMs       float64 `json:"requestLatencyMs"`
	DownloadThroughputKbps float64 `json:"downloadThroughputKbps"`
	UploadThroughputKbps   float64 `json:"uploadThroughputKbps"`
	CPUSlowdownMultiplier  float64 `json:"cpuSlowdownMultiplier"`
}

// ConfigSettings - настройки запуска инструмента, влияющие на сопоставимость прогонов
type ConfigSettings struct {
	FormFactor         string     `json:"formFactor,omitempty"`
	ThrottlingMethod   string     `json:"throttlingMethod,omitempty"`
	Throttling         Throttling `json:"throttling"`
	Locale             string     `json:"locale,omitempty"`
	Channel            string     `json:"channel,omitempty"`
	BlockedURLPatterns []string   `json:"blockedUrlPatterns,omitempty"`
}

// CanonicalReport - версионно-независимое представление одного прогона аудита.
// Создается только адаптерами схем и после этого не изменяется.
type CanonicalReport struct {
	ToolVersion   string
	RequestedURL  string
	FinalURL      string
	FetchTime     time.Time
	OverallScore  float64
	WebVitals     map[valueobject.WebVital]valueobject.Measurement
	Sections      map[AuditID]Section
	Config        ConfigSettings
	UserAgent     string
	RunWarnings   []string
	SectionErrors []SectionError
}

// Metric возвращает измерение web vital, если оно присутствует в отчете
func (r *CanonicalReport) Metric(vital valueobject.WebVital) (valueobject.Measurement, bool) {
	m, ok := r.WebVitals[vital]
	return m, ok
}

// Section возвращает раздел деталей по идентификатору аудита
func (r *CanonicalReport) Section(id AuditID) (Section, bool) {
	s, ok := r.Sections[id]
	return s, ok
}

// HasValidScore сообщает, что общая оценка конечна и лежит в [0, 1]
func (r *CanonicalReport) HasValidScore() bool {
	return IsValidScore(r.OverallScore)
}

// IsValidScore проверяет, что оценка пригодна для сравнения
func IsValidScore(score float64) bool {
	return !math.IsNaN(score) && !math.IsInf(score, 0) && score >= 0 && score <= 1
}

type sectionErrorJSON struct {
	AuditID AuditID `json:"auditId"`
	Message string  `json:"message"`
}

type canonicalReportJSON struct {
	ToolVersion   string                                           `json:"toolVersion"`
	RequestedURL  string                                           `json:"requestedUrl"`
	FinalURL      string                                           `json:"finalUrl"`
	FetchTime     time.Time                                        `json:"fetchTime"`
	OverallScore  *float64                                         `json:"overallScore"`
	WebVitals     map[valueobject.WebVital]valueobject.Measurement `json:"webVitals"`
	Sections      map[AuditID]sectionEnvelope                      `json:"sections"`
	Config        ConfigSettings                                   `json:"config"`
	UserAgent     string                                           `json:"userAgent,omitempty"`
	RunWarnings   []string                                         `json:"runWarnings,omitempty"`
	SectionErrors []sectionErrorJSON                               `json:"sectionErrors,omitempty"`
}

// MarshalJSON сериализует отчет в формат хранения деталей.
// NaN-оценка хранится как null.
func (r CanonicalReport) MarshalJSON() ([]byte, error) {
	doc := canonicalReportJSON{
		ToolVersion:  r.ToolVersion,
		RequestedURL: r.RequestedURL,
		FinalURL:     r.FinalURL,
		FetchTime:    r.FetchTime,
		WebVitals:    r.WebVitals,
		Sections:     make(map[AuditID]sectionEnvelope, len(r.Sections)),
		Config:       r.Config,
		UserAgent:    r.UserAgent,
		RunWarnings:  r.RunWarnings,
	}

	if !math.IsNaN(r.OverallScore) && !math.IsInf(r.OverallScore, 0) {
		score := r.OverallScore
		doc.OverallScore = &score
	}

	for id, section := range r.Sections {
		envelope, err := encodeSection(section)
		if err != nil {
			return nil, fmt.Errorf("encode section %s: %w", id, err)
		}
		doc.Sections[id] = envelope
	}

	for _, se := range r.SectionErrors {
		message := ""
		if se.Err != nil {
			message = se.Err.Error()
		}
		doc.SectionErrors = append(doc.SectionErrors, sectionErrorJSON{AuditID: se.AuditID, Message: message})
	}

	return json.Marshal(doc)
}

// UnmarshalJSON восстанавливает отчет из формата хранения
func (r *CanonicalReport) UnmarshalJSON(data []byte) error {
	var doc canonicalReportJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	sections := make(map[AuditID]Section, len(doc.Sections))
	for id, envelope := range doc.Sections {
		section, err := decodeSection(envelope)
		if err != nil {
			return fmt.Errorf("decode section %s: %w", id, err)
		}
		sections[id] = section
	}

	var sectionErrors []SectionError
	for _, se := range doc.SectionErrors {
		sectionErrors = append(sectionErrors, SectionError{AuditID: se.AuditID, Err: errors.New(se.Message)})
	}

	score := math.NaN()
	if doc.OverallScore != nil {
		score = *doc.OverallScore
	}

	webVitals := doc.WebVitals
	if webVitals == nil {
		webVitals = make(map[valueobject.WebVital]valueobject.Measurement)
	}

	*r = CanonicalReport{
		ToolVersion:   doc.ToolVersion,
		RequestedURL:  doc.RequestedURL,
		FinalURL:      doc.FinalURL,
		FetchTime:     doc.FetchTime,
		OverallScore:  score,
		WebVitals:     webVitals,
		Sections:      sections,
		Config:        doc.Config,
		UserAgent:     doc.UserAgent,
		RunWarnings:   doc.RunWarnings,
		SectionErrors: sectionErrors,
	}
	return nil
}

// SectionIDs возвращает отсортированный список присутствующих разделов
func (r *CanonicalReport) SectionIDs() []AuditID {
	ids := make([]AuditID, 0, len(r.Sections))
	for id := range r.Sections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
