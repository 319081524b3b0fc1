package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

// Registry выбирает адаптер по заявленной версии и нормализует отчет.
// Registry не хранит изменяемого состояния и безопасен для параллельного использования.
type Registry struct {
	adapters []adapter
}

// NewRegistry создает реестр со всеми поддерживаемыми поколениями схем
func NewRegistry() *Registry {
	return &Registry{
		adapters: []adapter{
			descriptorFor(generationV5),
			descriptorFor(generationV6),
			descriptorFor(generationV7Plus),
		},
	}
}

// SupportedVersions возвращает диапазоны версий, которые покрывает реестр
func (r *Registry) SupportedVersions() []valueobject.VersionRange {
	ranges := make([]valueobject.VersionRange, 0, len(r.adapters))
	for _, a := range r.adapters {
		ranges = append(ranges, a.versions)
	}
	return ranges
}

func (r *Registry) lookup(version string) (adapter, error) {
	parsed, err := valueobject.ParseToolVersion(version)
	if err != nil {
		return adapter{}, fmt.Errorf("%w: %q: %v", ErrUnsupportedVersion, version, err)
	}
	for _, a := range r.adapters {
		if a.versions.Contains(parsed) {
			return a, nil
		}
	}
	return adapter{}, fmt.Errorf("%w: %s", ErrUnsupportedVersion, parsed)
}

// Normalize превращает сырой JSON отчета в CanonicalReport.
// Пустой declaredVersion означает "взять lighthouseVersion из самого отчета".
func (r *Registry) Normalize(raw []byte, declaredVersion string) (*entity.CanonicalReport, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrMalformedReport)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}

	toolVersion, err := requiredString(top, "lighthouseVersion")
	if err != nil {
		return nil, err
	}

	version := strings.TrimSpace(declaredVersion)
	if version == "" {
		version = toolVersion
	}

	a, err := r.lookup(version)
	if err != nil {
		return nil, err
	}

	return a.normalize(top, toolVersion)
}

func (a adapter) normalize(top map[string]json.RawMessage, toolVersion string) (*entity.CanonicalReport, error) {
	requestedURL, err := requiredString(top, "requestedUrl")
	if err != nil {
		return nil, err
	}

	fetchRaw, err := requiredString(top, "fetchTime")
	if err != nil {
		return nil, err
	}
	fetchTime, err := time.Parse(time.RFC3339Nano, fetchRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: fetchTime is not RFC 3339: %v", ErrMissingRequiredField, err)
	}

	score, err := performanceScore(top)
	if err != nil {
		return nil, err
	}

	report := &entity.CanonicalReport{
		ToolVersion:  toolVersion,
		RequestedURL: requestedURL,
		FinalURL:     firstString(top, a.finalURLKeys...),
		FetchTime:    fetchTime.UTC(),
		OverallScore: score,
		WebVitals:    make(map[valueobject.WebVital]valueobject.Measurement),
		Sections:     make(map[entity.AuditID]entity.Section),
		UserAgent:    firstString(top, "userAgent"),
	}
	if report.FinalURL == "" {
		report.FinalURL = requestedURL
	}

	if warnings, ok := top["runWarnings"]; ok {
		var list []string
		if json.Unmarshal(warnings, &list) == nil {
			report.RunWarnings = list
		}
	}

	if rawConfig, ok := top["configSettings"]; ok {
		cfg, err := a.configSettings(rawConfig)
		if err != nil {
			report.SectionErrors = append(report.SectionErrors, entity.SectionError{AuditID: "configSettings", Err: err})
		} else {
			report.Config = cfg
		}
	}

	audits := map[string]json.RawMessage{}
	if rawAudits, ok := top["audits"]; ok {
		if err := json.Unmarshal(rawAudits, &audits); err != nil {
			return nil, fmt.Errorf("%w: audits is not an object: %v", ErrMalformedReport, err)
		}
	}

	for _, vital := range valueobject.AllWebVitals() {
		keys, ok := a.metricKeys[vital]
		if !ok {
			continue
		}
		m, present, sectionErr := vitalMeasurement(vital, audits, keys)
		if present {
			report.WebVitals[vital] = m
		} else if sectionErr != nil {
			report.SectionErrors = append(report.SectionErrors, *sectionErr)
		}
	}

	for _, id := range a.sections {
		rawAudit, ok := audits[string(id)]
		if !ok {
			continue
		}
		section, err := decodeSection(id, rawAudit)
		if err != nil {
			report.SectionErrors = append(report.SectionErrors, entity.SectionError{AuditID: id, Err: err})
			continue
		}
		report.Sections[id] = section
	}

	return report, nil
}

// measurement извлекает numericValue аудита метрики; null означает отсутствие
func measurement(vital valueobject.WebVital, raw json.RawMessage) (valueobject.Measurement, bool, error) {
	var audit wireAudit
	if err := json.Unmarshal(raw, &audit); err != nil {
		return valueobject.Measurement{}, false, fmt.Errorf("decode metric audit: %w", err)
	}
	if audit.NumericValue == nil {
		return valueobject.Measurement{}, false, nil
	}

	header := audit.header()
	m, err := valueobject.NewMeasurement(*audit.NumericValue, vital.Unit(), audit.Score, header.DisplayValue)
	if err != nil {
		return valueobject.Measurement{}, false, fmt.Errorf("metric %s: %w", vital, err)
	}
	return m, true, nil
}

type wirePerformance struct {
	Performance *struct {
		Score *float64 `json:"score"`
	} `json:"performance"`
}

// performanceScore: null-оценка становится NaN и проигрывает при выборе лучшей попытки
func performanceScore(top map[string]json.RawMessage) (float64, error) {
	raw, ok := top["categories"]
	if !ok {
		return 0, fmt.Errorf("%w: categories", ErrMissingRequiredField)
	}

	var categories wirePerformance
	if err := json.Unmarshal(raw, &categories); err != nil {
		return 0, fmt.Errorf("%w: categories: %v", ErrMalformedReport, err)
	}
	if categories.Performance == nil {
		return 0, fmt.Errorf("%w: categories.performance", ErrMissingRequiredField)
	}
	if categories.Performance.Score == nil {
		return math.NaN(), nil
	}
	return *categories.Performance.Score, nil
}

type wireThrottling struct {
	RTTMs                  float64 `json:"rttMs"`
	ThroughputKbps         float64 `json:"throughputKbps"`
	RequestLatencyMs       float64 `json:"requestLatencyMs"`
	DownloadThroughputKbps float64 `json:"downloadThroughputKbps"`
	UploadThroughputKbps   float64 `json:"uploadThroughputKbps"`
	CPUSlowdownMultiplier  float64 `json:"cpuSlowdownMultiplier"`
}

type wireConfigSettings struct {
	ThrottlingMethod   string          `json:"throttlingMethod"`
	Throttling         *wireThrottling `json:"throttling"`
	Locale             string          `json:"locale"`
	Channel            string          `json:"channel"`
	BlockedURLPatterns []string        `json:"blockedUrlPatterns"`
}

func (a adapter) configSettings(raw json.RawMessage) (entity.ConfigSettings, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return entity.ConfigSettings{}, fmt.Errorf("decode configSettings: %w", err)
	}

	var wire wireConfigSettings
	if err := json.Unmarshal(raw, &wire); err != nil {
		return entity.ConfigSettings{}, fmt.Errorf("decode configSettings: %w", err)
	}

	cfg := entity.ConfigSettings{
		FormFactor:         firstString(fields, a.formFactorKeys...),
		ThrottlingMethod:   wire.ThrottlingMethod,
		Locale:             wire.Locale,
		Channel:            wire.Channel,
		BlockedURLPatterns: wire.BlockedURLPatterns,
	}
	if wire.Throttling != nil {
		cfg.Throttling = entity.Throttling(*wire.Throttling)
	}
	return cfg, nil
}

func requiredString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredField, key)
	}

	var value *string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("%w: %s is not a string", ErrMissingRequiredField, key)
	}
	if value == nil || strings.TrimSpace(*value) == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredField, key)
	}
	return *value, nil
}

// firstString возвращает первое непустое строковое поле из списка ключей
func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var value string
		if json.Unmarshal(raw, &value) == nil && value != "" {
			return value
		}
	}
	return ""
}

// vitalMeasurement перебирает ключи метрики по приоритету. Ключ с null или
// битым значением не скрывает следующий; ошибка возвращается, только если
// ни один ключ не дал значения.
func vitalMeasurement(
	vital valueobject.WebVital,
	audits map[string]json.RawMessage,
	keys []string,
) (valueobject.Measurement, bool, *entity.SectionError) {
	var firstErr *entity.SectionError
	for _, key := range keys {
		raw, ok := audits[key]
		if !ok {
			continue
		}
		m, present, err := measurement(vital, raw)
		if err != nil {
			if firstErr == nil {
				firstErr = &entity.SectionError{AuditID: entity.AuditID(key), Err: err}
			}
			continue
		}
		if present {
			return m, true, nil
		}
	}
	return valueobject.Measurement{}, false, firstErr
}
