package schema

import (
	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

// generation - тег поколения схемы отчета
type generation int

const (
	generationV5 generation = iota + 5
	generationV6
	generationV7Plus
)

func (g generation) String() string {
	switch g {
	case generationV5:
		return "lighthouse-v5"
	case generationV6:
		return "lighthouse-v6"
	case generationV7Plus:
		return "lighthouse-v7+"
	default:
		return "unknown"
	}
}

// adapter - декларативное описание одной версии схемы.
// Поведение одинаково для всех поколений, различаются только ключи.
type adapter struct {
	generation generation
	versions   valueobject.VersionRange

	// метрика -> ключи аудитов в порядке приоритета
	metricKeys map[valueobject.WebVital][]string
	// разделы, которые умеет читать поколение
	sections []entity.AuditID

	finalURLKeys   []string
	formFactorKeys []string
}

// descriptorFor возвращает описание поколения
func descriptorFor(g generation) adapter {
	switch g {
	case generationV5:
		return adapter{
			generation: g,
			versions:   valueobject.VersionRange{Min: valueobject.ToolVersion{Major: 5}, Max: valueobject.ToolVersion{Major: 6}},
			metricKeys: map[valueobject.WebVital][]string{
				valueobject.FirstContentfulPaint: {"first-contentful-paint"},
				valueobject.SpeedIndex:           {"speed-index", "speed-index-metric"},
				valueobject.Interactive:          {"interactive"},
				valueobject.FirstMeaningfulPaint: {"first-meaningful-paint"},
				valueobject.FirstCPUIdle:         {"first-cpu-idle"},
				valueobject.MaxPotentialFID:      {"max-potential-fid"},
				valueobject.ServerResponseTime:   {"server-response-time", "time-to-first-byte"},
			},
			sections:       commonSections(),
			finalURLKeys:   []string{"finalUrl"},
			formFactorKeys: []string{"emulatedFormFactor"},
		}
	case generationV6:
		return adapter{
			generation: g,
			versions:   valueobject.VersionRange{Min: valueobject.ToolVersion{Major: 6}, Max: valueobject.ToolVersion{Major: 7}},
			metricKeys: map[valueobject.WebVital][]string{
				valueobject.FirstContentfulPaint:   {"first-contentful-paint"},
				valueobject.LargestContentfulPaint: {"largest-contentful-paint"},
				valueobject.SpeedIndex:             {"speed-index"},
				valueobject.Interactive:            {"interactive"},
				valueobject.TotalBlockingTime:      {"total-blocking-time"},
				valueobject.CumulativeLayoutShift:  {"cumulative-layout-shift"},
				valueobject.FirstMeaningfulPaint:   {"first-meaningful-paint"},
				valueobject.FirstCPUIdle:           {"first-cpu-idle"},
				valueobject.MaxPotentialFID:        {"max-potential-fid"},
				valueobject.ServerResponseTime:     {"server-response-time"},
			},
			sections:       append(commonSections(), entity.AuditLCPElement),
			finalURLKeys:   []string{"finalUrl"},
			formFactorKeys: []string{"emulatedFormFactor", "formFactor"},
		}
	case generationV7Plus:
		return adapter{
			generation: g,
			versions:   valueobject.VersionRange{Min: valueobject.ToolVersion{Major: 7}, Max: valueobject.ToolVersion{Major: 13}},
			metricKeys: map[valueobject.WebVital][]string{
				valueobject.FirstContentfulPaint:   {"first-contentful-paint"},
				valueobject.LargestContentfulPaint: {"largest-contentful-paint"},
				valueobject.SpeedIndex:             {"speed-index"},
				valueobject.Interactive:            {"interactive"},
				valueobject.TotalBlockingTime:      {"total-blocking-time"},
				valueobject.CumulativeLayoutShift:  {"cumulative-layout-shift"},
				valueobject.FirstMeaningfulPaint:   {"first-meaningful-paint"},
				valueobject.FirstCPUIdle:           {"first-cpu-idle"},
				valueobject.MaxPotentialFID:        {"max-potential-fid"},
				valueobject.ServerResponseTime:     {"server-response-time"},
			},
			sections:       append(commonSections(), entity.AuditLCPElement),
			finalURLKeys:   []string{"finalUrl", "finalDisplayedUrl", "mainDocumentUrl"},
			formFactorKeys: []string{"formFactor"},
		}
	default:
		return adapter{}
	}
}

func commonSections() []entity.AuditID {
	return []entity.AuditID{
		entity.AuditNetworkRequests,
		entity.AuditNetworkRTT,
		entity.AuditNetworkServerLatency,
		entity.AuditMainThreadTasks,
		entity.AuditResourceSummary,
		entity.AuditThirdPartySummary,
		entity.AuditScreenshotThumbnails,
		entity.AuditUsesResponsiveImages,
		entity.AuditUsesOptimizedImages,
		entity.AuditUsesWebpImages,
		entity.AuditOffscreenImages,
		entity.AuditUnminifiedCSS,
		entity.AuditUnminifiedJavascript,
		entity.AuditUnusedCSSRules,
		entity.AuditUnusedJavascript,
		entity.AuditRenderBlockingResources,
		entity.AuditUsesHTTP2,
		entity.AuditBootupTime,
		entity.AuditMainThreadWorkBreakdown,
		entity.AuditUsesRelPreconnect,
		entity.AuditUsesLongCacheTTL,
		entity.AuditUserTimings,
	}
}
