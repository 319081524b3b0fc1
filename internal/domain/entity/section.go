package entity

import (
	"encoding/json"
	"fmt"
)

// AuditID - идентификатор аудита в отчете (ключ раздела деталей)
type AuditID string

const (
	AuditNetworkRequests         AuditID = "network-requests"
	AuditNetworkRTT              AuditID = "network-rtt"
	AuditNetworkServerLatency    AuditID = "network-server-latency"
	AuditMainThreadTasks         AuditID = "main-thread-tasks"
	AuditResourceSummary         AuditID = "resource-summary"
	AuditThirdPartySummary       AuditID = "third-party-summary"
	AuditLCPElement              AuditID = "largest-contentful-paint-element"
	AuditScreenshotThumbnails    AuditID = "screenshot-thumbnails"
	AuditUsesResponsiveImages    AuditID = "uses-responsive-images"
	AuditUsesOptimizedImages     AuditID = "uses-optimized-images"
	AuditUsesWebpImages          AuditID = "uses-webp-images"
	AuditOffscreenImages         AuditID = "offscreen-images"
	AuditUnminifiedCSS           AuditID = "unminified-css"
	AuditUnminifiedJavascript    AuditID = "unminified-javascript"
	AuditUnusedCSSRules          AuditID = "unused-css-rules"
	AuditUnusedJavascript        AuditID = "unused-javascript"
	AuditRenderBlockingResources AuditID = "render-blocking-resources"
	AuditUsesHTTP2               AuditID = "uses-http2"
	AuditBootupTime              AuditID = "bootup-time"
	AuditMainThreadWorkBreakdown AuditID = "mainthread-work-breakdown"
	AuditUsesRelPreconnect       AuditID = "uses-rel-preconnect"
	AuditUsesLongCacheTTL        AuditID = "uses-long-cache-ttl"
	AuditUserTimings             AuditID = "user-timings"
)

// SectionKind - тег варианта: конечный набор форм таблиц и метрик
type SectionKind string

const (
	KindNetworkRequests SectionKind = "network_requests"
	KindNetworkRTT      SectionKind = "network_rtt"
	KindServerLatency   SectionKind = "server_latency"
	KindMainThreadTasks SectionKind = "main_thread_tasks"
	KindResourceSummary SectionKind = "resource_summary"
	KindThirdParty      SectionKind = "third_party"
	KindNodes           SectionKind = "nodes"
	KindFilmstrip       SectionKind = "filmstrip"
	KindOpportunity     SectionKind = "opportunity"
	KindScriptExecution SectionKind = "script_execution"
	KindWorkBreakdown   SectionKind = "work_breakdown"
	KindCachePolicy     SectionKind = "cache_policy"
	KindUserTimings     SectionKind = "user_timings"
	KindScoreOnly       SectionKind = "score_only"
)

// Section - закрытый вариант раздела деталей отчета.
// Реализации определены только в этом пакете.
type Section interface {
	Kind() SectionKind
	Audit() AuditHeader
	isSection()
}

// AuditHeader - общие поля любого аудита
type AuditHeader struct {
	ID               string   `json:"id"`
	Title            string   `json:"title,omitempty"`
	Score            *float64 `json:"score,omitempty"`
	ScoreDisplayMode string   `json:"scoreDisplayMode,omitempty"`
	NumericValue     *float64 `json:"numericValue,omitempty"`
	NumericUnit      string   `json:"numericUnit,omitempty"`
	DisplayValue     string   `json:"displayValue,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Table - табличный раздел с элементами одной формы
type Table[T any] struct {
	kind   SectionKind
	Header AuditHeader
	Items  []T
}

// NewTable создает табличный раздел указанного вида
func NewTable[T any](kind SectionKind, header AuditHeader, items []T) *Table[T] {
	if items == nil {
		items = []T{}
	}
	return &Table[T]{kind: kind, Header: header, Items: items}
}

func (t *Table[T]) Kind() SectionKind { return t.kind }
func (t *Table[T]) Audit() AuditHeader { return t.Header }
func (t *Table[T]) isSection() {}

// Opportunity - аудит с оценкой потенциальной экономии
type Opportunity struct {
	Header              AuditHeader
	OverallSavingsMs    *float64
	OverallSavingsBytes *float64
	Items               []OpportunityItem
}

func (o *Opportunity) Kind() SectionKind { return KindOpportunity }
func (o *Opportunity) Audit() AuditHeader { return o.Header }
func (o *Opportunity) isSection() {}

// Filmstrip - миниатюры кадров загрузки
type Filmstrip struct {
	Header AuditHeader
	Scale  float64
	Frames []FilmstripFrame
}

func (f *Filmstrip) Kind() SectionKind { return KindFilmstrip }
func (f *Filmstrip) Audit() AuditHeader { return f.Header }
func (f *Filmstrip) isSection() {}

// ScoreOnly - аудит без таблицы деталей
type ScoreOnly struct {
	Header AuditHeader
}

func (s *ScoreOnly) Kind() SectionKind { return KindScoreOnly }
func (s *ScoreOnly) Audit() AuditHeader { return s.Header }
func (s *ScoreOnly) isSection() {}

type NetworkRequest struct {
	URL          string   `json:"url"`
	StartTime    *float64 `json:"startTime,omitempty"`
	EndTime      *float64 `json:"endTime,omitempty"`
	Finished     *bool    `json:"finished,omitempty"`
	TransferSize *float64 `json:"transferSize,omitempty"`
	ResourceSize float64  `json:"resourceSize"`
	StatusCode   int      `json:"statusCode"`
	MimeType     string   `json:"mimeType"`
	ResourceType string   `json:"resourceType,omitempty"`
}

type NetworkRTT struct {
	Origin string  `json:"origin"`
	RTT    float64 `json:"rtt"`
}

type ServerLatency struct {
	Origin             string  `json:"origin"`
	ServerResponseTime float64 `json:"serverResponseTime"`
}

type MainThreadTask struct {
	Duration  float64 `json:"duration"`
	StartTime float64 `json:"startTime"`
}

type ResourceSummaryItem struct {
	ResourceType string   `json:"resourceType"`
	Label        string   `json:"label"`
	RequestCount int      `json:"requestCount"`
	TransferSize *float64 `json:"transferSize,omitempty"`
}

type ThirdPartyEntity struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

type ThirdPartyItem struct {
	Entity         ThirdPartyEntity `json:"entity"`
	TransferSize   float64          `json:"transferSize"`
	MainThreadTime float64          `json:"mainThreadTime"`
	BlockingTime   float64          `json:"blockingTime"`
}

type NodeItem struct {
	Type      string `json:"type"`
	Path      string `json:"path,omitempty"`
	Selector  string `json:"selector,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
	NodeLabel string `json:"nodeLabel,omitempty"`
}

type ScriptExecution struct {
	URL                string  `json:"url"`
	Total              float64 `json:"total"`
	Scripting          float64 `json:"scripting"`
	ScriptParseCompile float64 `json:"scriptParseCompile"`
}

type WorkBreakdown struct {
	Group      string  `json:"group"`
	GroupLabel string  `json:"groupLabel"`
	Duration   float64 `json:"duration"`
}

type CachePolicy struct {
	URL             string  `json:"url"`
	CacheLifetimeMs float64 `json:"cacheLifetimeMs"`
	TotalBytes      float64 `json:"totalBytes"`
	WastedBytes     float64 `json:"wastedBytes"`
}

type UserTiming struct {
	Name       string   `json:"name"`
	StartTime  float64  `json:"startTime"`
	Duration   *float64 `json:"duration,omitempty"`
	TimingType string   `json:"timingType"`
}

type OpportunityItem struct {
	URL           string   `json:"url"`
	TotalBytes    *float64 `json:"totalBytes,omitempty"`
	WastedBytes   *float64 `json:"wastedBytes,omitempty"`
	WastedMs      *float64 `json:"wastedMs,omitempty"`
	WastedPercent *float64 `json:"wastedPercent,omitempty"`
	Protocol      string   `json:"protocol,omitempty"`
}

type FilmstripFrame struct {
	Timing    float64 `json:"timing"`
	Timestamp float64 `json:"timestamp"`
	Data      string  `json:"data"`
}

// SectionAs возвращает раздел нужного конкретного типа
func SectionAs[S Section](r *CanonicalReport, id AuditID) (S, bool) {
	var zero S
	if r == nil {
		return zero, false
	}
	section, ok := r.Sections[id]
	if !ok {
		return zero, false
	}
	typed, ok := section.(S)
	return typed, ok
}

// sectionEnvelope - формат хранения раздела: тег + полезная нагрузка
type sectionEnvelope struct {
	Kind    SectionKind     `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type tablePayload[T any] struct {
	Header AuditHeader `json:"header"`
	Items  []T         `json:"items"`
}

type opportunityPayload struct {
	Header              AuditHeader       `json:"header"`
	OverallSavingsMs    *float64          `json:"overallSavingsMs,omitempty"`
	OverallSavingsBytes *float64          `json:"overallSavingsBytes,omitempty"`
	Items               []OpportunityItem `json:"items"`
}

type filmstripPayload struct {
	Header AuditHeader      `json:"header"`
	Scale  float64          `json:"scale"`
	Frames []FilmstripFrame `json:"frames"`
}

type scoreOnlyPayload struct {
	Header AuditHeader `json:"header"`
}

func encodeSection(section Section) (sectionEnvelope, error) {
	var payload interface{}

	switch s := section.(type) {
	case *Opportunity:
		payload = opportunityPayload{
			Header:              s.Header,
			OverallSavingsMs:    s.OverallSavingsMs,
			OverallSavingsBytes: s.OverallSavingsBytes,
			Items:               s.Items,
		}
	case *Filmstrip:
		payload = filmstripPayload{Header: s.Header, Scale: s.Scale, Frames: s.Frames}
	case *ScoreOnly:
		payload = scoreOnlyPayload{Header: s.Header}
	case *Table[NetworkRequest]:
		payload = tablePayload[NetworkRequest]{Header: s.Header, Items: s.Items}
	case *Table[NetworkRTT]:
		payload = tablePayload[NetworkRTT]{Header: s.Header, Items: s.Items}
	case *Table[ServerLatency]:
		payload = tablePayload[ServerLatency]{Header: s.Header, Items: s.Items}
	case *Table[MainThreadTask]:
		payload = tablePayload[MainThreadTask]{Header: s.Header, Items: s.Items}
	case *Table[ResourceSummaryItem]:
		payload = tablePayload[ResourceSummaryItem]{Header: s.Header, Items: s.Items}
	case *Table[ThirdPartyItem]:
		payload = tablePayload[ThirdPartyItem]{Header: s.Header, Items: s.Items}
	case *Table[NodeItem]:
		payload = tablePayload[NodeItem]{Header: s.Header, Items: s.Items}
	case *Table[ScriptExecution]:
		payload = tablePayload[ScriptExecution]{Header: s.Header, Items: s.Items}
	case *Table[WorkBreakdown]:
		payload = tablePayload[WorkBreakdown]{Header: s.Header, Items: s.Items}
	case *Table[CachePolicy]:
		payload = tablePayload[CachePolicy]{Header: s.Header, Items: s.Items}
	case *Table[UserTiming]:
		payload = tablePayload[UserTiming]{Header: s.Header, Items: s.Items}
	default:
		return sectionEnvelope{}, fmt.Errorf("unsupported section type %T", section)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return sectionEnvelope{}, err
	}
	return sectionEnvelope{Kind: section.Kind(), Payload: raw}, nil
}

func decodeSection(envelope sectionEnvelope) (Section, error) {
	switch envelope.Kind {
	case KindOpportunity:
		var p opportunityPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return nil, err
		}
		return &Opportunity{
			Header:              p.Header,
			OverallSavingsMs:    p.OverallSavingsMs,
			OverallSavingsBytes: p.OverallSavingsBytes,
			Items:               p.Items,
		}, nil
	case KindFilmstrip:
		var p filmstripPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return nil, err
		}
		return &Filmstrip{Header: p.Header, Scale: p.Scale, Frames: p.Frames}, nil
	case KindScoreOnly:
		var p scoreOnlyPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return nil, err
		}
		return &ScoreOnly{Header: p.Header}, nil
	case KindNetworkRequests:
		return decodeTable[NetworkRequest](envelope)
	case KindNetworkRTT:
		return decodeTable[NetworkRTT](envelope)
	case KindServerLatency:
		return decodeTable[ServerLatency](envelope)
	case KindMainThreadTasks:
		return decodeTable[MainThreadTask](envelope)
	case KindResourceSummary:
		return decodeTable[ResourceSummaryItem](envelope)
	case KindThirdParty:
		return decodeTable[ThirdPartyItem](envelope)
	case KindNodes:
		return decodeTable[NodeItem](envelope)
	case KindScriptExecution:
		return decodeTable[ScriptExecution](envelope)
	case KindWorkBreakdown:
		return decodeTable[WorkBreakdown](envelope)
	case KindCachePolicy:
		return decodeTable[CachePolicy](envelope)
	case KindUserTimings:
		return decodeTable[UserTiming](envelope)
	default:
		return nil, fmt.Errorf("unknown section kind %q", envelope.Kind)
	}
}

func decodeTable[T any](envelope sectionEnvelope) (Section, error) {
	var p tablePayload[T]
	if err := json.Unmarshal(envelope.Payload, &p); err != nil {
		return nil, err
	}
	return NewTable(envelope.Kind, p.Header, p.Items), nil
}
