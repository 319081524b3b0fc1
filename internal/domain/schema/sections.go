package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
)

// wireAudit - общая оболочка аудита в исходном отчете
type wireAudit struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Score            *float64        `json:"score"`
	ScoreDisplayMode string          `json:"scoreDisplayMode"`
	NumericValue     *float64        `json:"numericValue"`
	NumericUnit      string          `json:"numericUnit"`
	DisplayValue     json.RawMessage `json:"displayValue"`
	Warnings         json.RawMessage `json:"warnings"`
	Details          json.RawMessage `json:"details"`
}

func (a wireAudit) header() entity.AuditHeader {
	h := entity.AuditHeader{
		ID:               a.ID,
		Title:            a.Title,
		Score:            a.Score,
		ScoreDisplayMode: a.ScoreDisplayMode,
		NumericValue:     a.NumericValue,
		NumericUnit:      a.NumericUnit,
	}

	// Старые версии отдавали displayValue массивом, такие значения пропускаем
	var display string
	if json.Unmarshal(a.DisplayValue, &display) == nil {
		h.DisplayValue = display
	}

	var warnings []string
	if json.Unmarshal(a.Warnings, &warnings) == nil {
		h.Warnings = warnings
	}

	return h
}

func (a wireAudit) hasDetails() bool {
	trimmed := bytes.TrimSpace(a.Details)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

type wireTable[T any] struct {
	Items []T `json:"items"`
}

type wireOpportunity struct {
	OverallSavingsMs    *float64                 `json:"overallSavingsMs"`
	OverallSavingsBytes *float64                 `json:"overallSavingsBytes"`
	Items               []entity.OpportunityItem `json:"items"`
}

type wireFilmstrip struct {
	Scale float64                 `json:"scale"`
	Items []entity.FilmstripFrame `json:"items"`
}

type wireThirdPartyItem struct {
	Entity         json.RawMessage `json:"entity"`
	TransferSize   float64         `json:"transferSize"`
	MainThreadTime float64         `json:"mainThreadTime"`
	BlockingTime   float64         `json:"blockingTime"`
}

// wireNodeItem - либо обертка {node}, либо сам узел, либо вложенная таблица
type wireNodeItem struct {
	entity.NodeItem
	Node  *entity.NodeItem `json:"node"`
	Items json.RawMessage  `json:"items"`
}

type sectionDecoder func(audit wireAudit) (entity.Section, error)

var sectionDecoders = map[entity.AuditID]sectionDecoder{
	entity.AuditNetworkRequests:         tableDecoder[entity.NetworkRequest](entity.KindNetworkRequests),
	entity.AuditNetworkRTT:              tableDecoder[entity.NetworkRTT](entity.KindNetworkRTT),
	entity.AuditNetworkServerLatency:    tableDecoder[entity.ServerLatency](entity.KindServerLatency),
	entity.AuditMainThreadTasks:         tableDecoder[entity.MainThreadTask](entity.KindMainThreadTasks),
	entity.AuditResourceSummary:         tableDecoder[entity.ResourceSummaryItem](entity.KindResourceSummary),
	entity.AuditThirdPartySummary:       decodeThirdParty,
	entity.AuditLCPElement:              decodeNodes,
	entity.AuditScreenshotThumbnails:    decodeFilmstrip,
	entity.AuditUsesResponsiveImages:    decodeOpportunity,
	entity.AuditUsesOptimizedImages:     decodeOpportunity,
	entity.AuditUsesWebpImages:          decodeOpportunity,
	entity.AuditOffscreenImages:         decodeOpportunity,
	entity.AuditUnminifiedCSS:           decodeOpportunity,
	entity.AuditUnminifiedJavascript:    decodeOpportunity,
	entity.AuditUnusedCSSRules:          decodeOpportunity,
	entity.AuditUnusedJavascript:        decodeOpportunity,
	entity.AuditRenderBlockingResources: decodeOpportunity,
	entity.AuditUsesHTTP2:               decodeOpportunity,
	entity.AuditUsesRelPreconnect:       decodeOpportunity,
	entity.AuditBootupTime:              tableDecoder[entity.ScriptExecution](entity.KindScriptExecution),
	entity.AuditMainThreadWorkBreakdown: tableDecoder[entity.WorkBreakdown](entity.KindWorkBreakdown),
	entity.AuditUsesLongCacheTTL:        tableDecoder[entity.CachePolicy](entity.KindCachePolicy),
	entity.AuditUserTimings:             tableDecoder[entity.UserTiming](entity.KindUserTimings),
}

// decodeSection разбирает один раздел; ошибка никогда не выходит за пределы раздела
func decodeSection(id entity.AuditID, raw json.RawMessage) (entity.Section, error) {
	var audit wireAudit
	if err := json.Unmarshal(raw, &audit); err != nil {
		return nil, fmt.Errorf("decode audit envelope: %w", err)
	}

	// Аудит без деталей (notApplicable, error) сохраняет только оценку
	if !audit.hasDetails() {
		return &entity.ScoreOnly{Header: audit.header()}, nil
	}

	decoder, ok := sectionDecoders[id]
	if !ok {
		return nil, fmt.Errorf("no decoder for audit %s", id)
	}
	return decoder(audit)
}

func tableDecoder[T any](kind entity.SectionKind) sectionDecoder {
	return func(audit wireAudit) (entity.Section, error) {
		var table wireTable[T]
		if err := json.Unmarshal(audit.Details, &table); err != nil {
			return nil, fmt.Errorf("decode %s items: %w", kind, err)
		}
		return entity.NewTable(kind, audit.header(), table.Items), nil
	}
}

func decodeOpportunity(audit wireAudit) (entity.Section, error) {
	var details wireOpportunity
	if err := json.Unmarshal(audit.Details, &details); err != nil {
		return nil, fmt.Errorf("decode opportunity: %w", err)
	}
	if details.Items == nil {
		details.Items = []entity.OpportunityItem{}
	}
	return &entity.Opportunity{
		Header:              audit.header(),
		OverallSavingsMs:    details.OverallSavingsMs,
		OverallSavingsBytes: details.OverallSavingsBytes,
		Items:               details.Items,
	}, nil
}

func decodeFilmstrip(audit wireAudit) (entity.Section, error) {
	var details wireFilmstrip
	if err := json.Unmarshal(audit.Details, &details); err != nil {
		return nil, fmt.Errorf("decode filmstrip: %w", err)
	}
	if details.Items == nil {
		details.Items = []entity.FilmstripFrame{}
	}
	return &entity.Filmstrip{Header: audit.header(), Scale: details.Scale, Frames: details.Items}, nil
}

// decodeThirdParty принимает entity как объект (v5-v9) или как строку (v10+)
func decodeThirdParty(audit wireAudit) (entity.Section, error) {
	var table wireTable[wireThirdPartyItem]
	if err := json.Unmarshal(audit.Details, &table); err != nil {
		return nil, fmt.Errorf("decode third party items: %w", err)
	}

	items := make([]entity.ThirdPartyItem, 0, len(table.Items))
	for i, raw := range table.Items {
		ent, err := decodeThirdPartyEntity(raw.Entity)
		if err != nil {
			return nil, fmt.Errorf("third party item %d: %w", i, err)
		}
		items = append(items, entity.ThirdPartyItem{
			Entity:         ent,
			TransferSize:   raw.TransferSize,
			MainThreadTime: raw.MainThreadTime,
			BlockingTime:   raw.BlockingTime,
		})
	}

	return entity.NewTable(entity.KindThirdParty, audit.header(), items), nil
}

func decodeThirdPartyEntity(raw json.RawMessage) (entity.ThirdPartyEntity, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return entity.ThirdPartyEntity{}, nil
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return entity.ThirdPartyEntity{Text: name}, nil
	}

	var ent entity.ThirdPartyEntity
	if err := json.Unmarshal(raw, &ent); err != nil {
		return entity.ThirdPartyEntity{}, err
	}
	return ent, nil
}

// decodeNodes принимает плоский список {node} и вложенный list -> table -> {node}
func decodeNodes(audit wireAudit) (entity.Section, error) {
	nodes, err := collectNodes(audit.Details, 0)
	if err != nil {
		return nil, err
	}
	return entity.NewTable(entity.KindNodes, audit.header(), nodes), nil
}

const maxNodeNesting = 3

func collectNodes(details json.RawMessage, depth int) ([]entity.NodeItem, error) {
	if depth > maxNodeNesting {
		return nil, errors.New("node details nested too deeply")
	}

	var table wireTable[wireNodeItem]
	if err := json.Unmarshal(details, &table); err != nil {
		return nil, fmt.Errorf("decode node items: %w", err)
	}

	nodes := make([]entity.NodeItem, 0, len(table.Items))
	for _, item := range table.Items {
		switch {
		case item.Node != nil:
			nodes = append(nodes, *item.Node)
		case item.Type == "node":
			nodes = append(nodes, item.NodeItem)
		case len(item.Items) > 0:
			nested, err := collectNodes(wrapItems(item.Items), depth+1)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, nested...)
		}
	}
	return nodes, nil
}

func wrapItems(items json.RawMessage) json.RawMessage {
	buf := make([]byte, 0, len(items)+10)
	buf = append(buf, `{"items":`...)
	buf = append(buf, items...)
	return append(buf, '}')
}
