package dynamodb

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

const (
	attrPK           = "PK"
	attrSK           = "SK"
	attrSiteID       = "site_id"
	attrPageID       = "page_id"
	attrProfileKind  = "profile_kind"
	attrProfileID    = "profile_id"
	attrRunID        = "run_id"
	attrLastRunID    = "last_run_id"
	attrProfileName  = "profile_name"
	attrToolVersion  = "tool_version"
	attrRequestedURL = "requested_url"
	attrFinalURL     = "final_url"
	attrFetchTime    = "fetch_time"
	attrScore        = "score"
	attrWebVitals    = "web_vitals"
	attrConfig       = "config"
	attrProfile      = "profile"
	attrAttemptCount = "attempt_count"
	attrDetailID     = "detail_id"
	attrCreatedAt    = "created_at"
	attrUpdatedAt    = "updated_at"

	headSK       = "HEAD"
	runSKPrefix  = "RUN#"
	runSKUpper   = "RUN#~"
)

func buildPK(slot valueobject.SlotKey) string {
	return fmt.Sprintf("SLOT#%s#%s#%s#%s",
		url.PathEscape(slot.SiteID),
		url.PathEscape(slot.PageID),
		slot.Profile.Kind(),
		url.PathEscape(slot.Profile.ID()),
	)
}

// buildRunSK дополняет runID нулями, чтобы лексикографический порядок совпадал с числовым
func buildRunSK(runID int64) string {
	return fmt.Sprintf("%s%019d", runSKPrefix, runID)
}

func slotAttributes(slot valueobject.SlotKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrSiteID:      &types.AttributeValueMemberS{Value: slot.SiteID},
		attrPageID:      &types.AttributeValueMemberS{Value: slot.PageID},
		attrProfileKind: &types.AttributeValueMemberS{Value: string(slot.Profile.Kind())},
		attrProfileID:   &types.AttributeValueMemberS{Value: slot.Profile.ID()},
	}
}

func toItem(summary *entity.AuditSummary) (map[string]types.AttributeValue, error) {
	vitals := make(map[string]valueobject.Measurement)
	for vital, m := range summary.WebVitals() {
		vitals[vital.String()] = m
	}
	vitalsJSON, err := json.Marshal(vitals)
	if err != nil {
		return nil, fmt.Errorf("failed to encode web vitals: %w", err)
	}
	configJSON, err := json.Marshal(summary.Config())
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	profileJSON, err := json.Marshal(summary.Profile())
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}

	slot := summary.Slot()
	item := slotAttributes(slot)
	item[attrPK] = &types.AttributeValueMemberS{Value: buildPK(slot)}
	item[attrSK] = &types.AttributeValueMemberS{Value: buildRunSK(summary.RunID())}
	item[attrRunID] = &types.AttributeValueMemberN{Value: strconv.FormatInt(summary.RunID(), 10)}
	item[attrProfileName] = &types.AttributeValueMemberS{Value: summary.ProfileName()}
	item[attrToolVersion] = &types.AttributeValueMemberS{Value: summary.ToolVersion()}
	item[attrRequestedURL] = &types.AttributeValueMemberS{Value: summary.RequestedURL()}
	item[attrFinalURL] = &types.AttributeValueMemberS{Value: summary.FinalURL()}
	item[attrFetchTime] = &types.AttributeValueMemberN{Value: strconv.FormatInt(summary.FetchTime().UnixMilli(), 10)}
	item[attrWebVitals] = &types.AttributeValueMemberS{Value: string(vitalsJSON)}
	item[attrConfig] = &types.AttributeValueMemberS{Value: string(configJSON)}
	item[attrProfile] = &types.AttributeValueMemberS{Value: string(profileJSON)}
	item[attrAttemptCount] = &types.AttributeValueMemberN{Value: strconv.Itoa(summary.AttemptCount())}
	item[attrDetailID] = &types.AttributeValueMemberS{Value: summary.DetailID()}
	item[attrCreatedAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(summary.CreatedAt().UnixMilli(), 10)}

	if score, ok := summary.Score(); ok {
		item[attrScore] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(score, 'g', -1, 64)}
	}

	return item, nil
}

func slotFromItem(item map[string]types.AttributeValue) (valueobject.SlotKey, error) {
	siteID, err := attrString(item, attrSiteID)
	if err != nil {
		return valueobject.SlotKey{}, err
	}
	pageID, err := attrString(item, attrPageID)
	if err != nil {
		return valueobject.SlotKey{}, err
	}
	kind, err := attrString(item, attrProfileKind)
	if err != nil {
		return valueobject.SlotKey{}, err
	}
	id, err := attrString(item, attrProfileID)
	if err != nil {
		return valueobject.SlotKey{}, err
	}

	profile, err := valueobject.ReconstructProfileKey(kind, id)
	if err != nil {
		return valueobject.SlotKey{}, err
	}
	return valueobject.NewSlotKey(siteID, pageID, profile)
}

func fromItem(item map[string]types.AttributeValue) (*entity.AuditSummary, error) {
	slot, err := slotFromItem(item)
	if err != nil {
		return nil, err
	}

	runID, err := attrInt64(item, attrRunID)
	if err != nil {
		return nil, err
	}
	fetchMS, err := attrInt64(item, attrFetchTime)
	if err != nil {
		return nil, err
	}
	detailID, err := attrString(item, attrDetailID)
	if err != nil {
		return nil, err
	}

	var rawVitals map[string]valueobject.Measurement
	if s := optionalString(item, attrWebVitals); s != "" {
		if err := json.Unmarshal([]byte(s), &rawVitals); err != nil {
			return nil, fmt.Errorf("invalid attribute %s: %w", attrWebVitals, err)
		}
	}
	vitals := make(map[valueobject.WebVital]valueobject.Measurement, len(rawVitals))
	for name, m := range rawVitals {
		vitals[valueobject.WebVital(name)] = m
	}

	var config entity.ConfigSettings
	if s := optionalString(item, attrConfig); s != "" {
		if err := json.Unmarshal([]byte(s), &config); err != nil {
			return nil, fmt.Errorf("invalid attribute %s: %w", attrConfig, err)
		}
	}

	var profile entity.ProfileSnapshot
	if s := optionalString(item, attrProfile); s != "" {
		if err := json.Unmarshal([]byte(s), &profile); err != nil {
			return nil, fmt.Errorf("invalid attribute %s: %w", attrProfile, err)
		}
	}
	profile.Name = optionalString(item, attrProfileName)

	var score *float64
	if raw, ok := item[attrScore].(*types.AttributeValueMemberN); ok {
		parsed, err := strconv.ParseFloat(raw.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid attribute %s: %w", attrScore, err)
		}
		score = &parsed
	}

	return entity.ReconstructAuditSummary(
		slot,
		runID,
		profile,
		optionalString(item, attrToolVersion),
		optionalString(item, attrRequestedURL),
		optionalString(item, attrFinalURL),
		time.UnixMilli(fetchMS).UTC(),
		score,
		vitals,
		config,
		int(optionalInt64(item, attrAttemptCount)),
		detailID,
		time.UnixMilli(optionalInt64(item, attrCreatedAt)).UTC(),
	), nil
}

func attrString(item map[string]types.AttributeValue, name string) (string, error) {
	raw, ok := item[name]
	if !ok {
		return "", fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberS)
	if !ok || strings.TrimSpace(value.Value) == "" {
		return "", fmt.Errorf("invalid attribute %s", name)
	}
	return value.Value, nil
}

func optionalString(item map[string]types.AttributeValue, name string) string {
	raw, ok := item[name]
	if !ok {
		return ""
	}
	value, ok := raw.(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return value.Value
}

func attrInt64(item map[string]types.AttributeValue, name string) (int64, error) {
	raw, ok := item[name]
	if !ok {
		return 0, fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("invalid attribute %s", name)
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid attribute %s: %w", name, err)
	}
	return parsed, nil
}

func optionalInt64(item map[string]types.AttributeValue, name string) int64 {
	raw, ok := item[name]
	if !ok {
		return 0
	}
	value, ok := raw.(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
