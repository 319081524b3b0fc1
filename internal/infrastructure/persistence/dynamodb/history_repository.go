package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

const (
	reasonConditionalCheckFailed = "ConditionalCheckFailed"
	reasonTransactionConflict    = "TransactionConflict"
)

// HistoryRepository реализует repository.HistoryRepository поверх одной таблицы DynamoDB.
// Слот - партиция; элемент HEAD хранит последний runID, элементы RUN# - сводки.
type HistoryRepository struct {
	client      api
	tableName   string
	strongReads bool
	now         func() time.Time
}

func NewHistoryRepository(ctx context.Context, cfg Config) (*HistoryRepository, error) {
	if strings.TrimSpace(cfg.TableName) == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return newHistoryRepository(client, cfg), nil
}

func newHistoryRepository(client api, cfg Config) *HistoryRepository {
	return &HistoryRepository{
		client:      client,
		tableName:   strings.TrimSpace(cfg.TableName),
		strongReads: cfg.StrongReads,
		now:         time.Now,
	}
}

// Append продвигает HEAD и кладет сводку одной транзакцией.
// Отказ условия HEAD означает устаревший runID, отказ вставки - гонку.
func (r *HistoryRepository) Append(ctx context.Context, summary *entity.AuditSummary) error {
	item, err := toItem(summary)
	if err != nil {
		return err
	}

	slot := summary.Slot()
	pk := buildPK(slot)
	runID := strconv.FormatInt(summary.RunID(), 10)

	headValues := map[string]types.AttributeValue{
		":run": &types.AttributeValueMemberN{Value: runID},
		":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(r.now().UnixMilli(), 10)},
	}
	for name, value := range slotAttributes(slot) {
		headValues[":"+name] = value
	}

	update := "SET #last = :run, #updated = :now, #site = :site_id, #page = :page_id, #kind = :profile_kind, #pid = :profile_id"
	condition := "attribute_not_exists(#pk) OR #last < :run"

	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName: &r.tableName,
					Key: map[string]types.AttributeValue{
						attrPK: &types.AttributeValueMemberS{Value: pk},
						attrSK: &types.AttributeValueMemberS{Value: headSK},
					},
					UpdateExpression:    &update,
					ConditionExpression: &condition,
					ExpressionAttributeNames: map[string]string{
						"#pk":      attrPK,
						"#last":    attrLastRunID,
						"#updated": attrUpdatedAt,
						"#site":    attrSiteID,
						"#page":    attrPageID,
						"#kind":    attrProfileKind,
						"#pid":     attrProfileID,
					},
					ExpressionAttributeValues: headValues,
				},
			},
			{
				Put: &types.Put{
					TableName:                &r.tableName,
					Item:                     item,
					ConditionExpression:      stringPointer("attribute_not_exists(#pk)"),
					ExpressionAttributeNames: map[string]string{"#pk": attrPK},
				},
			},
		},
	}

	if _, err := r.client.TransactWriteItems(ctx, input); err != nil {
		return mapTransactionError(summary.RunID(), err)
	}
	return nil
}

// mapTransactionError переводит причины отмены транзакции в доменные ошибки
func mapTransactionError(runID int64, err error) error {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		reasons := canceled.CancellationReasons
		if len(reasons) > 0 && reasonCode(reasons[0]) == reasonConditionalCheckFailed {
			return fmt.Errorf("run %d: %w", runID, repository.ErrOutOfOrderRun)
		}
		for _, reason := range reasons {
			switch reasonCode(reason) {
			case reasonConditionalCheckFailed, reasonTransactionConflict:
				return fmt.Errorf("run %d: %w", runID, repository.ErrConflict)
			}
		}
	}

	var conflict *types.TransactionConflictException
	if errors.As(err, &conflict) {
		return fmt.Errorf("run %d: %w", runID, repository.ErrConflict)
	}

	return fmt.Errorf("dynamodb transact write failed: %w", err)
}

func reasonCode(reason types.CancellationReason) string {
	if reason.Code == nil {
		return ""
	}
	return *reason.Code
}

// Trend возвращает сводки слота по возрастанию runID.
// Фильтр окна применяется после чтения страницы, поэтому при limit страницы читаются с конца до набора.
func (r *HistoryRepository) Trend(
	ctx context.Context,
	slot valueobject.SlotKey,
	timeRange valueobject.TimeRange,
	limit int,
) ([]*entity.AuditSummary, error) {
	input := r.runQuery(slot, limit <= 0)
	applyWindow(input, timeRange)

	summaries := make([]*entity.AuditSummary, 0)
	for {
		output, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("dynamodb query failed: %w", err)
		}

		for _, raw := range output.Items {
			summary, err := fromItem(raw)
			if err != nil {
				return nil, err
			}
			summaries = append(summaries, summary)
			if limit > 0 && len(summaries) == limit {
				break
			}
		}

		if (limit > 0 && len(summaries) >= limit) || len(output.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}

	if limit > 0 {
		for i, j := 0, len(summaries)-1; i < j; i, j = i+1, j-1 {
			summaries[i], summaries[j] = summaries[j], summaries[i]
		}
	}
	return summaries, nil
}

func (r *HistoryRepository) runQuery(slot valueobject.SlotKey, ascending bool) *dynamodb.QueryInput {
	keyCondition := "#pk = :pk AND #sk BETWEEN :from AND :to"
	return &dynamodb.QueryInput{
		TableName:              &r.tableName,
		KeyConditionExpression: &keyCondition,
		ScanIndexForward:       boolPointer(ascending),
		ConsistentRead:         boolPointer(r.strongReads),
		ExpressionAttributeNames: map[string]string{
			"#pk": attrPK,
			"#sk": attrSK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: buildPK(slot)},
			":from": &types.AttributeValueMemberS{Value: runSKPrefix},
			":to":   &types.AttributeValueMemberS{Value: runSKUpper},
		},
	}
}

func applyWindow(input *dynamodb.QueryInput, timeRange valueobject.TimeRange) {
	var filters []string
	if start := timeRange.Start(); !start.IsZero() {
		input.ExpressionAttributeValues[":start"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(start.UnixMilli(), 10)}
		filters = append(filters, "#fetch >= :start")
	}
	if end := timeRange.End(); !end.IsZero() {
		input.ExpressionAttributeValues[":end"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(end.UnixMilli(), 10)}
		filters = append(filters, "#fetch <= :end")
	}
	if len(filters) == 0 {
		return
	}

	input.ExpressionAttributeNames["#fetch"] = attrFetchTime
	filter := strings.Join(filters, " AND ")
	input.FilterExpression = &filter
}

// Latest возвращает последнюю сводку слота
func (r *HistoryRepository) Latest(ctx context.Context, slot valueobject.SlotKey) (*entity.AuditSummary, error) {
	input := r.runQuery(slot, false)
	input.Limit = int32Pointer(1)

	output, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("dynamodb query failed: %w", err)
	}
	if len(output.Items) == 0 {
		return nil, fmt.Errorf("slot %s: %w", slot, repository.ErrNotFound)
	}

	return fromItem(output.Items[0])
}

// LastRunID читает элемент HEAD
func (r *HistoryRepository) LastRunID(ctx context.Context, slot valueobject.SlotKey) (int64, error) {
	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &r.tableName,
		Key: map[string]types.AttributeValue{
			attrPK: &types.AttributeValueMemberS{Value: buildPK(slot)},
			attrSK: &types.AttributeValueMemberS{Value: headSK},
		},
		ConsistentRead: boolPointer(r.strongReads),
	})
	if err != nil {
		return 0, fmt.Errorf("dynamodb get item failed: %w", err)
	}
	if len(output.Item) == 0 {
		return 0, nil
	}

	return attrInt64(output.Item, attrLastRunID)
}

// ListSlots сканирует элементы HEAD
func (r *HistoryRepository) ListSlots(ctx context.Context) ([]valueobject.SlotKey, error) {
	filter := "#sk = :head"
	input := &dynamodb.ScanInput{
		TableName:                 &r.tableName,
		FilterExpression:          &filter,
		ExpressionAttributeNames:  map[string]string{"#sk": attrSK},
		ExpressionAttributeValues: map[string]types.AttributeValue{":head": &types.AttributeValueMemberS{Value: headSK}},
	}

	var slots []valueobject.SlotKey
	for {
		output, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan failed: %w", err)
		}
		for _, item := range output.Items {
			slot, err := slotFromItem(item)
			if err != nil {
				return nil, err
			}
			slots = append(slots, slot)
		}
		if len(output.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}

	return slots, nil
}
