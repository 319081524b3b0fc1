package dynamodb

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

// fakeAPI хранит элементы в памяти и проверяет условия транзакции так же, как таблица
type fakeAPI struct {
	items       map[string]map[string]types.AttributeValue
	transactErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(pk, sk string) string { return pk + "|" + sk }

func sVal(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeAPI) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if f.transactErr != nil {
		return nil, f.transactErr
	}

	update := in.TransactItems[0].Update
	put := in.TransactItems[1].Put

	headKey := itemKey(sVal(update.Key, attrPK), sVal(update.Key, attrSK))
	run := update.ExpressionAttributeValues[":run"].(*types.AttributeValueMemberN).Value
	runID := mustInt(run)

	reasons := []types.CancellationReason{{Code: stringPointer("None")}, {Code: stringPointer("None")}}
	failed := false
	if head, ok := f.items[headKey]; ok {
		last, _ := attrInt64(head, attrLastRunID)
		if last >= runID {
			reasons[0].Code = stringPointer(reasonConditionalCheckFailed)
			failed = true
		}
	}
	runKey := itemKey(sVal(put.Item, attrPK), sVal(put.Item, attrSK))
	if _, exists := f.items[runKey]; exists {
		reasons[1].Code = stringPointer(reasonConditionalCheckFailed)
		failed = true
	}
	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	head := map[string]types.AttributeValue{
		attrPK:        update.Key[attrPK],
		attrSK:        update.Key[attrSK],
		attrLastRunID: &types.AttributeValueMemberN{Value: run},
	}
	for _, name := range []string{attrSiteID, attrPageID, attrProfileKind, attrProfileID} {
		head[name] = update.ExpressionAttributeValues[":"+name]
	}
	f.items[headKey] = head
	f.items[runKey] = put.Item
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value

	var keys []string
	for key, item := range f.items {
		if sVal(item, attrPK) == pk && strings.HasPrefix(sVal(item, attrSK), runSKPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	}

	var out []map[string]types.AttributeValue
	for _, key := range keys {
		item := f.items[key]
		fetch := optionalInt64(item, attrFetchTime)
		if v, ok := in.ExpressionAttributeValues[":start"].(*types.AttributeValueMemberN); ok && fetch < mustInt(v.Value) {
			continue
		}
		if v, ok := in.ExpressionAttributeValues[":end"].(*types.AttributeValueMemberN); ok && fetch > mustInt(v.Value) {
			continue
		}
		out = append(out, item)
		if in.Limit != nil && len(out) == int(*in.Limit) {
			break
		}
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(sVal(in.Key, attrPK), sVal(in.Key, attrSK))]}, nil
}

func (f *fakeAPI) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if sVal(item, attrSK) == headSK {
			out = append(out, item)
		}
	}
	return &dynamodb.ScanOutput{Items: out}, nil
}

func mustInt(s string) int64 {
	var n int64
	for _, c := range s {
		n = n*10 + int64(c-'0')
	}
	return n
}

var base = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

func testSlot(t *testing.T) valueobject.SlotKey {
	t.Helper()
	key, err := valueobject.NewExplicitProfileKey("checkout/mobile")
	if err != nil {
		t.Fatal(err)
	}
	slot, err := valueobject.NewSlotKey("shop", "cart", key)
	if err != nil {
		t.Fatal(err)
	}
	return slot
}

func testSummary(slot valueobject.SlotKey, runID int64, at time.Time) *entity.AuditSummary {
	score := 0.66
	lcp, _ := valueobject.NewMeasurement(1800, "ms", nil, "")
	enabled := true
	profile := entity.ProfileSnapshot{
		Name:               "checkout/mobile",
		Device:             "mobile",
		Enabled:            &enabled,
		BlockedURLPatterns: []string{"*.doubleclick.net"},
	}
	return entity.ReconstructAuditSummary(slot, runID, profile, "11.0.0",
		"https://shop.example/cart", "https://shop.example/cart", at, &score,
		map[valueobject.WebVital]valueobject.Measurement{valueobject.LargestContentfulPaint: lcp},
		entity.ConfigSettings{FormFactor: "mobile"}, 2, "detail", at)
}

func TestHistoryRepository_AppendAndRead(t *testing.T) {
	repo := newHistoryRepository(newFakeAPI(), Config{TableName: "history", StrongReads: true})
	ctx := context.Background()
	slot := testSlot(t)

	for i := int64(1); i <= 3; i++ {
		if err := repo.Append(ctx, testSummary(slot, i, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	if err := repo.Append(ctx, testSummary(slot, 2, base)); !errors.Is(err, repository.ErrOutOfOrderRun) {
		t.Fatalf("expected ErrOutOfOrderRun, got %v", err)
	}

	last, err := repo.LastRunID(ctx, slot)
	if err != nil || last != 3 {
		t.Fatalf("LastRunID() = %d, %v", last, err)
	}

	latest, err := repo.Latest(ctx, slot)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.RunID() != 3 || latest.Slot() != slot {
		t.Fatalf("unexpected latest: %d %v", latest.RunID(), latest.Slot())
	}
	if m, ok := latest.Metric(valueobject.LargestContentfulPaint); !ok || m.Raw() != 1800 {
		t.Fatal("web vitals not restored")
	}
	profile := latest.Profile()
	if profile.Name != "checkout/mobile" || profile.Device != "mobile" ||
		profile.Enabled == nil || !*profile.Enabled ||
		len(profile.BlockedURLPatterns) != 1 || profile.BlockedURLPatterns[0] != "*.doubleclick.net" {
		t.Fatalf("profile snapshot not restored: %+v", profile)
	}

	trend, err := repo.Trend(ctx, slot, valueobject.TimeRange{}, 0)
	if err != nil || len(trend) != 3 || trend[0].RunID() != 1 || trend[2].RunID() != 3 {
		t.Fatalf("unexpected trend: %v", err)
	}

	limited, _ := repo.Trend(ctx, slot, valueobject.TimeRange{}, 2)
	if len(limited) != 2 || limited[0].RunID() != 2 || limited[1].RunID() != 3 {
		t.Fatal("expected last two runs in ascending order")
	}

	window, _ := valueobject.NewTimeRange(base.Add(90*time.Minute), base.Add(4*time.Hour))
	windowed, _ := repo.Trend(ctx, slot, window, 0)
	if len(windowed) != 2 || windowed[0].RunID() != 2 {
		t.Fatalf("unexpected windowed trend length %d", len(windowed))
	}

	slots, err := repo.ListSlots(ctx)
	if err != nil || len(slots) != 1 || slots[0] != slot {
		t.Fatalf("unexpected slots: %v %v", slots, err)
	}
}

func TestHistoryRepository_LatestNotFound(t *testing.T) {
	repo := newHistoryRepository(newFakeAPI(), Config{TableName: "history"})

	if _, err := repo.Latest(context.Background(), testSlot(t)); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if last, err := repo.LastRunID(context.Background(), testSlot(t)); err != nil || last != 0 {
		t.Fatalf("expected 0, got %d %v", last, err)
	}
}

func TestMapTransactionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "head condition failed",
			err: &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
				{Code: stringPointer(reasonConditionalCheckFailed)}, {Code: stringPointer("None")},
			}},
			want: repository.ErrOutOfOrderRun,
		},
		{
			name: "run item exists",
			err: &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
				{Code: stringPointer("None")}, {Code: stringPointer(reasonConditionalCheckFailed)},
			}},
			want: repository.ErrConflict,
		},
		{
			name: "transaction conflict",
			err: &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
				{Code: stringPointer(reasonTransactionConflict)}, {Code: stringPointer("None")},
			}},
			want: repository.ErrConflict,
		},
		{
			name: "conflict exception",
			err:  &types.TransactionConflictException{},
			want: repository.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapTransactionError(1, tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}

	plain := errors.New("throttled")
	got := mapTransactionError(1, plain)
	if errors.Is(got, repository.ErrConflict) || errors.Is(got, repository.ErrOutOfOrderRun) {
		t.Fatalf("unexpected domain mapping for %v", got)
	}
}

func TestBuildRunSKOrdering(t *testing.T) {
	if buildRunSK(9) >= buildRunSK(10) {
		t.Fatal("run sort keys must order numerically")
	}
	if !strings.HasPrefix(buildPK(testSlot(t)), "SLOT#shop#cart#explicit#checkout%2Fmobile") {
		t.Fatalf("unexpected pk %q", buildPK(testSlot(t)))
	}
}
