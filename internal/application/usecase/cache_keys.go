package usecase

import (
	"net/url"
	"strconv"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

const (
	latestKeyPrefix = "history:latest:"
	trendKeyPrefix  = "history:trend:"
)

// slotCacheKey кодирует слот инъективно: каждая часть экранируется, поэтому
// "/" внутри идентификаторов не склеивает разные слоты в один ключ.
// После экранирования в ключе нет ни "#", ни glob-символов.
func slotCacheKey(slot valueobject.SlotKey) string {
	return url.PathEscape(slot.SiteID) + "/" +
		url.PathEscape(slot.PageID) + "/" +
		string(slot.Profile.Kind()) + "/" +
		url.PathEscape(slot.Profile.ID())
}

func latestCacheKey(slot valueobject.SlotKey) string {
	return latestKeyPrefix + slotCacheKey(slot)
}

func trendCacheKey(slot valueobject.SlotKey, timeRange valueobject.TimeRange, limit int) string {
	return trendKeyPrefix + slotCacheKey(slot) + "#" +
		boundKey(timeRange.Start()) + "_" + boundKey(timeRange.End()) + "#" +
		strconv.Itoa(limit)
}

// trendCachePattern покрывает все окна одного слота и только его
func trendCachePattern(slot valueobject.SlotKey) string {
	return trendKeyPrefix + slotCacheKey(slot) + "#*"
}

func boundKey(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}
