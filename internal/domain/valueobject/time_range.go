package valueobject

import (
	"errors"
	"time"
)

// TimeRange представляет временное окно для выборки истории (Value Object)
// Нулевая граница означает открытый интервал с этой стороны
type TimeRange struct {
	start time.Time
	end   time.Time
}

// NewTimeRange создает TimeRange с валидацией
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return TimeRange{}, errors.New("start time must be before end time")
	}

	return TimeRange{
		start: start.UTC(),
		end:   end.UTC(),
	}, nil
}

// NewTimeRangeFromDuration создает окно от (now - duration) до now
func NewTimeRangeFromDuration(now time.Time, duration time.Duration) (TimeRange, error) {
	if duration <= 0 {
		return TimeRange{}, errors.New("duration must be positive")
	}

	return NewTimeRange(now.Add(-duration), now)
}

// Start возвращает начало окна (может быть нулевым)
func (tr TimeRange) Start() time.Time {
	return tr.start
}

// End возвращает конец окна (может быть нулевым)
func (tr TimeRange) End() time.Time {
	return tr.end
}

// IsOpen сообщает, что окно не ограничено ни с одной стороны
func (tr TimeRange) IsOpen() bool {
	return tr.start.IsZero() && tr.end.IsZero()
}

// Contains проверяет, попадает ли время в окно (границы включены)
func (tr TimeRange) Contains(t time.Time) bool {
	if !tr.start.IsZero() && t.Before(tr.start) {
		return false
	}
	if !tr.end.IsZero() && t.After(tr.end) {
		return false
	}
	return true
}
