package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Measurement - измеренное значение web vital (Value Object)
// Отсутствующая метрика представляется отсутствием ключа в map, а не нулем
type Measurement struct {
	value        float64
	unit         string
	score        *float64
	displayValue string
}

// NewMeasurement создает Measurement с валидацией
func NewMeasurement(value float64, unit string, score *float64, displayValue string) (Measurement, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Measurement{}, errors.New("measurement value must be finite")
	}
	if value < 0 {
		return Measurement{}, errors.New("measurement value cannot be negative")
	}
	if unit == "" {
		return Measurement{}, errors.New("unit cannot be empty")
	}

	var copied *float64
	if score != nil {
		s := *score
		copied = &s
	}

	return Measurement{
		value:        value,
		unit:         unit,
		score:        copied,
		displayValue: displayValue,
	}, nil
}

// Raw возвращает числовое значение
func (m Measurement) Raw() float64 {
	return m.value
}

// Unit возвращает единицу измерения
func (m Measurement) Unit() string {
	return m.unit
}

// Score возвращает оценку аудита, если инструмент ее выставил
func (m Measurement) Score() (float64, bool) {
	if m.score == nil {
		return 0, false
	}
	return *m.score, true
}

// DisplayValue возвращает человекочитаемое значение из отчета
func (m Measurement) DisplayValue() string {
	return m.displayValue
}

// String возвращает строковое представление
func (m Measurement) String() string {
	return fmt.Sprintf("%.2f %s", m.value, m.unit)
}

// Equals сравнивает два Measurement
func (m Measurement) Equals(other Measurement) bool {
	if m.value != other.value || m.unit != other.unit || m.displayValue != other.displayValue {
		return false
	}
	if (m.score == nil) != (other.score == nil) {
		return false
	}
	return m.score == nil || *m.score == *other.score
}

type measurementJSON struct {
	Value        float64  `json:"value"`
	Unit         string   `json:"unit"`
	Score        *float64 `json:"score,omitempty"`
	DisplayValue string   `json:"displayValue,omitempty"`
}

// MarshalJSON сериализует Measurement для хранения деталей отчета
func (m Measurement) MarshalJSON() ([]byte, error) {
	return json.Marshal(measurementJSON{
		Value:        m.value,
		Unit:         m.unit,
		Score:        m.score,
		DisplayValue: m.displayValue,
	})
}

// UnmarshalJSON восстанавливает Measurement с той же валидацией, что и NewMeasurement
func (m *Measurement) UnmarshalJSON(data []byte) error {
	var raw measurementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewMeasurement(raw.Value, raw.Unit, raw.Score, raw.DisplayValue)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
