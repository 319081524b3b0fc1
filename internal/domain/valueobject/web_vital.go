package valueobject

import "fmt"

// WebVital - имя метрики из фиксированного набора web vitals (Value Object)
type WebVital string

const (
	FirstContentfulPaint   WebVital = "first-contentful-paint"
	LargestContentfulPaint WebVital = "largest-contentful-paint"
	SpeedIndex             WebVital = "speed-index"
	Interactive            WebVital = "interactive"
	TotalBlockingTime      WebVital = "total-blocking-time"
	CumulativeLayoutShift  WebVital = "cumulative-layout-shift"
	ServerResponseTime     WebVital = "server-response-time"

	// Метрики Lighthouse 5, которых нет в более новых версиях
	MaxPotentialFID      WebVital = "max-potential-fid"
	FirstMeaningfulPaint WebVital = "first-meaningful-paint"
	FirstCPUIdle         WebVital = "first-cpu-idle"
)

// Validate проверяет, что метрика входит в канонический набор
func (v WebVital) Validate() error {
	for _, known := range AllWebVitals() {
		if v == known {
			return nil
		}
	}
	return fmt.Errorf("unknown web vital: %s", string(v))
}

// String возвращает строковое представление
func (v WebVital) String() string {
	return string(v)
}

// Unit возвращает единицу измерения метрики
func (v WebVital) Unit() string {
	if v == CumulativeLayoutShift {
		return "unitless"
	}
	return "ms"
}

// AllWebVitals возвращает канонический набор в стабильном порядке
func AllWebVitals() []WebVital {
	return []WebVital{
		FirstContentfulPaint,
		LargestContentfulPaint,
		SpeedIndex,
		Interactive,
		TotalBlockingTime,
		CumulativeLayoutShift,
		ServerResponseTime,
		MaxPotentialFID,
		FirstMeaningfulPaint,
		FirstCPUIdle,
	}
}
