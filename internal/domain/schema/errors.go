package schema

import (
	"errors"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
)

var (
	// ErrUnsupportedVersion - ни один адаптер не покрывает заявленную версию
	ErrUnsupportedVersion = errors.New("unsupported report schema version")
	// ErrMissingRequiredField - отсутствует обязательное поле отчета
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrMalformedReport - документ не является JSON-объектом
	ErrMalformedReport = errors.New("malformed report")
	// ErrRecoverableSection - раздел пропущен, отчет остается валидным
	ErrRecoverableSection = entity.ErrRecoverableSection
)
