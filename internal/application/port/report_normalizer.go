package port

import "github.com/dreschagin/perf-audit-history/internal/domain/entity"

// ReportNormalizer converts a raw Lighthouse JSON report into the canonical model.
// An empty declaredVersion means the version is read from the report itself.
type ReportNormalizer interface {
	Normalize(raw []byte, declaredVersion string) (*entity.CanonicalReport, error)
}
