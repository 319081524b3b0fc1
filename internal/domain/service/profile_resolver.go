package service

import (
	"fmt"
	"strings"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

// ProfileResolver вычисляет идентичность профиля аудита (Domain Service)
type ProfileResolver struct{}

// NewProfileResolver создает новый ProfileResolver
func NewProfileResolver() *ProfileResolver {
	return &ProfileResolver{}
}

// Resolve использует explicitID как есть, иначе выводит ключ из устройства и версии.
// Overrides переносятся в профиль, но на ключ не влияют.
func (r *ProfileResolver) Resolve(
	device string,
	toolVersion string,
	explicitID string,
	overrides entity.ProfileOverrides,
) (*entity.AuditProfile, error) {
	var (
		key valueobject.ProfileKey
		err error
	)

	if explicitID != "" {
		key, err = valueobject.NewExplicitProfileKey(explicitID)
	} else {
		key, err = valueobject.DeriveProfileKey(device, toolVersion)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve profile: %w", err)
	}

	return entity.NewAuditProfile(key, profileName(key, device, toolVersion), device, toolVersion, overrides)
}

func profileName(key valueobject.ProfileKey, device, toolVersion string) string {
	if key.Kind() == valueobject.ProfileKeyExplicit {
		return key.ID()
	}
	return strings.ToLower(strings.TrimSpace(device)) + " / lighthouse " + strings.TrimSpace(toolVersion)
}
