package entity

import (
	"errors"
	"strings"

	"github.com/dreschagin/perf-audit-history/internal/domain/valueobject"
)

// ProfileOverrides - необязательные настройки профиля.
// Не участвуют в идентичности профиля.
type ProfileOverrides struct {
	Enabled            *bool
	BlockedURLPatterns []string
}

// AuditProfile - именованная конфигурация, под которой выполняются прогоны
type AuditProfile struct {
	key                valueobject.ProfileKey
	name               string
	device             string
	toolVersion        string
	enabled            *bool
	blockedURLPatterns []string
}

// NewAuditProfile создает профиль с уже вычисленным ключом
func NewAuditProfile(
	key valueobject.ProfileKey,
	name string,
	device string,
	toolVersion string,
	overrides ProfileOverrides,
) (*AuditProfile, error) {
	if key.IsZero() {
		return nil, errors.New("profile key is required")
	}

	var enabled *bool
	if overrides.Enabled != nil {
		v := *overrides.Enabled
		enabled = &v
	}

	return &AuditProfile{
		key:                key,
		name:               name,
		device:             strings.ToLower(strings.TrimSpace(device)),
		toolVersion:        strings.TrimSpace(toolVersion),
		enabled:            enabled,
		blockedURLPatterns: append([]string(nil), overrides.BlockedURLPatterns...),
	}, nil
}

// Key возвращает ключ идентичности
func (p *AuditProfile) Key() valueobject.ProfileKey {
	return p.key
}

// Name возвращает отображаемое имя профиля
func (p *AuditProfile) Name() string {
	return p.name
}

// Device возвращает нормализованное имя устройства
func (p *AuditProfile) Device() string {
	return p.device
}

// ToolVersion возвращает версию инструмента
func (p *AuditProfile) ToolVersion() string {
	return p.toolVersion
}

// IsEnabled - профиль включен, если явно не выключен
func (p *AuditProfile) IsEnabled() bool {
	return p.enabled == nil || *p.enabled
}

// Enabled возвращает исходное значение override (nil, если не задано)
func (p *AuditProfile) Enabled() *bool {
	if p.enabled == nil {
		return nil
	}
	v := *p.enabled
	return &v
}

// BlockedURLPatterns возвращает копию списка блокируемых URL
func (p *AuditProfile) BlockedURLPatterns() []string {
	return append([]string(nil), p.blockedURLPatterns...)
}

// ProfileSnapshot - состояние профиля на момент прогона, сохраняемое вместе со сводкой.
// Профиль может измениться позже, снимок - нет.
type ProfileSnapshot struct {
	Name               string   `json:"name"`
	Device             string   `json:"device,omitempty"`
	ToolVersion        string   `json:"toolVersion,omitempty"`
	Enabled            *bool    `json:"enabled,omitempty"`
	BlockedURLPatterns []string `json:"blockedUrlPatterns,omitempty"`
}

// Snapshot фиксирует текущее состояние профиля
func (p *AuditProfile) Snapshot() ProfileSnapshot {
	return ProfileSnapshot{
		Name:               p.name,
		Device:             p.device,
		ToolVersion:        p.toolVersion,
		Enabled:            p.Enabled(),
		BlockedURLPatterns: p.BlockedURLPatterns(),
	}
}

func (s ProfileSnapshot) clone() ProfileSnapshot {
	out := s
	if s.Enabled != nil {
		v := *s.Enabled
		out.Enabled = &v
	}
	out.BlockedURLPatterns = append([]string(nil), s.BlockedURLPatterns...)
	return out
}

// SameIdentity сравнивает профили только по ключу
func (p *AuditProfile) SameIdentity(other *AuditProfile) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.key == other.key
}
