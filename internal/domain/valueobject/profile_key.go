package valueobject

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ProfileKeyKind различает явный идентификатор профиля и производный
type ProfileKeyKind string

const (
	ProfileKeyExplicit ProfileKeyKind = "explicit"
	ProfileKeyDerived  ProfileKeyKind = "derived"
)

// ProfileKey - структурный ключ идентичности профиля аудита (Value Object)
// Сравнивается оператором ==, поэтому пригоден как ключ map
type ProfileKey struct {
	kind ProfileKeyKind
	id   string
}

// NewExplicitProfileKey использует внешний идентификатор как есть
func NewExplicitProfileKey(id string) (ProfileKey, error) {
	if strings.TrimSpace(id) == "" {
		return ProfileKey{}, errors.New("explicit profile id cannot be blank")
	}
	return ProfileKey{kind: ProfileKeyExplicit, id: id}, nil
}

// DeriveProfileKey строит ключ из устройства и версии инструмента.
// Формат является частью схемы хранения: его изменение требует миграции истории.
func DeriveProfileKey(device, toolVersion string) (ProfileKey, error) {
	device = strings.ToLower(strings.TrimSpace(device))
	toolVersion = strings.TrimSpace(toolVersion)

	if device == "" {
		return ProfileKey{}, errors.New("device is required to derive profile key")
	}
	if toolVersion == "" {
		return ProfileKey{}, errors.New("tool version is required to derive profile key")
	}

	return ProfileKey{
		kind: ProfileKeyDerived,
		id:   url.QueryEscape(device) + "|" + url.QueryEscape(toolVersion),
	}, nil
}

// ReconstructProfileKey восстанавливает ключ из хранилища (для Repository)
func ReconstructProfileKey(kind, id string) (ProfileKey, error) {
	switch ProfileKeyKind(kind) {
	case ProfileKeyExplicit:
		return NewExplicitProfileKey(id)
	case ProfileKeyDerived:
		if !strings.Contains(id, "|") {
			return ProfileKey{}, fmt.Errorf("malformed derived profile id: %q", id)
		}
		return ProfileKey{kind: ProfileKeyDerived, id: id}, nil
	default:
		return ProfileKey{}, fmt.Errorf("unknown profile key kind: %q", kind)
	}
}

// Kind возвращает вид ключа
func (k ProfileKey) Kind() ProfileKeyKind {
	return k.kind
}

// ID возвращает идентификатор в рамках вида
func (k ProfileKey) ID() string {
	return k.id
}

// IsZero сообщает, что ключ не был инициализирован
func (k ProfileKey) IsZero() bool {
	return k.kind == "" && k.id == ""
}

// Equals сравнивает два ключа
func (k ProfileKey) Equals(other ProfileKey) bool {
	return k == other
}

// String возвращает однозначное строковое представление "kind:id"
func (k ProfileKey) String() string {
	return string(k.kind) + ":" + k.id
}
