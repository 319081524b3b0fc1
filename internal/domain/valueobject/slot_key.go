package valueobject

import (
	"errors"
	"strings"
)

// SlotKey адресует одну последовательность истории: сайт, страница, профиль
type SlotKey struct {
	SiteID  string
	PageID  string
	Profile ProfileKey
}

// NewSlotKey создает SlotKey с валидацией
func NewSlotKey(siteID, pageID string, profile ProfileKey) (SlotKey, error) {
	slot := SlotKey{SiteID: siteID, PageID: pageID, Profile: profile}
	if err := slot.Validate(); err != nil {
		return SlotKey{}, err
	}
	return slot, nil
}

// Validate проверяет, что все части ключа заданы
func (s SlotKey) Validate() error {
	if strings.TrimSpace(s.SiteID) == "" {
		return errors.New("site id is required")
	}
	if strings.TrimSpace(s.PageID) == "" {
		return errors.New("page id is required")
	}
	if s.Profile.IsZero() {
		return errors.New("profile key is required")
	}
	return nil
}

// String используется в логах и ключах кеша
func (s SlotKey) String() string {
	return s.SiteID + "/" + s.PageID + "/" + s.Profile.String()
}
