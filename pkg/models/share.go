package models

import "time"

// ShareLink is a standalone sharing capability: anyone holding the link id
// (and the password, if set) may download the referenced item. It is
// independent of the per-item ACL model and only the owner may create one.
type ShareLink struct {
	ID             string     `json:"id"`
	ItemID         string     `json:"itemId"`
	CreatedBy      string     `json:"createdBy"`
	PasswordHash   []byte     `json:"-"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	MaxAccessCount *int64     `json:"maxAccessCount,omitempty"`
	AccessCount    int64      `json:"accessCount"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// HasPassword reports whether the link is password-gated.
func (l *ShareLink) HasPassword() bool {
	return len(l.PasswordHash) > 0
}

// Expired reports whether the link has passed its expiry time.
func (l *ShareLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// Exhausted reports whether the link has reached its access ceiling.
func (l *ShareLink) Exhausted() bool {
	return l.MaxAccessCount != nil && l.AccessCount >= *l.MaxAccessCount
}

// ShareAnalytics is a read-only reporting view over link creation and
// access events inside a rolling window.
type ShareAnalytics struct {
	WindowDays    int              `json:"windowDays"`
	LinksCreated  int64            `json:"linksCreated"`
	LinkAccesses  int64            `json:"linkAccesses"`
	AccessesByDay map[string]int64 `json:"accessesByDay"`
	TopItems      []ItemAccess     `json:"topItems"`
}

// ItemAccess counts accesses against one item for analytics.
type ItemAccess struct {
	ItemID   string `json:"itemId"`
	Accesses int64  `json:"accesses"`
}
