package sharelink

import (
	"time"

	"github.com/google/uuid"
)

// Settings are the access bounds chosen by the credential owner when
// creating a share link. AllowDownload defaults to true.
type Settings struct {
	RequiresPassword bool   `json:"requires_password"`
	PasswordHash     string `json:"-"`
	OneTimeUse       bool   `json:"one_time_use"`
	AllowDownload    bool   `json:"allow_download"`
	MaxViews         *int   `json:"max_views,omitempty"`
}

// ShareLink is a scoped, revocable access grant to a single credential,
// bounded by time, view count, and optionally a password.
//
// Active becomes false permanently once the expiry passes, the view count
// reaches MaxViews, or a one-time link is used. There is no transition
// out of the inactive state.
type ShareLink struct {
	ID           uuid.UUID  `json:"id"             db:"id"`
	CredentialID uuid.UUID  `json:"credential_id"  db:"credential_id"`
	CreatedBy    uuid.UUID  `json:"created_by"     db:"created_by"`
	ShareID      string     `json:"share_id"       db:"share_id"`
	Link         string     `json:"link"           db:"link"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	Active       bool       `json:"active"         db:"active"`
	ViewCount    int        `json:"view_count"     db:"view_count"`
	LastViewedAt *time.Time `json:"last_viewed_at,omitempty" db:"last_viewed_at"`
	Settings     Settings   `json:"settings"       db:"settings"`
	CreatedAt    time.Time  `json:"created_at"     db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"     db:"updated_at"`
}

// expiredAt reports whether the link's time bound has passed at now.
func (l *ShareLink) expiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// exhaustedBy reports whether viewCount has consumed the link's view
// budget.
func (l *ShareLink) exhaustedBy(viewCount int) bool {
	if l.Settings.OneTimeUse && viewCount >= 1 {
		return true
	}
	return l.Settings.MaxViews != nil && viewCount >= *l.Settings.MaxViews
}

// CreateRequest is the payload for creating a share link.
type CreateRequest struct {
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Password      string     `json:"password,omitempty"`
	OneTimeUse    bool       `json:"one_time_use"`
	MaxViews      *int       `json:"max_views,omitempty"`
	AllowDownload *bool      `json:"allow_download,omitempty"` // nil = true
	// NotifyEmail, when set, has the registry mail the link to the
	// recipient on the owner's behalf.
	NotifyEmail string `json:"notify_email,omitempty" binding:"omitempty,email"`
}
