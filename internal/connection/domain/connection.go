package domain

import "time"

// Provider identifies the mail backend a connection syncs from.
const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

// MailConnection represents one linked mailbox. Created on OAuth grant,
// deactivated (never deleted) on revocation or a rejected token refresh.
type MailConnection struct {
	ID                 string     `json:"id" gorm:"primaryKey"`
	UserID             string     `json:"user_id" gorm:"index;not null"`
	Provider           string     `json:"provider" gorm:"default:gmail"`
	EmailAddress       string     `json:"email_address" gorm:"index;not null"`
	AccessToken        string     `json:"-"`
	RefreshTokenSealed string     `json:"-"`
	RefreshToken       string     `json:"-" gorm:"-"` // unsealed in memory only
	TokenExpiry        time.Time  `json:"token_expiry"`
	LastHistoryID      *string    `json:"last_history_id"`
	LastSyncAt         *time.Time `json:"last_sync_at"`
	Active             bool       `json:"active" gorm:"default:true"`

	// IMAP-only settings; empty for Gmail connections
	IMAPHost string `json:"-"`
	IMAPPort int    `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenUpdate carries a refreshed credential back to persistence.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// TokenUpdateFunc is invoked whenever the provider hands back a refreshed token.
type TokenUpdateFunc func(update TokenUpdate) error
