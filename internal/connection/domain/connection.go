package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Providers the sync engine mirrors. "mail" covers both the Gmail API and
// IMAP transports; which one serves a connection is recorded in Transport.
const (
	ProviderMail     = "mail"
	ProviderCalendar = "calendar"
	ProviderDrive    = "drive"
)

var AllProviders = []string{ProviderMail, ProviderCalendar, ProviderDrive}

const (
	StatusConnected    = "connected"
	StatusError        = "error"
	StatusDisconnected = "disconnected"
)

const (
	TransportGoogle = "google"
	TransportIMAP   = "imap"
)

// Connection is the per-(user, provider) link to an external account.
// The unique index enforces at most one connection per pair.
type Connection struct {
	ID                string     `json:"id" gorm:"primaryKey"`
	UserID            string     `json:"user_id" gorm:"uniqueIndex:idx_user_provider;not null"`
	Provider          string     `json:"provider" gorm:"uniqueIndex:idx_user_provider;not null"`
	Transport         string     `json:"transport" gorm:"default:'google'"`
	Status            string     `json:"status" gorm:"index;not null"`
	ExternalAccountID string     `json:"external_account_id"`
	AccessToken       string     `json:"-"`
	RefreshToken      string     `json:"-"`
	TokenExpiry       time.Time  `json:"-"`
	SyncToken         *string    `json:"-"` // opaque provider delta token (calendar)
	LastSyncAt        *time.Time `json:"last_sync_at"`
	LastError         string     `json:"last_error,omitempty"`
	Metadata          datatypes.JSON `json:"metadata,omitempty"`

	// IMAP transport settings; password is stored encrypted.
	ImapServer   string `json:"-"`
	ImapPort     int    `json:"-"`
	ImapUsername string `json:"-"`
	ImapPassword string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Connection) TableName() string {
	return "connections"
}
