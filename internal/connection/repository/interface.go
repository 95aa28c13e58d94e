package repository

import (
	"time"

	conndomain "daybrief-backend/internal/connection/domain"
)

// ConnectionRepository defines the interface for connection persistence
type ConnectionRepository interface {
	// Upsert creates the (user, provider) connection or replaces an existing
	// row's credentials and status (repeat OAuth completion).
	Upsert(conn *conndomain.Connection) error
	FindByUserAndProvider(userID, provider string) (*conndomain.Connection, error)
	FindByUser(userID string) ([]*conndomain.Connection, error)
	// FindByExternalAccount resolves a provider push notification back to a
	// connection.
	FindByExternalAccount(provider, externalAccountID string) (*conndomain.Connection, error)
	// RecordSyncSuccess updates last_sync_at and the delta token after a
	// completed run.
	RecordSyncSuccess(id string, syncedAt time.Time, syncToken *string) error
	// MarkError flips the connection to the error status with a message.
	MarkError(id string, message string) error
	UpdateTokens(id string, accessToken, refreshToken string, expiry time.Time) error
	// Delete removes the connection row; dependent synced rows are cleaned
	// up by the disconnect cascade in the sync usecase.
	Delete(id string) error
	// ListActiveUserIDs returns users with at least one connected provider,
	// for the wall-clock auto-sync.
	ListActiveUserIDs() ([]string, error)
}
