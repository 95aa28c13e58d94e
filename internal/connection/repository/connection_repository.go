package repository

import (
	"time"

	conndomain "daybrief-backend/internal/connection/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// connectionRepository implements ConnectionRepository interface
type connectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository creates a new instance of connectionRepository
func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) Upsert(conn *conndomain.Connection) error {
	var existing conndomain.Connection
	err := r.db.Where("user_id = ? AND provider = ?", conn.UserID, conn.Provider).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		if conn.ID == "" {
			conn.ID = uuid.New().String()
		}
		conn.Status = conndomain.StatusConnected
		return r.db.Create(conn).Error
	} else if err != nil {
		return err
	}

	// Re-connect: keep the row identity, replace credentials and reset state.
	existing.Transport = conn.Transport
	existing.Status = conndomain.StatusConnected
	existing.ExternalAccountID = conn.ExternalAccountID
	existing.AccessToken = conn.AccessToken
	existing.RefreshToken = conn.RefreshToken
	existing.TokenExpiry = conn.TokenExpiry
	existing.ImapServer = conn.ImapServer
	existing.ImapPort = conn.ImapPort
	existing.ImapUsername = conn.ImapUsername
	existing.ImapPassword = conn.ImapPassword
	existing.LastError = ""
	existing.Metadata = conn.Metadata
	if err := r.db.Save(&existing).Error; err != nil {
		return err
	}
	*conn = existing
	return nil
}

func (r *connectionRepository) FindByUserAndProvider(userID, provider string) (*conndomain.Connection, error) {
	var conn conndomain.Connection
	err := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&conn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) FindByUser(userID string) ([]*conndomain.Connection, error) {
	var conns []*conndomain.Connection
	err := r.db.Where("user_id = ?", userID).Order("provider").Find(&conns).Error
	return conns, err
}

func (r *connectionRepository) FindByExternalAccount(provider, externalAccountID string) (*conndomain.Connection, error) {
	var conn conndomain.Connection
	err := r.db.Where("provider = ? AND external_account_id = ?", provider, externalAccountID).First(&conn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) RecordSyncSuccess(id string, syncedAt time.Time, syncToken *string) error {
	updates := map[string]interface{}{
		"status":       conndomain.StatusConnected,
		"last_sync_at": syncedAt,
		"last_error":   "",
	}
	if syncToken != nil {
		updates["sync_token"] = *syncToken
	}
	return r.db.Model(&conndomain.Connection{}).Where("id = ?", id).Updates(updates).Error
}

func (r *connectionRepository) MarkError(id string, message string) error {
	return r.db.Model(&conndomain.Connection{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     conndomain.StatusError,
		"last_error": message,
	}).Error
}

func (r *connectionRepository) UpdateTokens(id string, accessToken, refreshToken string, expiry time.Time) error {
	updates := map[string]interface{}{
		"access_token": accessToken,
		"token_expiry": expiry,
	}
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	return r.db.Model(&conndomain.Connection{}).Where("id = ?", id).Updates(updates).Error
}

func (r *connectionRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&conndomain.Connection{}).Error
}

func (r *connectionRepository) ListActiveUserIDs() ([]string, error) {
	var userIDs []string
	err := r.db.Model(&conndomain.Connection{}).
		Where("status = ?", conndomain.StatusConnected).
		Distinct().
		Pluck("user_id", &userIDs).Error
	return userIDs, err
}
