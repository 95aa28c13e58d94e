package repository

import (
	"time"

	secdomain "daybrief-backend/internal/security/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// vaultRepository implements VaultRepository interface
type vaultRepository struct {
	db *gorm.DB
}

// NewVaultRepository creates a new instance of vaultRepository
func NewVaultRepository(db *gorm.DB) VaultRepository {
	return &vaultRepository{db: db}
}

func (r *vaultRepository) Save(entry *secdomain.VaultEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	return r.db.Create(entry).Error
}

func (r *vaultRepository) FindByUserAndToken(userID, token string) (*secdomain.VaultEntry, error) {
	var entry secdomain.VaultEntry
	err := r.db.Where("user_id = ? AND token = ?", userID, token).First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *vaultRepository) FindByUserAndQuoteHash(userID, quoteHash string) (*secdomain.VaultEntry, error) {
	var entry secdomain.VaultEntry
	err := r.db.Where("user_id = ? AND quote_hash = ?", userID, quoteHash).First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *vaultRepository) CountByUserAndInfoType(userID, infoType string) (int64, error) {
	var count int64
	err := r.db.Model(&secdomain.VaultEntry{}).
		Where("user_id = ? AND info_type = ?", userID, infoType).
		Count(&count).Error
	return count, err
}

func (r *vaultRepository) DeleteByUser(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&secdomain.VaultEntry{}).Error
}

func (r *vaultRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", cutoff).Delete(&secdomain.VaultEntry{})
	return res.RowsAffected, res.Error
}
