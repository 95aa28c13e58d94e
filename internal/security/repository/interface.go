package repository

import (
	"time"

	secdomain "daybrief-backend/internal/security/domain"
)

// VaultRepository stores encrypted redaction originals.
type VaultRepository interface {
	Save(entry *secdomain.VaultEntry) error
	FindByUserAndToken(userID, token string) (*secdomain.VaultEntry, error)
	FindByUserAndQuoteHash(userID, quoteHash string) (*secdomain.VaultEntry, error)
	CountByUserAndInfoType(userID, infoType string) (int64, error)
	DeleteByUser(userID string) error
	DeleteOlderThan(cutoff time.Time) (int64, error)
}
