package domain

import "time"

// VaultEntry holds one redacted original, encrypted at rest. The (user,
// token) pair is unique: a token printed in mirrored text always resolves to
// exactly one ciphertext for its owner.
type VaultEntry struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"uniqueIndex:idx_vault_user_token;uniqueIndex:idx_vault_user_quote;not null"`
	Token      string    `json:"token" gorm:"uniqueIndex:idx_vault_user_token;not null"`
	InfoType   string    `json:"info_type"`
	// QuoteHash is a SHA-256 digest of the plaintext quote, so the same value
	// maps to the same token across runs without decrypting the vault.
	QuoteHash  string    `json:"-" gorm:"uniqueIndex:idx_vault_user_quote"`
	Ciphertext string    `json:"-" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (VaultEntry) TableName() string {
	return "vault_entries"
}
