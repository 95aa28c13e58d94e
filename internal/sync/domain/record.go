package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Item kinds, matching the provider that produced them.
const (
	KindEmail    = "email"
	KindEvent    = "event"
	KindDocument = "document"
)

// Item is one record as fetched from a provider, before redaction and
// persistence. The provider clients normalize their wire formats into this
// shape so the state machine stays provider-agnostic.
type Item struct {
	NativeID string
	Kind     string

	// Email fields
	Subject    string
	FromAddr   string
	Body       string
	ReceivedAt time.Time

	// Event fields. For all-day events StartsAt/EndsAt carry the provider's
	// dates with the exclusive end already normalized to inclusive-minus-one-day.
	Title    string
	StartsAt time.Time
	EndsAt   time.Time
	AllDay   bool

	// Document fields
	Name       string
	MimeType   string
	ModifiedAt time.Time

	// Deleted marks a provider-reported cancellation/removal; the persisting
	// stage deletes instead of upserting.
	Deleted bool
}

// RecordRef identifies a stored record by owner and provider-native id,
// enough to clean up state derived from it (embeddings, vault tokens).
type RecordRef struct {
	UserID   string
	NativeID string
}

// StringArray stores a JSON array in a text column.
type StringArray []string

// Value implements driver.Valuer
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = []string{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		*a = []string{}
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// EmailMessage is a mirrored mail message. Body and subject are stored only
// in redacted form.
type EmailMessage struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"uniqueIndex:idx_email_user_native;not null"`
	NativeID   string    `json:"native_id" gorm:"uniqueIndex:idx_email_user_native;not null"`
	Subject    string    `json:"subject"`
	FromAddr   string    `json:"from_addr"`
	Body       string    `json:"body" gorm:"type:text"`
	ReceivedAt time.Time `json:"received_at" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (EmailMessage) TableName() string {
	return "email_messages"
}

// CalendarEvent is a mirrored calendar event. HasConflict/ConflictWith are
// computed by the analyzing stage, never provider-supplied.
type CalendarEvent struct {
	ID       string `json:"id" gorm:"primaryKey"`
	UserID   string `json:"user_id" gorm:"uniqueIndex:idx_event_user_native;not null"`
	NativeID string `json:"native_id" gorm:"uniqueIndex:idx_event_user_native;not null"`
	Title    string `json:"title"`

	StartsAt time.Time `json:"starts_at" gorm:"index"`
	// For all-day events EndsAt is the inclusive last day (the provider's
	// exclusive end minus one day).
	EndsAt time.Time `json:"ends_at"`
	AllDay bool      `json:"all_day"`

	HasConflict  bool        `json:"has_conflict"`
	ConflictWith StringArray `json:"conflict_with" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (CalendarEvent) TableName() string {
	return "calendar_events"
}

// Document is a mirrored storage file's metadata.
type Document struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"uniqueIndex:idx_doc_user_native;not null"`
	NativeID   string    `json:"native_id" gorm:"uniqueIndex:idx_doc_user_native;not null"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type"`
	ModifiedAt time.Time `json:"modified_at" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Document) TableName() string {
	return "documents"
}
