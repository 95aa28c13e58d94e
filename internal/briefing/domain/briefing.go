package domain

import (
	"time"

	syncdomain "daybrief-backend/internal/sync/domain"
	"gorm.io/datatypes"
)

// Briefing is the generated daily summary for one user and one day in the
// user's timezone. Regeneration overwrites the row in place; history beyond
// the day is not kept.
type Briefing struct {
	ID       string `json:"id" gorm:"primaryKey"`
	UserID   string `json:"user_id" gorm:"uniqueIndex:idx_briefing_user_date;not null"`
	Date     string `json:"date" gorm:"uniqueIndex:idx_briefing_user_date;not null"` // local day, 2006-01-02
	Headline string `json:"headline"`
	Sections datatypes.JSON `json:"sections"`

	// Reasons records why the last regeneration fired.
	Reasons syncdomain.StringArray `json:"reasons" gorm:"type:text"`

	GeneratedAt time.Time `json:"generated_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Briefing) TableName() string {
	return "briefings"
}
