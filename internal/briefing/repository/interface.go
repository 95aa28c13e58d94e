package repository

import (
	briefdomain "daybrief-backend/internal/briefing/domain"
)

// BriefingRepository stores generated daily briefings, one row per
// (user, day), the day taken in the user's timezone.
type BriefingRepository interface {
	Upsert(b *briefdomain.Briefing) error
	FindByUserAndDate(userID, date string) (*briefdomain.Briefing, error)
	FindLatest(userID string) (*briefdomain.Briefing, error)
	DeleteByUser(userID string) error
	DeleteOlderThan(date string) (int64, error)
}
