package repository

import (
	"time"

	syncdomain "daybrief-backend/internal/sync/domain"
)

// SyncJobRepository persists sync job rows. Every stage transition goes
// through UpdateStage/SaveCheckpoint before the stage body runs.
type SyncJobRepository interface {
	Create(job *syncdomain.SyncJob) error
	FindByID(id string) (*syncdomain.SyncJob, error)
	FindByIdempotencyKey(key string) (*syncdomain.SyncJob, error)
	UpdateStage(id string, stage string) error
	SaveCheckpoint(id string, pageToken string, itemsFetched int) error
	MarkComplete(id string, stats syncdomain.RunStats) error
	MarkError(id string, message string, retryable bool) error
	FindStuck(staleAfter time.Duration) ([]*syncdomain.SyncJob, error)
	FindRecentByUser(userID string, limit int) ([]*syncdomain.SyncJob, error)
}

// EmailRepository stores mirrored mail. Upsert reports whether the row was
// created and, if not, whether anything actually changed, so run counts are
// explicit rather than derived.
type EmailRepository interface {
	Upsert(msg *syncdomain.EmailMessage) (created bool, changed bool, err error)
	DeleteByNativeIDs(userID string, nativeIDs []string) (int64, error)
	ListRecent(userID string, since time.Time, limit int) ([]*syncdomain.EmailMessage, error)
	DeleteOlderThan(cutoff time.Time) ([]syncdomain.RecordRef, error)
	DeleteByUser(userID string) error
}

// EventRepository stores mirrored calendar events plus the computed
// conflict edges. UpdateConflicts keys both sides of an edge by the
// provider-native event id.
type EventRepository interface {
	Upsert(ev *syncdomain.CalendarEvent) (created bool, changed bool, err error)
	DeleteByNativeIDs(userID string, nativeIDs []string) (int64, error)
	ListInWindow(userID string, from, to time.Time) ([]*syncdomain.CalendarEvent, error)
	UpdateConflicts(userID string, conflicts map[string][]string) error
	DeleteOlderThan(cutoff time.Time) ([]syncdomain.RecordRef, error)
	DeleteByUser(userID string) error
}

// DocumentRepository stores mirrored file metadata.
type DocumentRepository interface {
	Upsert(doc *syncdomain.Document) (created bool, changed bool, err error)
	DeleteByNativeIDs(userID string, nativeIDs []string) (int64, error)
	ListRecent(userID string, since time.Time, limit int) ([]*syncdomain.Document, error)
	DeleteOlderThan(cutoff time.Time) ([]syncdomain.RecordRef, error)
	DeleteByUser(userID string) error
}
