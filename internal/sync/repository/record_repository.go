package repository

import (
	"time"

	syncdomain "daybrief-backend/internal/sync/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// emailRepository implements EmailRepository interface
type emailRepository struct {
	db *gorm.DB
}

// NewEmailRepository creates a new instance of emailRepository
func NewEmailRepository(db *gorm.DB) EmailRepository {
	return &emailRepository{db: db}
}

func (r *emailRepository) Upsert(msg *syncdomain.EmailMessage) (bool, bool, error) {
	var existing syncdomain.EmailMessage
	err := r.db.Where("user_id = ? AND native_id = ?", msg.UserID, msg.NativeID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		return true, false, r.db.Create(msg).Error
	} else if err != nil {
		return false, false, err
	}

	changed := existing.Subject != msg.Subject ||
		existing.FromAddr != msg.FromAddr ||
		existing.Body != msg.Body ||
		!existing.ReceivedAt.Equal(msg.ReceivedAt)
	if !changed {
		*msg = existing
		return false, false, nil
	}

	existing.Subject = msg.Subject
	existing.FromAddr = msg.FromAddr
	existing.Body = msg.Body
	existing.ReceivedAt = msg.ReceivedAt
	if err := r.db.Save(&existing).Error; err != nil {
		return false, false, err
	}
	*msg = existing
	return false, true, nil
}

func (r *emailRepository) DeleteByNativeIDs(userID string, nativeIDs []string) (int64, error) {
	if len(nativeIDs) == 0 {
		return 0, nil
	}
	res := r.db.Where("user_id = ? AND native_id IN ?", userID, nativeIDs).Delete(&syncdomain.EmailMessage{})
	return res.RowsAffected, res.Error
}

func (r *emailRepository) ListRecent(userID string, since time.Time, limit int) ([]*syncdomain.EmailMessage, error) {
	var msgs []*syncdomain.EmailMessage
	err := r.db.Where("user_id = ? AND received_at >= ?", userID, since).
		Order("received_at DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// DeleteOlderThan removes messages received before the cutoff and returns
// their refs so derived state can be cleaned up alongside.
func (r *emailRepository) DeleteOlderThan(cutoff time.Time) ([]syncdomain.RecordRef, error) {
	var refs []syncdomain.RecordRef
	err := r.db.Model(&syncdomain.EmailMessage{}).
		Select("user_id", "native_id").
		Where("received_at < ?", cutoff).
		Find(&refs).Error
	if err != nil || len(refs) == 0 {
		return nil, err
	}
	if err := r.db.Where("received_at < ?", cutoff).Delete(&syncdomain.EmailMessage{}).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *emailRepository) DeleteByUser(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&syncdomain.EmailMessage{}).Error
}

// eventRepository implements EventRepository interface
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new instance of eventRepository
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Upsert(ev *syncdomain.CalendarEvent) (bool, bool, error) {
	var existing syncdomain.CalendarEvent
	err := r.db.Where("user_id = ? AND native_id = ?", ev.UserID, ev.NativeID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		return true, false, r.db.Create(ev).Error
	} else if err != nil {
		return false, false, err
	}

	changed := existing.Title != ev.Title ||
		!existing.StartsAt.Equal(ev.StartsAt) ||
		!existing.EndsAt.Equal(ev.EndsAt) ||
		existing.AllDay != ev.AllDay
	if !changed {
		*ev = existing
		return false, false, nil
	}

	existing.Title = ev.Title
	existing.StartsAt = ev.StartsAt
	existing.EndsAt = ev.EndsAt
	existing.AllDay = ev.AllDay
	if err := r.db.Save(&existing).Error; err != nil {
		return false, false, err
	}
	*ev = existing
	return false, true, nil
}

func (r *eventRepository) DeleteByNativeIDs(userID string, nativeIDs []string) (int64, error) {
	if len(nativeIDs) == 0 {
		return 0, nil
	}
	res := r.db.Where("user_id = ? AND native_id IN ?", userID, nativeIDs).Delete(&syncdomain.CalendarEvent{})
	return res.RowsAffected, res.Error
}

func (r *eventRepository) ListInWindow(userID string, from, to time.Time) ([]*syncdomain.CalendarEvent, error) {
	var events []*syncdomain.CalendarEvent
	err := r.db.Where("user_id = ? AND starts_at < ? AND ends_at > ?", userID, to, from).
		Order("starts_at").
		Find(&events).Error
	return events, err
}

// UpdateConflicts rewrites the conflict flags for the given user, keyed by
// provider-native event id on both sides of each edge. Events not present in
// the map are cleared, so stale edges never survive a re-analysis.
func (r *eventRepository) UpdateConflicts(userID string, conflicts map[string][]string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&syncdomain.CalendarEvent{}).
			Where("user_id = ? AND has_conflict = ?", userID, true).
			Updates(map[string]interface{}{
				"has_conflict":  false,
				"conflict_with": "[]",
			}).Error; err != nil {
			return err
		}
		for nativeID, with := range conflicts {
			if len(with) == 0 {
				continue
			}
			if err := tx.Model(&syncdomain.CalendarEvent{}).
				Where("user_id = ? AND native_id = ?", userID, nativeID).
				Updates(map[string]interface{}{
					"has_conflict":  true,
					"conflict_with": syncdomain.StringArray(with),
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *eventRepository) DeleteOlderThan(cutoff time.Time) ([]syncdomain.RecordRef, error) {
	var refs []syncdomain.RecordRef
	err := r.db.Model(&syncdomain.CalendarEvent{}).
		Select("user_id", "native_id").
		Where("ends_at < ?", cutoff).
		Find(&refs).Error
	if err != nil || len(refs) == 0 {
		return nil, err
	}
	if err := r.db.Where("ends_at < ?", cutoff).Delete(&syncdomain.CalendarEvent{}).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *eventRepository) DeleteByUser(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&syncdomain.CalendarEvent{}).Error
}

// documentRepository implements DocumentRepository interface
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new instance of documentRepository
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Upsert(doc *syncdomain.Document) (bool, bool, error) {
	var existing syncdomain.Document
	err := r.db.Where("user_id = ? AND native_id = ?", doc.UserID, doc.NativeID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		if doc.ID == "" {
			doc.ID = uuid.New().String()
		}
		return true, false, r.db.Create(doc).Error
	} else if err != nil {
		return false, false, err
	}

	changed := existing.Name != doc.Name ||
		existing.MimeType != doc.MimeType ||
		!existing.ModifiedAt.Equal(doc.ModifiedAt)
	if !changed {
		*doc = existing
		return false, false, nil
	}

	existing.Name = doc.Name
	existing.MimeType = doc.MimeType
	existing.ModifiedAt = doc.ModifiedAt
	if err := r.db.Save(&existing).Error; err != nil {
		return false, false, err
	}
	*doc = existing
	return false, true, nil
}

func (r *documentRepository) DeleteByNativeIDs(userID string, nativeIDs []string) (int64, error) {
	if len(nativeIDs) == 0 {
		return 0, nil
	}
	res := r.db.Where("user_id = ? AND native_id IN ?", userID, nativeIDs).Delete(&syncdomain.Document{})
	return res.RowsAffected, res.Error
}

func (r *documentRepository) ListRecent(userID string, since time.Time, limit int) ([]*syncdomain.Document, error) {
	var docs []*syncdomain.Document
	err := r.db.Where("user_id = ? AND modified_at >= ?", userID, since).
		Order("modified_at DESC").
		Limit(limit).
		Find(&docs).Error
	return docs, err
}

func (r *documentRepository) DeleteOlderThan(cutoff time.Time) ([]syncdomain.RecordRef, error) {
	var refs []syncdomain.RecordRef
	err := r.db.Model(&syncdomain.Document{}).
		Select("user_id", "native_id").
		Where("modified_at < ?", cutoff).
		Find(&refs).Error
	if err != nil || len(refs) == 0 {
		return nil, err
	}
	if err := r.db.Where("modified_at < ?", cutoff).Delete(&syncdomain.Document{}).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *documentRepository) DeleteByUser(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&syncdomain.Document{}).Error
}
