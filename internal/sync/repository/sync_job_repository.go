package repository

import (
	"time"

	syncdomain "daybrief-backend/internal/sync/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// syncJobRepository implements SyncJobRepository interface
type syncJobRepository struct {
	db *gorm.DB
}

// NewSyncJobRepository creates a new instance of syncJobRepository
func NewSyncJobRepository(db *gorm.DB) SyncJobRepository {
	return &syncJobRepository{db: db}
}

func (r *syncJobRepository) Create(job *syncdomain.SyncJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = syncdomain.StageQueued
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now()
	}
	return r.db.Create(job).Error
}

func (r *syncJobRepository) FindByID(id string) (*syncdomain.SyncJob, error) {
	var job syncdomain.SyncJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *syncJobRepository) FindByIdempotencyKey(key string) (*syncdomain.SyncJob, error) {
	var job syncdomain.SyncJob
	err := r.db.Where("idempotency_key = ?", key).First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *syncJobRepository) UpdateStage(id string, stage string) error {
	return r.db.Model(&syncdomain.SyncJob{}).Where("id = ?", id).Update("status", stage).Error
}

func (r *syncJobRepository) SaveCheckpoint(id string, pageToken string, itemsFetched int) error {
	return r.db.Model(&syncdomain.SyncJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"page_token":    pageToken,
		"items_fetched": itemsFetched,
	}).Error
}

func (r *syncJobRepository) MarkComplete(id string, stats syncdomain.RunStats) error {
	now := time.Now()
	return r.db.Model(&syncdomain.SyncJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":         syncdomain.StageComplete,
		"items_fetched":  stats.Fetched,
		"items_inserted": stats.Inserted,
		"items_updated":  stats.Updated,
		"items_deleted":  stats.Deleted,
		"completed_at":   now,
		"page_token":     "",
	}).Error
}

func (r *syncJobRepository) MarkError(id string, message string, retryable bool) error {
	now := time.Now()
	return r.db.Model(&syncdomain.SyncJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":          syncdomain.StageError,
		"error_message":   message,
		"error_retryable": retryable,
		"completed_at":    now,
	}).Error
}

func (r *syncJobRepository) FindStuck(staleAfter time.Duration) ([]*syncdomain.SyncJob, error) {
	cutoff := time.Now().Add(-staleAfter)
	var jobs []*syncdomain.SyncJob
	err := r.db.Where("status NOT IN ? AND updated_at < ?",
		[]string{syncdomain.StageComplete, syncdomain.StageError}, cutoff).
		Find(&jobs).Error
	return jobs, err
}

func (r *syncJobRepository) FindRecentByUser(userID string, limit int) ([]*syncdomain.SyncJob, error) {
	var jobs []*syncdomain.SyncJob
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}
