package repository

import (
	briefdomain "daybrief-backend/internal/briefing/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// briefingRepository implements BriefingRepository interface
type briefingRepository struct {
	db *gorm.DB
}

// NewBriefingRepository creates a new instance of briefingRepository
func NewBriefingRepository(db *gorm.DB) BriefingRepository {
	return &briefingRepository{db: db}
}

func (r *briefingRepository) Upsert(b *briefdomain.Briefing) error {
	var existing briefdomain.Briefing
	err := r.db.Where("user_id = ? AND date = ?", b.UserID, b.Date).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		if b.ID == "" {
			b.ID = uuid.New().String()
		}
		return r.db.Create(b).Error
	} else if err != nil {
		return err
	}

	existing.Headline = b.Headline
	existing.Sections = b.Sections
	existing.Reasons = b.Reasons
	existing.GeneratedAt = b.GeneratedAt
	if err := r.db.Save(&existing).Error; err != nil {
		return err
	}
	*b = existing
	return nil
}

func (r *briefingRepository) FindByUserAndDate(userID, date string) (*briefdomain.Briefing, error) {
	var b briefdomain.Briefing
	err := r.db.Where("user_id = ? AND date = ?", userID, date).First(&b).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *briefingRepository) FindLatest(userID string) (*briefdomain.Briefing, error) {
	var b briefdomain.Briefing
	err := r.db.Where("user_id = ?", userID).Order("date DESC").First(&b).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *briefingRepository) DeleteByUser(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&briefdomain.Briefing{}).Error
}

func (r *briefingRepository) DeleteOlderThan(date string) (int64, error) {
	res := r.db.Where("date < ?", date).Delete(&briefdomain.Briefing{})
	return res.RowsAffected, res.Error
}
