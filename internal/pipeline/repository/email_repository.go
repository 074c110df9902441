package repository

import (
	"time"

	pipedomain "mailpilot-backend/internal/pipeline/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// emailRepository implements EmailRepository
type emailRepository struct {
	db *gorm.DB
}

// NewEmailRepository creates a new instance of emailRepository
func NewEmailRepository(db *gorm.DB) EmailRepository {
	return &emailRepository{db: db}
}

func (r *emailRepository) Upsert(email *pipedomain.NormalizedEmail) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "connection_id"}, {Name: "message_id"}},
		DoNothing: true,
	}).Create(email).Error
}

func (r *emailRepository) FindByID(id string) (*pipedomain.NormalizedEmail, error) {
	var email pipedomain.NormalizedEmail
	err := r.db.Where("id = ?", id).First(&email).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) FindUnprocessed(limit int) ([]*pipedomain.NormalizedEmail, error) {
	var emails []*pipedomain.NormalizedEmail
	err := r.db.Where("processed_at IS NULL").
		Order("received_at ASC").
		Limit(limit).
		Find(&emails).Error
	return emails, err
}

func (r *emailRepository) MarkProcessed(id string) error {
	now := time.Now()
	return r.db.Model(&pipedomain.NormalizedEmail{}).Where("id = ?", id).
		Update("processed_at", now).Error
}

func (r *emailRepository) HardDelete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email_id = ?", id).Delete(&pipedomain.ClassificationResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where("email_id = ?", id).Delete(&pipedomain.ReviewFlag{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&pipedomain.NormalizedEmail{}).Error
	})
}
