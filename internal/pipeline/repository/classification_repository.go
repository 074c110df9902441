package repository

import (
	"time"

	pipedomain "mailpilot-backend/internal/pipeline/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// classificationRepository implements ClassificationRepository
type classificationRepository struct {
	db *gorm.DB
}

// NewClassificationRepository creates a new instance of classificationRepository
func NewClassificationRepository(db *gorm.DB) ClassificationRepository {
	return &classificationRepository{db: db}
}

func (r *classificationRepository) Upsert(result *pipedomain.ClassificationResult) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email_id"}, {Name: "entity_type"}, {Name: "entity_id"}},
		DoNothing: true,
	}).Create(result).Error
}

func (r *classificationRepository) FindByEmail(emailID string) ([]*pipedomain.ClassificationResult, error) {
	var results []*pipedomain.ClassificationResult
	err := r.db.Where("email_id = ?", emailID).Find(&results).Error
	return results, err
}

// reviewFlagRepository implements ReviewFlagRepository
type reviewFlagRepository struct {
	db *gorm.DB
}

// NewReviewFlagRepository creates a new instance of reviewFlagRepository
func NewReviewFlagRepository(db *gorm.DB) ReviewFlagRepository {
	return &reviewFlagRepository{db: db}
}

func (r *reviewFlagRepository) Create(flag *pipedomain.ReviewFlag) error {
	return r.db.Create(flag).Error
}

func (r *reviewFlagRepository) FindByID(id string) (*pipedomain.ReviewFlag, error) {
	var flag pipedomain.ReviewFlag
	err := r.db.Where("id = ?", id).First(&flag).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &flag, nil
}

func (r *reviewFlagRepository) FindPendingByUser(userID string, limit, offset int) ([]*pipedomain.ReviewFlag, int64, error) {
	// Flags are access-scoped through their connection.
	base := r.db.Model(&pipedomain.ReviewFlag{}).
		Joins("JOIN mail_connections ON mail_connections.id = review_flags.connection_id").
		Where("mail_connections.user_id = ? AND review_flags.status = ?", userID, pipedomain.FlagPending)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var flags []*pipedomain.ReviewFlag
	err := base.Order("review_flags.created_at DESC").
		Limit(limit).Offset(offset).
		Find(&flags).Error
	return flags, total, err
}

func (r *reviewFlagRepository) UpdateStatus(id, status string) error {
	return r.db.Model(&pipedomain.ReviewFlag{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error
}
