package repository

import (
	"time"

	pipedomain "mailpilot-backend/internal/pipeline/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// deletionRecordRepository implements DeletionRecordRepository
type deletionRecordRepository struct {
	db *gorm.DB
}

// NewDeletionRecordRepository creates a new instance of deletionRecordRepository
func NewDeletionRecordRepository(db *gorm.DB) DeletionRecordRepository {
	return &deletionRecordRepository{db: db}
}

func (r *deletionRecordRepository) Record(record *pipedomain.DeletionRecord) error {
	// Duplicate inserts are a no-op, not an error. The conflict key is
	// the full (connection, message id) pair so the same provider id
	// arriving from two mailboxes yields two rows.
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "connection_id"}, {Name: "provider_message_id"}},
		DoNothing: true,
	}).Create(record).Error
}

func (r *deletionRecordRepository) FilterKnown(connectionID string, messageIDs []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(messageIDs) == 0 {
		return known, nil
	}

	var ids []string
	err := r.db.Model(&pipedomain.DeletionRecord{}).
		Where("connection_id = ? AND provider_message_id IN ?", connectionID, messageIDs).
		Pluck("provider_message_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		known[id] = true
	}
	return known, nil
}

func (r *deletionRecordRepository) PruneOlderThan(cutoff time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", cutoff).Delete(&pipedomain.DeletionRecord{})
	return res.RowsAffected, res.Error
}
