package repository

import (
	pipedomain "mailpilot-backend/internal/pipeline/domain"
)

// ClassificationRepository persists classification results.
type ClassificationRepository interface {
	// Upsert is keyed on (email, entity type, entity id) so a retried
	// agent run cannot duplicate a link.
	Upsert(result *pipedomain.ClassificationResult) error
	FindByEmail(emailID string) ([]*pipedomain.ClassificationResult, error)
}

// ReviewFlagRepository persists human-review flags.
type ReviewFlagRepository interface {
	Create(flag *pipedomain.ReviewFlag) error
	FindByID(id string) (*pipedomain.ReviewFlag, error)
	FindPendingByUser(userID string, limit, offset int) ([]*pipedomain.ReviewFlag, int64, error)
	UpdateStatus(id, status string) error
}
