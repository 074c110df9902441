package repository

import (
	pipedomain "mailpilot-backend/internal/pipeline/domain"
)

// EmailRepository persists decoded messages.
type EmailRepository interface {
	// Upsert stores an email, ignoring a duplicate (connection, message)
	// pair. Re-fetching overlap after a crash is expected.
	Upsert(email *pipedomain.NormalizedEmail) error
	FindByID(id string) (*pipedomain.NormalizedEmail, error)
	FindUnprocessed(limit int) ([]*pipedomain.NormalizedEmail, error)
	MarkProcessed(id string) error
	// HardDelete removes the email row. Links and flags cascade via
	// explicit deletes in the same call.
	HardDelete(id string) error
}
