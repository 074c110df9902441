package repository

import (
	"time"

	pipedomain "mailpilot-backend/internal/pipeline/domain"
)

// DeletionRecordRepository is the dedup ledger. Inserts are idempotent:
// recording the same message id twice never errors and never duplicates.
type DeletionRecordRepository interface {
	Record(record *pipedomain.DeletionRecord) error
	// FilterKnown returns the subset of messageIDs that already have a
	// ledger entry for the connection.
	FilterKnown(connectionID string, messageIDs []string) (map[string]bool, error)
	// PruneOlderThan drops records past the retention horizon. Returns
	// the number of rows removed.
	PruneOlderThan(cutoff time.Time) (int64, error)
}
