package usecase

import (
	"context"

	pipedomain "mailpilot-backend/internal/pipeline/domain"
)

// PipelineUsecase runs the ingestion and classification pipeline and
// exposes the review-flag operations the API serves.
type PipelineUsecase interface {
	// RunBatch syncs every active connection and classifies a bounded
	// batch of unprocessed messages. Per-message failures are isolated;
	// the batch never crashes.
	RunBatch(ctx context.Context) error

	// RunForAddress runs sync + classification for the connection
	// owning the given mailbox address (push-notification trigger).
	RunForAddress(ctx context.Context, emailAddress string) error

	// PruneLedger applies the deletion-record retention policy.
	PruneLedger(ctx context.Context) error

	ListPendingFlags(userID string, limit, offset int) ([]*pipedomain.ReviewFlag, int64, error)
	ResolveFlag(userID, flagID string) error
	DismissFlag(userID, flagID string) error
}

// FlagNotifier is told about new review flags so a human can be pinged.
// Implementations must not block the pipeline on delivery.
type FlagNotifier interface {
	NotifyReviewFlag(ctx context.Context, userID string, flag *pipedomain.ReviewFlag, email *pipedomain.NormalizedEmail)
}
