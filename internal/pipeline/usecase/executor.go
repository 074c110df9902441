package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	conndomain "mailpilot-backend/internal/connection/domain"
	crmdomain "mailpilot-backend/internal/crm/domain"
	crmrepo "mailpilot-backend/internal/crm/repository"
	pipedomain "mailpilot-backend/internal/pipeline/domain"
	"mailpilot-backend/internal/pipeline/repository"

	"github.com/google/uuid"
)

// actionExecutor turns a Decision into durable state. It is the only
// writer of the deletion ledger and of processed markers.
type actionExecutor struct {
	emails    repository.EmailRepository
	classRepo repository.ClassificationRepository
	flags     repository.ReviewFlagRepository
	deletions repository.DeletionRecordRepository
	crmRepo   crmrepo.CRMRepository
	providers map[string]pipedomain.MailProvider
	notifier  FlagNotifier

	// tokenUpdate builds the persistence callback providers invoke on
	// token refresh.
	tokenUpdate func(conn *conndomain.MailConnection) conndomain.TokenUpdateFunc
}

// Apply commits the decision. Keep: persist links, activities and flag,
// then mark processed. Delete: ledger entry first, then local removal,
// then best-effort provider trash. The ledger write always precedes the
// storage delete so a crash between the two re-suppresses, never
// re-ingests.
func (e *actionExecutor) Apply(ctx context.Context, conn *conndomain.MailConnection, email *pipedomain.NormalizedEmail, decision *pipedomain.Decision) error {
	switch decision.Action {
	case pipedomain.ActionDelete:
		return e.applyDelete(ctx, conn, email)
	case pipedomain.ActionKeep:
		return e.applyKeep(ctx, conn, email, decision)
	default:
		return fmt.Errorf("%w: unknown action %q", pipedomain.ErrActionPersist, decision.Action)
	}
}

func (e *actionExecutor) applyKeep(ctx context.Context, conn *conndomain.MailConnection, email *pipedomain.NormalizedEmail, decision *pipedomain.Decision) error {
	for _, link := range decision.Links {
		result := &pipedomain.ClassificationResult{
			ID:           uuid.New().String(),
			EmailID:      email.ID,
			ConnectionID: email.ConnectionID,
			EntityType:   link.EntityType,
			EntityID:     link.EntityID,
			Confidence:   link.Confidence,
			Reasoning:    link.Reasoning,
			Provenance:   decision.Provenance,
			CreatedAt:    time.Now(),
		}
		// Agent-made links were already upserted durably during the
		// tool call; the conflict key makes this a no-op for those.
		if err := e.classRepo.Upsert(result); err != nil {
			return fmt.Errorf("%w: link %s/%s: %v", pipedomain.ErrActionPersist, link.EntityType, link.EntityID, err)
		}

		activity := &crmdomain.Activity{
			ID:         uuid.New().String(),
			UserID:     conn.UserID,
			EntityType: link.EntityType,
			EntityID:   link.EntityID,
			Kind:       "email",
			Subject:    email.Subject,
			Body:       decision.Summary,
			EmailID:    email.ID,
			OccurredAt: email.ReceivedAt,
			CreatedAt:  time.Now(),
		}
		if err := e.crmRepo.CreateActivity(activity); err != nil {
			return fmt.Errorf("%w: activity for %s/%s: %v", pipedomain.ErrActionPersist, link.EntityType, link.EntityID, err)
		}
	}

	if decision.Flag != nil {
		flag := &pipedomain.ReviewFlag{
			ID:               uuid.New().String(),
			EmailID:          email.ID,
			ConnectionID:     email.ConnectionID,
			SuggestedName:    decision.Flag.SuggestedName,
			SuggestedCompany: decision.Flag.SuggestedCompany,
			MatchReason:      decision.Flag.MatchReason,
			Status:           pipedomain.FlagPending,
			CreatedAt:        time.Now(),
			UpdatedAt:        time.Now(),
		}
		if err := e.flags.Create(flag); err != nil {
			return fmt.Errorf("%w: review flag: %v", pipedomain.ErrActionPersist, err)
		}
		if e.notifier != nil {
			e.notifier.NotifyReviewFlag(ctx, conn.UserID, flag, email)
		}
	}

	if err := e.emails.MarkProcessed(email.ID); err != nil {
		return fmt.Errorf("%w: mark processed: %v", pipedomain.ErrActionPersist, err)
	}
	return nil
}

func (e *actionExecutor) applyDelete(ctx context.Context, conn *conndomain.MailConnection, email *pipedomain.NormalizedEmail) error {
	record := &pipedomain.DeletionRecord{
		ProviderMessageID: email.MessageID,
		ConnectionID:      email.ConnectionID,
		Action:            "deleted",
		CreatedAt:         time.Now(),
	}
	if err := e.deletions.Record(record); err != nil {
		return fmt.Errorf("%w: deletion ledger: %v", pipedomain.ErrActionPersist, err)
	}

	if err := e.emails.HardDelete(email.ID); err != nil {
		return fmt.Errorf("%w: hard delete: %v", pipedomain.ErrActionPersist, err)
	}

	// Provider-side trash is advisory. A failure here leaves the
	// message in the remote mailbox, where the ledger keeps it from
	// being re-ingested on the next sync.
	if provider, ok := e.providers[conn.Provider]; ok {
		if err := provider.DeleteMessage(ctx, conn, email.MessageID, e.tokenUpdate(conn)); err != nil {
			log.Printf("[Executor] provider trash failed for %s on %s: %v", email.MessageID, conn.EmailAddress, err)
		}
	}
	return nil
}
