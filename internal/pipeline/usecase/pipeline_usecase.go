package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	conndomain "mailpilot-backend/internal/connection/domain"
	connrepo "mailpilot-backend/internal/connection/repository"
	crmrepo "mailpilot-backend/internal/crm/repository"
	pipedomain "mailpilot-backend/internal/pipeline/domain"
	"mailpilot-backend/internal/pipeline/repository"
	"mailpilot-backend/pkg/config"
	"mailpilot-backend/pkg/crypto"
	"mailpilot-backend/pkg/llm"
)

type pipelineUsecase struct {
	connections connrepo.ConnectionRepository
	emails      repository.EmailRepository
	rules       repository.RuleRepository
	classRepo   repository.ClassificationRepository
	flags       repository.ReviewFlagRepository
	deletions   repository.DeletionRecordRepository
	crmRepo     crmrepo.CRMRepository

	providers map[string]pipedomain.MailProvider
	sealer    *crypto.Sealer
	agent     *agentRunner
	executor  *actionExecutor
	cfg       *config.Config
}

func NewPipelineUsecase(
	connections connrepo.ConnectionRepository,
	emails repository.EmailRepository,
	rules repository.RuleRepository,
	classRepo repository.ClassificationRepository,
	flags repository.ReviewFlagRepository,
	deletions repository.DeletionRecordRepository,
	crmRepo crmrepo.CRMRepository,
	providers map[string]pipedomain.MailProvider,
	chat llm.ChatService,
	sealer *crypto.Sealer,
	notifier FlagNotifier,
	cfg *config.Config,
) PipelineUsecase {
	u := &pipelineUsecase{
		connections: connections,
		emails:      emails,
		rules:       rules,
		classRepo:   classRepo,
		flags:       flags,
		deletions:   deletions,
		crmRepo:     crmRepo,
		providers:   providers,
		sealer:      sealer,
		cfg:         cfg,
	}
	u.agent = newAgentRunner(chat, crmRepo, rules, classRepo, cfg.AgentMaxTurns, cfg.AgentTimeout)
	u.executor = &actionExecutor{
		emails:      emails,
		classRepo:   classRepo,
		flags:       flags,
		deletions:   deletions,
		crmRepo:     crmRepo,
		providers:   providers,
		notifier:    notifier,
		tokenUpdate: u.tokenUpdateFunc,
	}
	return u
}

// tokenUpdateFunc persists refreshed credentials, re-sealing the refresh
// token before it touches the database.
func (u *pipelineUsecase) tokenUpdateFunc(conn *conndomain.MailConnection) conndomain.TokenUpdateFunc {
	return func(update conndomain.TokenUpdate) error {
		sealed, err := u.sealer.Seal(update.RefreshToken)
		if err != nil {
			return fmt.Errorf("seal refresh token: %w", err)
		}
		if err := u.connections.UpdateTokens(conn.ID, update.AccessToken, sealed, update.Expiry); err != nil {
			return err
		}
		conn.AccessToken = update.AccessToken
		conn.RefreshToken = update.RefreshToken
		conn.TokenExpiry = update.Expiry
		return nil
	}
}

func (u *pipelineUsecase) RunBatch(ctx context.Context) error {
	conns, err := u.connections.FindActive()
	if err != nil {
		return fmt.Errorf("list active connections: %w", err)
	}

	for _, conn := range conns {
		if err := u.runConnection(ctx, conn); err != nil {
			log.Printf("[Pipeline] sync failed for %s: %v", conn.EmailAddress, err)
		}
	}

	return u.classifyUnprocessed(ctx)
}

func (u *pipelineUsecase) RunForAddress(ctx context.Context, emailAddress string) error {
	conn, err := u.connections.FindByEmailAddress(emailAddress)
	if err != nil {
		return fmt.Errorf("connection for %s: %w", emailAddress, err)
	}
	if conn == nil {
		log.Printf("[Pipeline] ignoring push for unknown mailbox %s", emailAddress)
		return nil
	}
	if !conn.Active {
		log.Printf("[Pipeline] ignoring push for inactive connection %s", emailAddress)
		return nil
	}
	if err := u.runConnection(ctx, conn); err != nil {
		return err
	}
	return u.classifyUnprocessed(ctx)
}

// runConnection performs one sync cycle under the connection's advisory
// lock. The watermark only advances after every fetched message has
// been durably stored; a partial failure leaves it in place so the next
// cycle re-covers the window (idempotent upserts absorb the overlap).
func (u *pipelineUsecase) runConnection(ctx context.Context, conn *conndomain.MailConnection) error {
	lock, err := u.connections.TryLock(ctx, conn.ID)
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	if lock == nil {
		log.Printf("[Pipeline] connection %s busy, skipping", conn.EmailAddress)
		return nil
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Printf("[Pipeline] release lock for %s: %v", conn.EmailAddress, err)
		}
	}()

	if conn.RefreshTokenSealed != "" {
		plain, err := u.sealer.Open(conn.RefreshTokenSealed)
		if err != nil {
			return fmt.Errorf("unseal refresh token for %s: %w", conn.EmailAddress, err)
		}
		conn.RefreshToken = plain
	}

	provider, ok := u.providers[conn.Provider]
	if !ok {
		return fmt.Errorf("no provider registered for %q", conn.Provider)
	}
	onRefresh := u.tokenUpdateFunc(conn)

	result, err := provider.Sync(ctx, conn, onRefresh)
	if err != nil {
		if errors.Is(err, pipedomain.ErrAuth) {
			log.Printf("[Pipeline] credentials rejected for %s, deactivating", conn.EmailAddress)
			if derr := u.connections.Deactivate(conn.ID); derr != nil {
				log.Printf("[Pipeline] deactivate %s: %v", conn.EmailAddress, derr)
			}
		}
		return err
	}
	if result.FullSync {
		log.Printf("[Pipeline] full sync fallback for %s (%d candidates)", conn.EmailAddress, len(result.Refs))
	}

	refs, err := u.filterDeleted(conn.ID, result.Refs)
	if err != nil {
		return err
	}

	stored := 0
	for _, ref := range refs {
		email, err := provider.FetchEmail(ctx, conn, ref.ID, onRefresh)
		if err != nil {
			if errors.Is(err, pipedomain.ErrDecode) {
				// A malformed message must not stall the mailbox.
				log.Printf("[Pipeline] skipping undecodable message %s on %s: %v", ref.ID, conn.EmailAddress, err)
				continue
			}
			return fmt.Errorf("fetch %s: %w", ref.ID, err)
		}
		if err := u.emails.Upsert(email); err != nil {
			return fmt.Errorf("store %s: %w", ref.ID, err)
		}
		stored++
	}

	if err := u.connections.AdvanceWatermark(conn.ID, result.NewHistoryID, time.Now()); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	if stored > 0 {
		log.Printf("[Pipeline] stored %d new messages for %s", stored, conn.EmailAddress)
	}
	return nil
}

// filterDeleted drops refs already present in the deletion ledger.
func (u *pipelineUsecase) filterDeleted(connectionID string, refs []pipedomain.MessageRef) ([]pipedomain.MessageRef, error) {
	if len(refs) == 0 {
		return refs, nil
	}
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	known, err := u.deletions.FilterKnown(connectionID, ids)
	if err != nil {
		return nil, fmt.Errorf("deletion ledger lookup: %w", err)
	}
	if len(known) == 0 {
		return refs, nil
	}
	kept := refs[:0]
	for _, ref := range refs {
		if !known[ref.ID] {
			kept = append(kept, ref)
		}
	}
	return kept, nil
}

// classifyUnprocessed drains one batch through a bounded worker pool.
// Each email fails or succeeds on its own.
func (u *pipelineUsecase) classifyUnprocessed(ctx context.Context) error {
	batch, err := u.emails.FindUnprocessed(u.cfg.PipelineBatchSize)
	if err != nil {
		return fmt.Errorf("load unprocessed batch: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	workers := u.cfg.PipelineWorkers
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, email := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(email *pipedomain.NormalizedEmail) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := u.processEmail(ctx, email); err != nil {
				log.Printf("[Pipeline] classification failed for %s: %v", email.MessageID, err)
			}
		}(email)
	}
	wg.Wait()
	return nil
}

// processEmail classifies one email: rule overrides first, then the
// agent, then the executor. An unprocessed marker survives any failure
// so the email is retried next batch.
func (u *pipelineUsecase) processEmail(ctx context.Context, email *pipedomain.NormalizedEmail) error {
	conn, err := u.connections.FindByID(email.ConnectionID)
	if err != nil {
		return fmt.Errorf("connection %s: %w", email.ConnectionID, err)
	}
	if conn == nil {
		return fmt.Errorf("connection %s not found", email.ConnectionID)
	}

	userRules, err := u.rules.FindActiveByUser(conn.UserID)
	if err != nil {
		return fmt.Errorf("rules for %s: %w", conn.UserID, err)
	}

	decision, matched := EvaluateRules(email, userRules)
	if matched {
		log.Printf("[Pipeline] rule override %s for message %s", decision.Action, email.MessageID)
	} else {
		decision, err = u.agent.Classify(ctx, conn.UserID, email, contextRuleText(userRules))
		if err != nil {
			return err
		}
	}

	return u.executor.Apply(ctx, conn, email, decision)
}

// PruneLedger applies the retention policy to the deletion ledger. A
// zero retention keeps records forever, which keeps dedup airtight at
// the cost of table growth.
func (u *pipelineUsecase) PruneLedger(ctx context.Context) error {
	if u.cfg.DeletionRetentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -u.cfg.DeletionRetentionDays)
	removed, err := u.deletions.PruneOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("prune deletion ledger: %w", err)
	}
	if removed > 0 {
		log.Printf("[Pipeline] pruned %d deletion records older than %s", removed, cutoff.Format("2006-01-02"))
	}
	return nil
}

func (u *pipelineUsecase) ListPendingFlags(userID string, limit, offset int) ([]*pipedomain.ReviewFlag, int64, error) {
	return u.flags.FindPendingByUser(userID, limit, offset)
}

func (u *pipelineUsecase) ResolveFlag(userID, flagID string) error {
	return u.updateFlag(userID, flagID, pipedomain.FlagResolved)
}

func (u *pipelineUsecase) DismissFlag(userID, flagID string) error {
	return u.updateFlag(userID, flagID, pipedomain.FlagDismissed)
}

func (u *pipelineUsecase) updateFlag(userID, flagID, status string) error {
	flag, err := u.flags.FindByID(flagID)
	if err != nil {
		return err
	}
	if flag == nil {
		return errors.New("review flag not found")
	}
	conn, err := u.connections.FindByID(flag.ConnectionID)
	if err != nil {
		return err
	}
	if conn == nil || conn.UserID != userID {
		return errors.New("review flag not found")
	}
	return u.flags.UpdateStatus(flagID, status)
}
