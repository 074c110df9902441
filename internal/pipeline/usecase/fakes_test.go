package usecase

import (
	"context"
	"fmt"
	"time"

	conndomain "mailpilot-backend/internal/connection/domain"
	connrepo "mailpilot-backend/internal/connection/repository"
	crmdomain "mailpilot-backend/internal/crm/domain"
	pipedomain "mailpilot-backend/internal/pipeline/domain"

	"mailpilot-backend/pkg/llm"
)

// fakeChat replays a scripted sequence of model responses.
type fakeChat struct {
	responses []*llm.Message
	calls     int
	lastTools []llm.Tool
	err       error
}

func (f *fakeChat) Chat(ctx context.Context, system string, history []llm.Message, tools []llm.Tool) (*llm.Message, error) {
	f.lastTools = tools
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.responses) {
		// Past the script the model just talks, never terminating.
		f.calls++
		return &llm.Message{Role: llm.RoleModel, Text: "thinking..."}, nil
	}
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func toolCallMsg(calls ...llm.ToolCall) *llm.Message {
	return &llm.Message{Role: llm.RoleModel, ToolCalls: calls}
}

type fakeCRM struct {
	hits         []crmdomain.SearchHit
	participants map[string]bool // "dealID|address"
	activities   []*crmdomain.Activity
	activityErr  error
}

func (f *fakeCRM) SearchDeals(userID, query string) ([]crmdomain.SearchHit, error) {
	return f.hits, nil
}
func (f *fakeCRM) SearchContacts(userID, query string) ([]crmdomain.SearchHit, error) {
	return f.hits, nil
}
func (f *fakeCRM) SearchClients(userID, query string) ([]crmdomain.SearchHit, error) {
	return f.hits, nil
}
func (f *fakeCRM) SearchProperties(userID, query string) ([]crmdomain.SearchHit, error) {
	return f.hits, nil
}
func (f *fakeCRM) VerifyParticipant(dealID, emailAddress string) (bool, error) {
	return f.participants[dealID+"|"+emailAddress], nil
}
func (f *fakeCRM) CreateActivity(activity *crmdomain.Activity) error {
	if f.activityErr != nil {
		return f.activityErr
	}
	// Same conflict key as the real repository.
	for _, a := range f.activities {
		if a.EmailID == activity.EmailID && a.EntityType == activity.EntityType && a.EntityID == activity.EntityID {
			return nil
		}
	}
	f.activities = append(f.activities, activity)
	return nil
}
func (f *fakeCRM) AllContacts() ([]crmdomain.Contact, error) { return nil, nil }

type fakeRuleRepo struct {
	rules []*pipedomain.Rule
}

func (f *fakeRuleRepo) Create(rule *pipedomain.Rule) error { f.rules = append(f.rules, rule); return nil }
func (f *fakeRuleRepo) Update(rule *pipedomain.Rule) error { return nil }
func (f *fakeRuleRepo) Delete(id, userID string) error     { return nil }
func (f *fakeRuleRepo) FindByID(id string) (*pipedomain.Rule, error) {
	for _, r := range f.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}
func (f *fakeRuleRepo) FindActiveByUser(userID string) ([]*pipedomain.Rule, error) {
	return f.rules, nil
}
func (f *fakeRuleRepo) FindByUser(userID string) ([]*pipedomain.Rule, error) { return f.rules, nil }
func (f *fakeRuleRepo) SearchByUser(userID, query string) ([]*pipedomain.Rule, error) {
	return f.rules, nil
}

type fakeClassRepo struct {
	upserts []*pipedomain.ClassificationResult
	err     error
}

func (f *fakeClassRepo) Upsert(result *pipedomain.ClassificationResult) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, result)
	return nil
}
func (f *fakeClassRepo) FindByEmail(emailID string) ([]*pipedomain.ClassificationResult, error) {
	return f.upserts, nil
}

type fakeFlagRepo struct {
	flags []*pipedomain.ReviewFlag
	err   error
}

func (f *fakeFlagRepo) Create(flag *pipedomain.ReviewFlag) error {
	if f.err != nil {
		return f.err
	}
	f.flags = append(f.flags, flag)
	return nil
}
func (f *fakeFlagRepo) FindByID(id string) (*pipedomain.ReviewFlag, error) {
	for _, fl := range f.flags {
		if fl.ID == id {
			return fl, nil
		}
	}
	return nil, fmt.Errorf("flag %s not found", id)
}
func (f *fakeFlagRepo) FindPendingByUser(userID string, limit, offset int) ([]*pipedomain.ReviewFlag, int64, error) {
	return f.flags, int64(len(f.flags)), nil
}
func (f *fakeFlagRepo) UpdateStatus(id, status string) error {
	for _, fl := range f.flags {
		if fl.ID == id {
			fl.Status = status
			return nil
		}
	}
	return fmt.Errorf("flag %s not found", id)
}

// fakeEmailRepo records operation order so ordering invariants can be
// asserted.
type fakeEmailRepo struct {
	emails    map[string]*pipedomain.NormalizedEmail
	ops       *[]string
	upsertErr error
	deleteErr error
}

func newFakeEmailRepo(ops *[]string) *fakeEmailRepo {
	return &fakeEmailRepo{emails: make(map[string]*pipedomain.NormalizedEmail), ops: ops}
}

func (f *fakeEmailRepo) record(op string) {
	if f.ops != nil {
		*f.ops = append(*f.ops, op)
	}
}

func (f *fakeEmailRepo) Upsert(email *pipedomain.NormalizedEmail) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.record("upsert:" + email.MessageID)
	f.emails[email.ID] = email
	return nil
}
func (f *fakeEmailRepo) FindByID(id string) (*pipedomain.NormalizedEmail, error) {
	email, ok := f.emails[id]
	if !ok {
		return nil, fmt.Errorf("email %s not found", id)
	}
	return email, nil
}
func (f *fakeEmailRepo) FindUnprocessed(limit int) ([]*pipedomain.NormalizedEmail, error) {
	var out []*pipedomain.NormalizedEmail
	for _, e := range f.emails {
		if e.ProcessedAt == nil {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
func (f *fakeEmailRepo) MarkProcessed(id string) error {
	f.record("mark_processed:" + id)
	if e, ok := f.emails[id]; ok {
		now := time.Now()
		e.ProcessedAt = &now
	}
	return nil
}
func (f *fakeEmailRepo) HardDelete(id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.record("hard_delete:" + id)
	delete(f.emails, id)
	return nil
}

// fakeDeletionRepo mirrors the ledger's composite key: rows are scoped
// per (connection, provider message id).
type fakeDeletionRepo struct {
	records   map[string]bool // "connectionID|providerMessageID"
	ops       *[]string
	recordErr error
	pruned    int64
}

func newFakeDeletionRepo(ops *[]string) *fakeDeletionRepo {
	return &fakeDeletionRepo{records: make(map[string]bool), ops: ops}
}

func (f *fakeDeletionRepo) Record(record *pipedomain.DeletionRecord) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	if f.ops != nil {
		*f.ops = append(*f.ops, "ledger:"+record.ProviderMessageID)
	}
	f.records[record.ConnectionID+"|"+record.ProviderMessageID] = true
	return nil
}
func (f *fakeDeletionRepo) FilterKnown(connectionID string, messageIDs []string) (map[string]bool, error) {
	known := make(map[string]bool)
	for _, id := range messageIDs {
		if f.records[connectionID+"|"+id] {
			known[id] = true
		}
	}
	return known, nil
}
func (f *fakeDeletionRepo) PruneOlderThan(cutoff time.Time) (int64, error) {
	return f.pruned, nil
}

type fakeConnRepo struct {
	conns        map[string]*conndomain.MailConnection
	watermarks   map[string]string
	deactivated  map[string]bool
	lockBusy     bool
	locks        []*fakeLock
	tokenUpdates int
}

// fakeLock counts releases so lock lifecycle can be asserted.
type fakeLock struct {
	releases int
}

func (l *fakeLock) Release() error {
	l.releases++
	return nil
}

func newFakeConnRepo(conns ...*conndomain.MailConnection) *fakeConnRepo {
	f := &fakeConnRepo{
		conns:       make(map[string]*conndomain.MailConnection),
		watermarks:  make(map[string]string),
		deactivated: make(map[string]bool),
	}
	for _, c := range conns {
		f.conns[c.ID] = c
	}
	return f
}

func (f *fakeConnRepo) Create(conn *conndomain.MailConnection) error {
	f.conns[conn.ID] = conn
	return nil
}
func (f *fakeConnRepo) FindByID(id string) (*conndomain.MailConnection, error) {
	conn, ok := f.conns[id]
	if !ok {
		return nil, fmt.Errorf("connection %s not found", id)
	}
	return conn, nil
}
func (f *fakeConnRepo) FindByEmailAddress(address string) (*conndomain.MailConnection, error) {
	for _, c := range f.conns {
		if c.EmailAddress == address {
			return c, nil
		}
	}
	return nil, fmt.Errorf("connection for %s not found", address)
}
func (f *fakeConnRepo) FindActive() ([]*conndomain.MailConnection, error) {
	var out []*conndomain.MailConnection
	for _, c := range f.conns {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeConnRepo) FindActiveByUser(userID string) ([]*conndomain.MailConnection, error) {
	var out []*conndomain.MailConnection
	for _, c := range f.conns {
		if c.Active && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeConnRepo) UpdateTokens(id string, accessToken, refreshTokenSealed string, expiry time.Time) error {
	f.tokenUpdates++
	return nil
}
func (f *fakeConnRepo) AdvanceWatermark(id string, historyID string, syncedAt time.Time) error {
	f.watermarks[id] = historyID
	if c, ok := f.conns[id]; ok {
		c.LastHistoryID = &historyID
	}
	return nil
}
func (f *fakeConnRepo) Deactivate(id string) error {
	f.deactivated[id] = true
	if c, ok := f.conns[id]; ok {
		c.Active = false
	}
	return nil
}
func (f *fakeConnRepo) TryLock(ctx context.Context, id string) (connrepo.AdvisoryLock, error) {
	if f.lockBusy {
		return nil, nil
	}
	l := &fakeLock{}
	f.locks = append(f.locks, l)
	return l, nil
}

type fakeProvider struct {
	syncResult *pipedomain.SyncResult
	syncErr    error
	fetched    map[string]*pipedomain.NormalizedEmail
	fetchErr   map[string]error
	deleted    []string
	ops        *[]string
}

func (f *fakeProvider) Sync(ctx context.Context, conn *conndomain.MailConnection, onTokenRefresh conndomain.TokenUpdateFunc) (*pipedomain.SyncResult, error) {
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return f.syncResult, nil
}
func (f *fakeProvider) FetchEmail(ctx context.Context, conn *conndomain.MailConnection, messageID string, onTokenRefresh conndomain.TokenUpdateFunc) (*pipedomain.NormalizedEmail, error) {
	if err, ok := f.fetchErr[messageID]; ok {
		return nil, err
	}
	if email, ok := f.fetched[messageID]; ok {
		return email, nil
	}
	return &pipedomain.NormalizedEmail{
		ID:           "id-" + messageID,
		ConnectionID: conn.ID,
		MessageID:    messageID,
		FromAddress:  "sender@example.com",
		ReceivedAt:   time.Now(),
	}, nil
}
func (f *fakeProvider) DeleteMessage(ctx context.Context, conn *conndomain.MailConnection, messageID string, onTokenRefresh conndomain.TokenUpdateFunc) error {
	if f.ops != nil {
		*f.ops = append(*f.ops, "provider_delete:"+messageID)
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}
func (f *fakeProvider) Revoke(ctx context.Context, conn *conndomain.MailConnection) error {
	return nil
}

type fakeNotifier struct {
	notified []*pipedomain.ReviewFlag
}

func (f *fakeNotifier) NotifyReviewFlag(ctx context.Context, userID string, flag *pipedomain.ReviewFlag, email *pipedomain.NormalizedEmail) {
	f.notified = append(f.notified, flag)
}
