package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	crmdomain "mailpilot-backend/internal/crm/domain"
	crmrepo "mailpilot-backend/internal/crm/repository"
	pipedomain "mailpilot-backend/internal/pipeline/domain"
	"mailpilot-backend/internal/pipeline/repository"
	"mailpilot-backend/pkg/llm"

	"github.com/google/uuid"
)

const systemPrompt = `You are an email triage agent for a real-estate CRM.
For each email decide whether it is business-relevant, which CRM entities
it relates to, or whether it should be permanently discarded.

Deletion policy — call done with action "delete" for:
- personal, family, or school mail
- marketing and promotional mail
- package-tracking notifications
- social-media notifications
Anything with a plausible business connection must be kept, even if you
can only flag it for review rather than link it.

Confidence policy for link_object:
- 0.9 or above: link with near-certainty
- 0.7 to 0.9: link, but state the lower certainty in your reasoning
- below 0.7: do not link; call flag_for_review instead

Use the search tools to find matching deals, contacts, clients and
properties. Use verify_participant before linking a deal when the sender
is not obviously involved. You must finish by calling done with a
summary, is_business_relevant, and action ("keep" or "delete").`

// agentRunner owns the bounded tool-calling loop.
type agentRunner struct {
	chat      llm.ChatService
	crmRepo   crmrepo.CRMRepository
	ruleRepo  repository.RuleRepository
	classRepo repository.ClassificationRepository
	maxTurns  int
	timeout   time.Duration
}

func newAgentRunner(chat llm.ChatService, crmRepo crmrepo.CRMRepository, ruleRepo repository.RuleRepository, classRepo repository.ClassificationRepository, maxTurns int, timeout time.Duration) *agentRunner {
	if maxTurns <= 0 {
		maxTurns = 5
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &agentRunner{
		chat:      chat,
		crmRepo:   crmRepo,
		ruleRepo:  ruleRepo,
		classRepo: classRepo,
		maxTurns:  maxTurns,
		timeout:   timeout,
	}
}

// agentState accumulates durable tool effects and the terminal call.
type agentState struct {
	userID string
	email  *pipedomain.NormalizedEmail

	links []pipedomain.Link
	flag  *pipedomain.FlagRequest

	done     bool
	decision *pipedomain.Decision
}

// Classify runs the loop for one email. Exceeding the round-trip cap or
// the timeout is a fatal error for this email, not a partial result;
// already-committed link_object effects stay (idempotent upserts make
// the retry safe).
func (a *agentRunner) Classify(ctx context.Context, userID string, email *pipedomain.NormalizedEmail, contextRules []string) (*pipedomain.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	state := &agentState{userID: userID, email: email}
	history := []llm.Message{{Role: llm.RoleUser, Text: buildEmailPrompt(email, contextRules)}}

	for turn := 0; turn < a.maxTurns; turn++ {
		resp, err := a.chat.Chat(ctx, systemPrompt, history, toolDeclarations())
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: timed out after %d round-trips", pipedomain.ErrAgentLoopExceeded, turn)
			}
			return nil, fmt.Errorf("reasoning engine round-trip: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			// Plain text is not a legal terminator; remind and retry
			// within the cap.
			history = append(history, *resp, llm.Message{
				Role: llm.RoleUser,
				Text: "You must finish by calling the done tool with summary, is_business_relevant and action.",
			})
			continue
		}

		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			output, err := a.dispatch(ctx, state, call)
			if err != nil {
				return nil, err
			}
			results = append(results, llm.ToolResult{Name: call.Name, Content: output})
			if state.done {
				return state.decision, nil
			}
		}

		history = append(history, *resp, llm.Message{Role: llm.RoleTool, ToolResults: results})
	}

	return nil, fmt.Errorf("%w: no terminal done call within %d round-trips for message %s", pipedomain.ErrAgentLoopExceeded, a.maxTurns, email.MessageID)
}

// dispatch executes one tool call. Each variant owns its required-field
// validation; the engine's raw arguments never reach persistence
// unchecked.
func (a *agentRunner) dispatch(ctx context.Context, state *agentState, call llm.ToolCall) (string, error) {
	switch call.Name {
	case "search_rules":
		query, _ := stringArg(call.Args, "query")
		rules, err := a.ruleRepo.SearchByUser(state.userID, query)
		if err != nil {
			return "", fmt.Errorf("search_rules: %w", err)
		}
		lines := make([]string, 0, len(rules))
		for _, rule := range rules {
			lines = append(lines, fmt.Sprintf("[%s] %s (pattern: %s)", rule.Kind, rule.RuleText, rule.Pattern))
		}
		return marshalResult(lines), nil

	case "search_deals":
		return a.search(state, call, a.crmRepo.SearchDeals)
	case "search_contacts":
		return a.search(state, call, a.crmRepo.SearchContacts)
	case "search_clients":
		return a.search(state, call, a.crmRepo.SearchClients)
	case "search_properties":
		return a.search(state, call, a.crmRepo.SearchProperties)

	case "verify_participant":
		dealID, ok := stringArg(call.Args, "deal_id")
		if !ok || dealID == "" {
			return "error: deal_id is required", nil
		}
		address, ok := stringArg(call.Args, "email_address")
		if !ok || address == "" {
			address = state.email.FromAddress
		}
		involved, err := a.crmRepo.VerifyParticipant(dealID, address)
		if err != nil {
			return "", fmt.Errorf("verify_participant: %w", err)
		}
		return fmt.Sprintf(`{"deal_id":%q,"email_address":%q,"involved":%v}`, dealID, address, involved), nil

	case "link_object":
		return a.linkObject(state, call)

	case "flag_for_review":
		name, _ := stringArg(call.Args, "suggested_name")
		company, _ := stringArg(call.Args, "suggested_company")
		reason, _ := stringArg(call.Args, "match_reason")
		state.flag = &pipedomain.FlagRequest{
			SuggestedName:    name,
			SuggestedCompany: company,
			MatchReason:      reason,
		}
		return `{"status":"flagged"}`, nil

	case "done":
		return a.terminate(state, call)

	default:
		// Unknown tool names are reported back, not fatal; the engine
		// can correct itself within the cap.
		return fmt.Sprintf("error: unknown tool %q", call.Name), nil
	}
}

type searchFunc func(userID, query string) ([]crmdomain.SearchHit, error)

func (a *agentRunner) search(state *agentState, call llm.ToolCall, fn searchFunc) (string, error) {
	query, ok := stringArg(call.Args, "query")
	if !ok || strings.TrimSpace(query) == "" {
		return "error: query is required", nil
	}
	hits, err := fn(state.userID, query)
	if err != nil {
		return "", fmt.Errorf("%s: %w", call.Name, err)
	}
	return marshalResult(hits), nil
}

// linkObject validates and durably records one classification link.
// The upsert is keyed on (email, entity type, entity id), so a retried
// run cannot duplicate it.
func (a *agentRunner) linkObject(state *agentState, call llm.ToolCall) (string, error) {
	entityType, _ := stringArg(call.Args, "entity_type")
	if !pipedomain.ValidEntityType(entityType) {
		return fmt.Sprintf("error: entity_type must be one of deal, contact, client, property (got %q)", entityType), nil
	}
	entityID, _ := stringArg(call.Args, "entity_id")
	if entityID == "" {
		return "error: entity_id is required", nil
	}
	confidence, ok := floatArg(call.Args, "confidence")
	if !ok || confidence < 0 || confidence > 1 {
		return "error: confidence must be a number in [0,1]", nil
	}
	reasoning, _ := stringArg(call.Args, "reasoning")

	// The host trusts the agent's confidence judgment but logs it so
	// downstream analytics can audit agent behavior over time.
	log.Printf("[Agent] link_object email=%s entity=%s/%s confidence=%.2f", state.email.MessageID, entityType, entityID, confidence)

	result := &pipedomain.ClassificationResult{
		ID:           uuid.New().String(),
		EmailID:      state.email.ID,
		ConnectionID: state.email.ConnectionID,
		EntityType:   entityType,
		EntityID:     entityID,
		Confidence:   confidence,
		Reasoning:    reasoning,
		Provenance:   pipedomain.ProvenanceAgent,
		CreatedAt:    time.Now(),
	}
	if err := a.classRepo.Upsert(result); err != nil {
		return "", fmt.Errorf("%w: link_object: %v", pipedomain.ErrActionPersist, err)
	}

	state.links = append(state.links, pipedomain.Link{
		EntityType: entityType,
		EntityID:   entityID,
		Confidence: confidence,
		Reasoning:  reasoning,
	})
	return `{"status":"linked"}`, nil
}

// terminate validates the only legal terminator. A done call lacking a
// valid action is a contract violation: the email is treated as failed,
// never as kept-by-default.
func (a *agentRunner) terminate(state *agentState, call llm.ToolCall) (string, error) {
	action, ok := stringArg(call.Args, "action")
	if !ok || (action != pipedomain.ActionKeep && action != pipedomain.ActionDelete) {
		return "", fmt.Errorf("%w: done call missing action for message %s", pipedomain.ErrAgentContract, state.email.MessageID)
	}
	summary, _ := stringArg(call.Args, "summary")

	state.done = true
	state.decision = &pipedomain.Decision{
		Action:     action,
		Links:      state.links,
		Flag:       state.flag,
		Provenance: pipedomain.ProvenanceAgent,
		Summary:    summary,
	}
	return `{"status":"done"}`, nil
}

func buildEmailPrompt(email *pipedomain.NormalizedEmail, contextRules []string) string {
	var b strings.Builder
	b.WriteString("Classify this email.\n\n")
	fmt.Fprintf(&b, "From: %s <%s>\n", email.FromName, email.FromAddress)
	for _, r := range email.Recipients {
		fmt.Fprintf(&b, "%s: %s\n", r.Kind, r.Address)
	}
	fmt.Fprintf(&b, "Subject: %s\n", email.Subject)
	fmt.Fprintf(&b, "Direction: %s\n", email.Direction)
	fmt.Fprintf(&b, "Received: %s\n\n", email.ReceivedAt.Format(time.RFC1123))

	body := email.BodyText
	if len(body) > 4000 {
		body = body[:4000]
	}
	b.WriteString(body)

	if len(contextRules) > 0 {
		b.WriteString("\n\nUser guidance rules (context, not hard overrides):\n")
		for _, line := range contextRules {
			b.WriteString("- " + line + "\n")
		}
	}
	return b.String()
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func floatArg(args map[string]interface{}, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func marshalResult(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}
