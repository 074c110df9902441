package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	crmdomain "mailpilot-backend/internal/crm/domain"
	pipedomain "mailpilot-backend/internal/pipeline/domain"
	"mailpilot-backend/pkg/llm"
)

func newTestAgent(chat llm.ChatService, classRepo *fakeClassRepo) *agentRunner {
	if classRepo == nil {
		classRepo = &fakeClassRepo{}
	}
	return newAgentRunner(chat, &fakeCRM{}, &fakeRuleRepo{}, classRepo, 5, 10*time.Second)
}

func agentEmail() *pipedomain.NormalizedEmail {
	return &pipedomain.NormalizedEmail{
		ID:           "e1",
		ConnectionID: "c1",
		MessageID:    "m1",
		FromAddress:  "alice@client.com",
		Subject:      "Inspection report for 12 Oak St",
		BodyText:     "Attached is the inspection report.",
		ReceivedAt:   time.Now(),
	}
}

func TestAgentDoneKeep(t *testing.T) {
	chat := &fakeChat{responses: []*llm.Message{
		toolCallMsg(llm.ToolCall{Name: "done", Args: map[string]interface{}{
			"summary":              "inspection report for a deal",
			"is_business_relevant": true,
			"action":               "keep",
		}}),
	}}

	decision, err := newTestAgent(chat, nil).Classify(context.Background(), "u1", agentEmail(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Action != pipedomain.ActionKeep {
		t.Errorf("Action = %q", decision.Action)
	}
	if decision.Provenance != pipedomain.ProvenanceAgent {
		t.Errorf("Provenance = %q", decision.Provenance)
	}
	if decision.Summary != "inspection report for a deal" {
		t.Errorf("Summary = %q", decision.Summary)
	}
}

func TestAgentDoneWithoutActionIsContractError(t *testing.T) {
	chat := &fakeChat{responses: []*llm.Message{
		toolCallMsg(llm.ToolCall{Name: "done", Args: map[string]interface{}{
			"summary":              "something",
			"is_business_relevant": false,
		}}),
	}}

	_, err := newTestAgent(chat, nil).Classify(context.Background(), "u1", agentEmail(), nil)
	if !errors.Is(err, pipedomain.ErrAgentContract) {
		t.Fatalf("expected ErrAgentContract, got %v", err)
	}
}

func TestAgentDoneInvalidActionIsContractError(t *testing.T) {
	chat := &fakeChat{responses: []*llm.Message{
		toolCallMsg(llm.ToolCall{Name: "done", Args: map[string]interface{}{
			"summary": "x", "is_business_relevant": true, "action": "archive",
		}}),
	}}

	_, err := newTestAgent(chat, nil).Classify(context.Background(), "u1", agentEmail(), nil)
	if !errors.Is(err, pipedomain.ErrAgentContract) {
		t.Fatalf("expected ErrAgentContract, got %v", err)
	}
}

func TestAgentLoopCapExceeded(t *testing.T) {
	// The scripted model searches forever and never calls done.
	search := toolCallMsg(llm.ToolCall{Name: "search_deals", Args: map[string]interface{}{"query": "oak"}})
	chat := &fakeChat{responses: []*llm.Message{search, search, search, search, search, search}}

	_, err := newTestAgent(chat, nil).Classify(context.Background(), "u1", agentEmail(), nil)
	if !errors.Is(err, pipedomain.ErrAgentLoopExceeded) {
		t.Fatalf("expected ErrAgentLoopExceeded, got %v", err)
	}
	if chat.calls != 5 {
		t.Errorf("made %d round-trips, want exactly 5", chat.calls)
	}
}

func TestAgentTextOnlyResponseIsNudged(t *testing.T) {
	chat := &fakeChat{responses: []*llm.Message{
		{Role: llm.RoleModel, Text: "Let me think about this one."},
		toolCallMsg(llm.ToolCall{Name: "done", Args: map[string]interface{}{
			"summary": "x", "is_business_relevant": true, "action": "keep",
		}}),
	}}

	decision, err := newTestAgent(chat, nil).Classify(context.Background(), "u1", agentEmail(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Action != pipedomain.ActionKeep {
		t.Errorf("Action = %q", decision.Action)
	}
	if chat.calls != 2 {
		t.Errorf("made %d round-trips, want 2", chat.calls)
	}
}

func TestAgentLinkObjectPersistsImmediately(t *testing.T) {
	classRepo := &fakeClassRepo{}
	chat := &fakeChat{responses: []*llm.Message{
		toolCallMsg(llm.ToolCall{Name: "link_object", Args: map[string]interface{}{
			"entity_type": "deal",
			"entity_id":   "deal-7",
			"confidence":  0.92,
			"reasoning":   "sender is the listing agent",
		}}),
		toolCallMsg(llm.ToolCall{Name: "done", Args: map[string]interface{}{
			"summary": "x", "is_business_relevant": true, "action": "keep",
		}}),
	}}

	decision, err := newTestAgent(chat, classRepo).Classify(context.Background(), "u1", agentEmail(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(classRepo.upserts) != 1 {
		t.Fatalf("expected durable upsert during tool call, got %d", len(classRepo.upserts))
	}
	got := classRepo.upserts[0]
	if got.EntityType != "deal" || got.EntityID != "deal-7" || got.Provenance != pipedomain.ProvenanceAgent {
		t.Errorf("upsert = %+v", got)
	}
	if len(decision.Links) != 1 || decision.Links[0].EntityID != "deal-7" {
		t.Errorf("decision links = %+v", decision.Links)
	}
}

func TestAgentLinkObjectRejectsBadArgs(t *testing.T) {
	classRepo := &fakeClassRepo{}
	chat := &fakeChat{responses: []*llm.Message{
		toolCallMsg(llm.ToolCall{Name: "link_object", Args: map[string]interface{}{
			"entity_type": "spaceship", "entity_id": "x", "confidence": 0.9,
		}}),
		toolCallMsg(llm.ToolCall{Name: "link_object", Args: map[string]interface{}{
			"entity_type": "deal", "entity_id": "d1", "confidence": 1.7,
		}}),
		toolCallMsg(llm.ToolCall{Name: "done", Args: map[string]interface{}{
			"summary": "x", "is_business_relevant": false, "action": "keep",
		}}),
	}}

	decision, err := newTestAgent(chat, classRepo).Classify(context.Background(), "u1", agentEmail(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(classRepo.upserts) != 0 {
		t.Errorf("invalid link_object calls must not persist, got %d upserts", len(classRepo.upserts))
	}
	if len(decision.Links) != 0 {
		t.Errorf("decision links = %+v", decision.Links)
	}
}

func TestAgentFlagForReviewAccumulates(t *testing.T) {
	chat := &fakeChat{responses: []*llm.Message{
		toolCallMsg(llm.ToolCall{Name: "flag_for_review", Args: map[string]interface{}{
			"suggested_name":    "Alice Nguyen",
			"suggested_company": "Client Co",
			"match_reason":      "mentions an upcoming showing",
		}}),
		toolCallMsg(llm.ToolCall{Name: "done", Args: map[string]interface{}{
			"summary": "x", "is_business_relevant": true, "action": "keep",
		}}),
	}}

	decision, err := newTestAgent(chat, nil).Classify(context.Background(), "u1", agentEmail(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Flag == nil || decision.Flag.SuggestedName != "Alice Nguyen" {
		t.Fatalf("Flag = %+v", decision.Flag)
	}
}

func TestAgentUnknownToolIsNotFatal(t *testing.T) {
	chat := &fakeChat{responses: []*llm.Message{
		toolCallMsg(llm.ToolCall{Name: "teleport", Args: map[string]interface{}{}}),
		toolCallMsg(llm.ToolCall{Name: "done", Args: map[string]interface{}{
			"summary": "x", "is_business_relevant": false, "action": "delete",
		}}),
	}}

	decision, err := newTestAgent(chat, nil).Classify(context.Background(), "u1", agentEmail(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Action != pipedomain.ActionDelete {
		t.Errorf("Action = %q", decision.Action)
	}
}

func TestAgentSearchToolsExposed(t *testing.T) {
	chat := &fakeChat{responses: []*llm.Message{
		toolCallMsg(llm.ToolCall{Name: "done", Args: map[string]interface{}{
			"summary": "x", "is_business_relevant": false, "action": "delete",
		}}),
	}}
	agent := newAgentRunner(chat, &fakeCRM{hits: []crmdomain.SearchHit{{EntityType: "deal", EntityID: "d1", Title: "12 Oak St"}}}, &fakeRuleRepo{}, &fakeClassRepo{}, 5, time.Second)

	if _, err := agent.Classify(context.Background(), "u1", agentEmail(), nil); err != nil {
		t.Fatal(err)
	}

	names := make(map[string]bool)
	for _, tool := range chat.lastTools {
		names[tool.Name] = true
	}
	for _, want := range []string{"search_rules", "search_deals", "search_contacts", "search_clients", "search_properties", "verify_participant", "link_object", "flag_for_review", "done"} {
		if !names[want] {
			t.Errorf("tool %q not declared to the model", want)
		}
	}
}
