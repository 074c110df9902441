package usecase

import (
	"testing"

	pipedomain "mailpilot-backend/internal/pipeline/domain"
)

func strPtr(s string) *string { return &s }

func testEmail(from, subject string) *pipedomain.NormalizedEmail {
	return &pipedomain.NormalizedEmail{
		ID:          "e1",
		MessageID:   "m1",
		FromAddress: from,
		Subject:     subject,
	}
}

func TestEvaluateRulesNoMatch(t *testing.T) {
	rules := []*pipedomain.Rule{
		{Kind: pipedomain.RuleExclusion, Pattern: "newsletter", Active: true},
	}
	decision, matched := EvaluateRules(testEmail("alice@client.com", "Contract question"), rules)
	if matched || decision != nil {
		t.Fatalf("expected no match, got %+v", decision)
	}
}

func TestEvaluateRulesExclusion(t *testing.T) {
	rules := []*pipedomain.Rule{
		{Kind: pipedomain.RuleExclusion, Pattern: "promo.example.com", Active: true},
	}
	decision, matched := EvaluateRules(testEmail("deals@promo.example.com", "50% off"), rules)
	if !matched {
		t.Fatal("expected exclusion rule to match")
	}
	if decision.Action != pipedomain.ActionDelete {
		t.Errorf("Action = %q, want delete", decision.Action)
	}
	if decision.Provenance != pipedomain.ProvenanceRule {
		t.Errorf("Provenance = %q, want rule", decision.Provenance)
	}
}

func TestEvaluateRulesMapping(t *testing.T) {
	rules := []*pipedomain.Rule{
		{
			Kind:             pipedomain.RuleMapping,
			Pattern:          "escrow-officer@title.com",
			TargetEntityType: strPtr(pipedomain.EntityDeal),
			TargetEntityID:   strPtr("deal-42"),
			Active:           true,
		},
	}
	decision, matched := EvaluateRules(testEmail("escrow-officer@title.com", "Wire instructions"), rules)
	if !matched {
		t.Fatal("expected mapping rule to match")
	}
	if decision.Action != pipedomain.ActionKeep {
		t.Errorf("Action = %q, want keep", decision.Action)
	}
	if len(decision.Links) != 1 || decision.Links[0].EntityID != "deal-42" {
		t.Fatalf("Links = %+v", decision.Links)
	}
	if decision.Links[0].Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", decision.Links[0].Confidence)
	}
}

func TestEvaluateRulesPriorityOrder(t *testing.T) {
	// Both rules match; the higher priority mapping must win over the
	// lower priority exclusion.
	rules := []*pipedomain.Rule{
		{Kind: pipedomain.RuleExclusion, Pattern: "title.com", Priority: 1, Active: true},
		{
			Kind:             pipedomain.RuleMapping,
			Pattern:          "title.com",
			TargetEntityType: strPtr(pipedomain.EntityDeal),
			TargetEntityID:   strPtr("deal-1"),
			Priority:         5,
			Active:           true,
		},
	}
	decision, matched := EvaluateRules(testEmail("officer@title.com", "docs"), rules)
	if !matched || decision.Action != pipedomain.ActionKeep {
		t.Fatalf("expected higher-priority mapping to win, got %+v", decision)
	}
}

func TestEvaluateRulesInactiveSkipped(t *testing.T) {
	rules := []*pipedomain.Rule{
		{Kind: pipedomain.RuleExclusion, Pattern: "spam.com", Active: false},
	}
	_, matched := EvaluateRules(testEmail("x@spam.com", "hi"), rules)
	if matched {
		t.Fatal("inactive rule must not fire")
	}
}

func TestEvaluateRulesIncompleteMappingSkipped(t *testing.T) {
	rules := []*pipedomain.Rule{
		{Kind: pipedomain.RuleMapping, Pattern: "title.com", Active: true}, // no target
		{Kind: pipedomain.RuleExclusion, Pattern: "title.com", Active: true},
	}
	decision, matched := EvaluateRules(testEmail("x@title.com", "hi"), rules)
	if !matched || decision.Action != pipedomain.ActionDelete {
		t.Fatalf("incomplete mapping should fall through to exclusion, got %+v", decision)
	}
}

func TestEvaluateRulesContextNeverShortCircuits(t *testing.T) {
	rules := []*pipedomain.Rule{
		{Kind: pipedomain.RuleContext, Pattern: "client.com", RuleText: "emails from client.com relate to the Oak St deal", Active: true},
	}
	_, matched := EvaluateRules(testEmail("alice@client.com", "status"), rules)
	if matched {
		t.Fatal("context rule must not short-circuit")
	}
}

func TestRuleMatchesGlob(t *testing.T) {
	rule := &pipedomain.Rule{Pattern: "*@*.newsletter.io"}
	if !ruleMatches(rule, testEmail("digest@daily.newsletter.io", "today")) {
		t.Error("glob pattern should match sender")
	}
	if ruleMatches(rule, testEmail("digest@example.com", "today")) {
		t.Error("glob pattern should not match other domains")
	}
}

func TestRuleMatchesSubjectSubstring(t *testing.T) {
	rule := &pipedomain.Rule{Pattern: "unsubscribe"}
	if !ruleMatches(rule, testEmail("a@b.com", "Click to UNSUBSCRIBE now")) {
		t.Error("substring match should be case-insensitive on subject")
	}
}

func TestRuleMatchesEmptyPattern(t *testing.T) {
	rule := &pipedomain.Rule{Pattern: "   "}
	if ruleMatches(rule, testEmail("a@b.com", "anything")) {
		t.Error("blank pattern must never match")
	}
}

func TestContextRuleText(t *testing.T) {
	rules := []*pipedomain.Rule{
		{Kind: pipedomain.RuleContext, RuleText: "keep vendor invoices", Active: true},
		{Kind: pipedomain.RuleContext, RuleText: "ignored", Active: false},
		{Kind: pipedomain.RuleExclusion, RuleText: "not context", Active: true},
	}
	lines := contextRuleText(rules)
	if len(lines) != 1 || lines[0] != "keep vendor invoices" {
		t.Fatalf("contextRuleText = %v", lines)
	}
}
