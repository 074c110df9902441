package usecase

import (
	"path"
	"sort"
	"strings"

	pipedomain "mailpilot-backend/internal/pipeline/domain"
)

// EvaluateRules runs the deterministic override tier. Rules are tried
// in priority order (highest first); the first exclusion or complete
// mapping match wins and the agent is never invoked. Context-kind
// matches never short-circuit: they only bias the agent later.
//
// Pure function, no I/O.
func EvaluateRules(email *pipedomain.NormalizedEmail, rules []*pipedomain.Rule) (*pipedomain.Decision, bool) {
	ordered := make([]*pipedomain.Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Active {
			ordered = append(ordered, rule)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	for _, rule := range ordered {
		if !ruleMatches(rule, email) {
			continue
		}

		switch rule.Kind {
		case pipedomain.RuleExclusion:
			return &pipedomain.Decision{
				Action:     pipedomain.ActionDelete,
				Provenance: pipedomain.ProvenanceRule,
				Summary:    "matched exclusion rule: " + rule.Pattern,
			}, true

		case pipedomain.RuleMapping:
			if rule.TargetEntityType == nil || rule.TargetEntityID == nil {
				continue
			}
			return &pipedomain.Decision{
				Action: pipedomain.ActionKeep,
				Links: []pipedomain.Link{{
					EntityType: *rule.TargetEntityType,
					EntityID:   *rule.TargetEntityID,
					Confidence: 1.0,
					Reasoning:  "matched mapping rule: " + rule.Pattern,
				}},
				Provenance: pipedomain.ProvenanceRule,
				Summary:    "matched mapping rule: " + rule.Pattern,
			}, true
		}
		// Any other kind is context for the agent, not an override.
	}

	return nil, false
}

// ruleMatches tests the pattern against sender address, sender domain,
// and subject, case-insensitively. A pattern containing "*" is treated
// as a glob, otherwise as a substring.
func ruleMatches(rule *pipedomain.Rule, email *pipedomain.NormalizedEmail) bool {
	pattern := strings.ToLower(strings.TrimSpace(rule.Pattern))
	if pattern == "" {
		return false
	}

	sender := strings.ToLower(email.FromAddress)
	domain := sender
	if idx := strings.LastIndex(sender, "@"); idx >= 0 {
		domain = sender[idx+1:]
	}
	subject := strings.ToLower(email.Subject)

	for _, candidate := range []string{sender, domain, subject} {
		if candidate == "" {
			continue
		}
		if strings.Contains(pattern, "*") {
			if ok, err := path.Match(pattern, candidate); err == nil && ok {
				return true
			}
			continue
		}
		if strings.Contains(candidate, pattern) {
			return true
		}
	}
	return false
}

// contextRuleText collects active context-kind rule text for the agent
// prompt.
func contextRuleText(rules []*pipedomain.Rule) []string {
	var lines []string
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if rule.Kind != pipedomain.RuleExclusion && rule.Kind != pipedomain.RuleMapping && rule.RuleText != "" {
			lines = append(lines, rule.RuleText)
		}
	}
	return lines
}
