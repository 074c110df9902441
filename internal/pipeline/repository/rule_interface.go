package repository

import (
	pipedomain "mailpilot-backend/internal/pipeline/domain"
)

// RuleRepository persists user-authored override rules.
type RuleRepository interface {
	Create(rule *pipedomain.Rule) error
	Update(rule *pipedomain.Rule) error
	Delete(id, userID string) error
	FindByID(id string) (*pipedomain.Rule, error)
	// FindActiveByUser returns active rules ordered by priority descending.
	FindActiveByUser(userID string) ([]*pipedomain.Rule, error)
	FindByUser(userID string) ([]*pipedomain.Rule, error)
	// SearchByUser matches rule text and pattern, for the agent's
	// search_rules tool.
	SearchByUser(userID, query string) ([]*pipedomain.Rule, error)
}
