package domain

import "time"

// Rule kinds. Exclusion and mapping rules short-circuit the pipeline;
// any other kind only feeds the agent as context.
const (
	RuleExclusion = "exclusion"
	RuleMapping   = "mapping"
	RuleContext   = "context"
)

// Rule is a user-authored override evaluated before the agent runs.
type Rule struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	UserID           string    `json:"user_id" gorm:"index;not null"`
	RuleText         string    `json:"rule_text"`
	Kind             string    `json:"kind" gorm:"not null"`
	Pattern          string    `json:"pattern" gorm:"not null"`
	TargetEntityType *string   `json:"target_entity_type"`
	TargetEntityID   *string   `json:"target_entity_id"`
	Priority         int       `json:"priority" gorm:"default:0"`
	Active           bool      `json:"active" gorm:"default:true"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Decision actions.
const (
	ActionKeep   = "keep"
	ActionDelete = "delete"
)

// Link is a target the email should be attached to.
type Link struct {
	EntityType string
	EntityID   string
	Confidence float64
	Reasoning  string
}

// FlagRequest asks for a human review entry instead of a hard link.
type FlagRequest struct {
	SuggestedName    string
	SuggestedCompany string
	MatchReason      string
}

// Decision is the terminal output of the rule engine or the agent for
// one email.
type Decision struct {
	Action     string
	Links      []Link
	Flag       *FlagRequest
	Provenance string
	Summary    string
}
