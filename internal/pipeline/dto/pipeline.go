package dto

import pipedomain "mailpilot-backend/internal/pipeline/domain"

type CreateRuleRequest struct {
	RuleText         string  `json:"rule_text" binding:"required"`
	Kind             string  `json:"kind" binding:"required,oneof=exclusion mapping context"`
	Pattern          string  `json:"pattern" binding:"required"`
	TargetEntityType *string `json:"target_entity_type"`
	TargetEntityID   *string `json:"target_entity_id"`
	Priority         int     `json:"priority"`
}

type UpdateRuleRequest struct {
	RuleText         *string `json:"rule_text"`
	Pattern          *string `json:"pattern"`
	TargetEntityType *string `json:"target_entity_type"`
	TargetEntityID   *string `json:"target_entity_id"`
	Priority         *int    `json:"priority"`
	Active           *bool   `json:"active"`
}

type RulesResponse struct {
	Rules []*pipedomain.Rule `json:"rules"`
}

type ReviewFlagsResponse struct {
	Flags  []*pipedomain.ReviewFlag `json:"flags"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
	Total  int64                    `json:"total"`
}
