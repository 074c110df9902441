package usecase

import "mailpilot-backend/pkg/llm"

func queryOnlySchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{"query"},
	}
}

// toolDeclarations is the fixed tool surface the agent sees. The set
// never varies per email; guidance varies through the prompt instead.
func toolDeclarations() []llm.Tool {
	return []llm.Tool{
		{
			Name:        "search_rules",
			Description: "Search the user's triage rules by keyword.",
			Parameters:  queryOnlySchema("Keyword to match against rule text or pattern"),
		},
		{
			Name:        "search_deals",
			Description: "Search CRM deals by name or address keyword.",
			Parameters:  queryOnlySchema("Deal name or property address keyword"),
		},
		{
			Name:        "search_contacts",
			Description: "Search CRM contacts by name, email address or company.",
			Parameters:  queryOnlySchema("Contact name, email address or company keyword"),
		},
		{
			Name:        "search_clients",
			Description: "Search CRM clients by name or email address.",
			Parameters:  queryOnlySchema("Client name or email address keyword"),
		},
		{
			Name:        "search_properties",
			Description: "Search CRM properties by address.",
			Parameters:  queryOnlySchema("Street address or city keyword"),
		},
		{
			Name:        "verify_participant",
			Description: "Check whether an email address is a recorded participant of a deal.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"deal_id": map[string]interface{}{
						"type":        "string",
						"description": "ID of the deal to check",
					},
					"email_address": map[string]interface{}{
						"type":        "string",
						"description": "Address to check; defaults to the email's sender",
					},
				},
				"required": []string{"deal_id"},
			},
		},
		{
			Name:        "link_object",
			Description: "Record a classification link between this email and a CRM entity. Only call with confidence 0.7 or above.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"entity_type": map[string]interface{}{
						"type":        "string",
						"description": "One of: deal, contact, client, property",
					},
					"entity_id": map[string]interface{}{
						"type":        "string",
						"description": "ID of the entity returned by a search tool",
					},
					"confidence": map[string]interface{}{
						"type":        "number",
						"description": "Your confidence in the link, 0 to 1",
					},
					"reasoning": map[string]interface{}{
						"type":        "string",
						"description": "Short explanation of why this link holds",
					},
				},
				"required": []string{"entity_type", "entity_id", "confidence"},
			},
		},
		{
			Name:        "flag_for_review",
			Description: "Flag this email for human review when it looks business-relevant but no entity can be linked with confidence.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"suggested_name": map[string]interface{}{
						"type":        "string",
						"description": "Suggested contact name, if apparent",
					},
					"suggested_company": map[string]interface{}{
						"type":        "string",
						"description": "Suggested company, if apparent",
					},
					"match_reason": map[string]interface{}{
						"type":        "string",
						"description": "Why this email appears business-relevant",
					},
				},
				"required": []string{"match_reason"},
			},
		},
		{
			Name:        "done",
			Description: "Finish classification. Must be the final call for every email.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"summary": map[string]interface{}{
						"type":        "string",
						"description": "One-sentence summary of the email",
					},
					"is_business_relevant": map[string]interface{}{
						"type":        "boolean",
						"description": "Whether the email is business-relevant",
					},
					"action": map[string]interface{}{
						"type":        "string",
						"description": "keep or delete",
					},
				},
				"required": []string{"summary", "is_business_relevant", "action"},
			},
		},
	}
}
