package domain

import "time"

// EntityType enumerates the CRM entities an email can link to.
const (
	EntityDeal     = "deal"
	EntityContact  = "contact"
	EntityClient   = "client"
	EntityProperty = "property"
)

// ValidEntityType reports whether t is a known CRM entity type.
func ValidEntityType(t string) bool {
	switch t {
	case EntityDeal, EntityContact, EntityClient, EntityProperty:
		return true
	}
	return false
}

// Provenance of a classification decision.
const (
	ProvenanceRule   = "rule"
	ProvenanceAgent  = "agent"
	ProvenanceManual = "manual"
)

// ClassificationResult links one email to one CRM entity. Rows are never
// mutated; corrections are recorded as new rows with manual provenance.
type ClassificationResult struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	EmailID      string    `json:"email_id" gorm:"index:idx_email_entity,unique;not null"`
	ConnectionID string    `json:"connection_id" gorm:"index;not null"`
	EntityType   string    `json:"entity_type" gorm:"index:idx_email_entity,unique;not null"`
	EntityID     string    `json:"entity_id" gorm:"index:idx_email_entity,unique;not null"`
	Confidence   float64   `json:"confidence"`
	Reasoning    string    `json:"reasoning"`
	Provenance   string    `json:"provenance"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReviewFlag statuses.
const (
	FlagPending   = "pending"
	FlagResolved  = "resolved"
	FlagDismissed = "dismissed"
)

// ReviewFlag marks an email the agent judged plausibly business-relevant
// but could not confidently classify.
type ReviewFlag struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	EmailID          string    `json:"email_id" gorm:"index;not null"`
	ConnectionID     string    `json:"connection_id" gorm:"index;not null"`
	SuggestedName    string    `json:"suggested_name"`
	SuggestedCompany string    `json:"suggested_company"`
	MatchReason      string    `json:"match_reason"`
	Status           string    `json:"status" gorm:"default:pending;index"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
