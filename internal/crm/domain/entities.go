package domain

import "time"

// The CRM entity tables are owned by the wider CRM application; this
// subsystem reads them for agent searches and writes only activities.

type Deal struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Keywords  string    `json:"keywords"`
	Stage     string    `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
}

// DealParticipant records who is involved in a deal, keyed by email
// address for sender verification.
type DealParticipant struct {
	ID           string `json:"id" gorm:"primaryKey"`
	DealID       string `json:"deal_id" gorm:"index"`
	EmailAddress string `json:"email_address" gorm:"index"`
	Role         string `json:"role"`
}

type Contact struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index"`
	Name      string    `json:"name"`
	Email     string    `json:"email" gorm:"index"`
	Company   string    `json:"company"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type Client struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index"`
	Name      string    `json:"name"`
	Email     string    `json:"email" gorm:"index"`
	Company   string    `json:"company"`
	CreatedAt time.Time `json:"created_at"`
}

type Property struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// Activity is materialized for each accepted email link.
type Activity struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"index"`
	EntityType string    `json:"entity_type" gorm:"index:idx_activity_entity;uniqueIndex:idx_activity_email_entity"`
	EntityID   string    `json:"entity_id" gorm:"index:idx_activity_entity;uniqueIndex:idx_activity_email_entity"`
	Kind       string    `json:"kind" gorm:"default:email"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	EmailID    string    `json:"email_id" gorm:"index;uniqueIndex:idx_activity_email_entity"`
	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// SearchHit is a provider-neutral search result handed to the agent.
type SearchHit struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Title      string `json:"title"`
	Detail     string `json:"detail,omitempty"`
}
