package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Direction of a normalized email relative to the connected mailbox.
const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
)

// Recipient kinds.
const (
	RecipientTo  = "to"
	RecipientCc  = "cc"
	RecipientBcc = "bcc"
)

// Recipient is one parsed To/Cc/Bcc entry.
type Recipient struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Kind    string `json:"kind"`
}

// RecipientList is stored as a jsonb column.
type RecipientList []Recipient

func (r RecipientList) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *RecipientList) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	case nil:
		*r = nil
		return nil
	}
	return errors.New("unsupported recipient list source")
}

// StringList is stored as a jsonb column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	}
	return errors.New("unsupported string list source")
}

// NormalizedEmail is the decoded form of one provider message. Immutable
// once decoded; ProcessedAt is the only field touched afterwards.
type NormalizedEmail struct {
	ID              string        `json:"id" gorm:"primaryKey"`
	ConnectionID    string        `json:"connection_id" gorm:"index:idx_conn_msg,unique;not null"`
	MessageID       string        `json:"message_id" gorm:"index:idx_conn_msg,unique;not null"` // provider-assigned id
	MessageIDHeader string        `json:"message_id_header"`
	ThreadID        string        `json:"thread_id"`
	Direction       string        `json:"direction"`
	Subject         string        `json:"subject"`
	BodyText        string        `json:"body_text"`
	BodyHTML        string        `json:"body_html"`
	Snippet         string        `json:"snippet"`
	FromAddress     string        `json:"from_address" gorm:"index"`
	FromName        string        `json:"from_name"`
	Recipients      RecipientList `json:"recipients" gorm:"type:jsonb"`
	ReceivedAt      time.Time     `json:"received_at"`
	Labels          StringList    `json:"labels" gorm:"type:jsonb"`
	ProcessedAt     *time.Time    `json:"processed_at" gorm:"index"`
	CreatedAt       time.Time     `json:"created_at"`
}

func (NormalizedEmail) TableName() string {
	return "emails"
}

// MessageRef is a lightweight pointer to a provider message found by sync.
type MessageRef struct {
	ID       string
	ThreadID string
}

// SyncResult is what one sync cycle produced.
type SyncResult struct {
	Refs         []MessageRef
	NewHistoryID string
	FullSync     bool
}
