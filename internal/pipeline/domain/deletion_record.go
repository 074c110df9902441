package domain

import "time"

// DeletionRecord is the dedup ledger: one row per permanently removed
// message. Once a message id appears here the sync connector must never
// re-surface it, even on a full resync, until the record expires under
// the operator-controlled retention policy. The key includes the
// connection: provider message ids are only unique per mailbox (IMAP
// UIDs are small integers that repeat across accounts).
type DeletionRecord struct {
	ConnectionID      string    `json:"connection_id" gorm:"primaryKey"`
	ProviderMessageID string    `json:"provider_message_id" gorm:"primaryKey"`
	Action            string    `json:"action" gorm:"default:deleted"`
	CreatedAt         time.Time `json:"created_at" gorm:"index"`
}
