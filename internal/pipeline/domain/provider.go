package domain

import (
	"context"

	conndomain "mailpilot-backend/internal/connection/domain"
)

// MailProvider abstracts the mailbox backend (Gmail REST, IMAP).
type MailProvider interface {
	// Sync returns message refs added since the connection's watermark.
	// When the watermark is no longer valid the provider performs a full
	// sync (bounded recent window) and sources a fresh watermark from
	// the account profile; the result carries FullSync=true. A rejected
	// token refresh surfaces as ErrAuth, an unrecognized-position
	// condition that could not be recovered as ErrSyncExpired, and any
	// other failure as ErrSyncTransport.
	Sync(ctx context.Context, conn *conndomain.MailConnection, onTokenRefresh conndomain.TokenUpdateFunc) (*SyncResult, error)

	// FetchEmail retrieves and decodes a single message.
	FetchEmail(ctx context.Context, conn *conndomain.MailConnection, messageID string, onTokenRefresh conndomain.TokenUpdateFunc) (*NormalizedEmail, error)

	// DeleteMessage permanently removes a message at the provider.
	// Best-effort: failure is logged by callers, not propagated.
	DeleteMessage(ctx context.Context, conn *conndomain.MailConnection, messageID string, onTokenRefresh conndomain.TokenUpdateFunc) error

	// Revoke invalidates the connection's grant at the provider.
	// Best-effort.
	Revoke(ctx context.Context, conn *conndomain.MailConnection) error
}
