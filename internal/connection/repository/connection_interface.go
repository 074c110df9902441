package repository

import (
	"context"
	"time"

	conndomain "mailpilot-backend/internal/connection/domain"
)

// AdvisoryLock is a held per-connection lock. Release unlocks on the
// same database session that acquired it and returns that session to
// the pool.
type AdvisoryLock interface {
	Release() error
}

// ConnectionRepository persists mail connections and serializes sync
// cycles per connection.
type ConnectionRepository interface {
	Create(conn *conndomain.MailConnection) error
	FindByID(id string) (*conndomain.MailConnection, error)
	FindByEmailAddress(address string) (*conndomain.MailConnection, error)
	FindActive() ([]*conndomain.MailConnection, error)
	FindActiveByUser(userID string) ([]*conndomain.MailConnection, error)

	UpdateTokens(id string, accessToken, refreshTokenSealed string, expiry time.Time) error
	AdvanceWatermark(id string, historyID string, syncedAt time.Time) error
	Deactivate(id string) error

	// TryLock takes the Postgres advisory lock for a connection id on a
	// database session pinned for the lock's lifetime. Returns (nil, nil)
	// without blocking when another worker holds it.
	TryLock(ctx context.Context, id string) (AdvisoryLock, error)
}
