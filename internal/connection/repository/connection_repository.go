package repository

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	conndomain "mailpilot-backend/internal/connection/domain"

	"gorm.io/gorm"
)

// connectionRepository implements ConnectionRepository
type connectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository creates a new instance of connectionRepository
func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) Create(conn *conndomain.MailConnection) error {
	return r.db.Create(conn).Error
}

func (r *connectionRepository) FindByID(id string) (*conndomain.MailConnection, error) {
	var conn conndomain.MailConnection
	err := r.db.Where("id = ?", id).First(&conn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) FindByEmailAddress(address string) (*conndomain.MailConnection, error) {
	var conn conndomain.MailConnection
	err := r.db.Where("LOWER(email_address) = LOWER(?)", address).First(&conn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) FindActive() ([]*conndomain.MailConnection, error) {
	var conns []*conndomain.MailConnection
	err := r.db.Where("active = ?", true).Find(&conns).Error
	return conns, err
}

func (r *connectionRepository) FindActiveByUser(userID string) ([]*conndomain.MailConnection, error) {
	var conns []*conndomain.MailConnection
	err := r.db.Where("user_id = ? AND active = ?", userID, true).Find(&conns).Error
	return conns, err
}

func (r *connectionRepository) UpdateTokens(id string, accessToken, refreshTokenSealed string, expiry time.Time) error {
	updates := map[string]interface{}{
		"access_token": accessToken,
		"token_expiry": expiry,
		"updated_at":   time.Now(),
	}
	if refreshTokenSealed != "" {
		updates["refresh_token_sealed"] = refreshTokenSealed
	}
	return r.db.Model(&conndomain.MailConnection{}).Where("id = ?", id).Updates(updates).Error
}

func (r *connectionRepository) AdvanceWatermark(id string, historyID string, syncedAt time.Time) error {
	return r.db.Model(&conndomain.MailConnection{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_history_id": historyID,
		"last_sync_at":    syncedAt,
		"updated_at":      time.Now(),
	}).Error
}

func (r *connectionRepository) Deactivate(id string) error {
	return r.db.Model(&conndomain.MailConnection{}).Where("id = ?", id).Updates(map[string]interface{}{
		"active":     false,
		"updated_at": time.Now(),
	}).Error
}

// lockKey folds a connection id into the bigint keyspace of
// pg_advisory_lock.
func lockKey(id string) int64 {
	h := fnv.New64a()
	h.Write([]byte("mail_connection:" + id))
	return int64(h.Sum64())
}

// advisoryLock holds the acquiring session until release. Advisory
// locks are session-scoped in Postgres: acquire and unlock must run on
// the same physical connection, so the session is checked out of the
// pool for the full critical section instead of being returned after
// the lock query.
type advisoryLock struct {
	conn *sql.Conn
	key  int64
}

func (l *advisoryLock) Release() error {
	var released bool
	err := l.conn.QueryRowContext(context.Background(), "SELECT pg_advisory_unlock($1)", l.key).Scan(&released)
	closeErr := l.conn.Close()
	if err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	if !released {
		return fmt.Errorf("advisory lock %d was not held by the releasing session", l.key)
	}
	return closeErr
}

func (r *connectionRepository) TryLock(ctx context.Context, id string) (AdvisoryLock, error) {
	sqlDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, err
	}

	var locked bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockKey(id)).Scan(&locked); err != nil {
		conn.Close()
		return nil, err
	}
	if !locked {
		conn.Close()
		return nil, nil
	}
	return &advisoryLock{conn: conn, key: lockKey(id)}, nil
}
