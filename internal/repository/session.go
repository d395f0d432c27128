package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ntolkachev-gh/ai-community-bot/internal/registration"
)

// SessionRepository is the durable registration.Store: dialog sessions
// live in a keyed table with a TTL, so an in-progress registration
// survives a process restart and abandoned sessions expire instead of
// accumulating.
type SessionRepository struct {
	db  *pgxpool.Pool
	ttl time.Duration
}

// NewSessionRepository constructs a SessionRepository whose sessions
// expire after ttl of inactivity.
func NewSessionRepository(db *pgxpool.Pool, ttl time.Duration) *SessionRepository {
	return &SessionRepository{db: db, ttl: ttl}
}

// Get returns the active session for the user. Expired rows are invisible
// here and reported as registration.ErrNoSession.
func (r *SessionRepository) Get(ctx context.Context, telegramID int64) (*registration.Session, error) {
	var (
		step    string
		data    []byte
		updated time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT step, data, updated_at
		 FROM registration_sessions
		 WHERE telegram_id = $1 AND expires_at > now()`,
		telegramID,
	).Scan(&step, &data, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, registration.ErrNoSession
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	s := &registration.Session{
		Step:      registration.Step(step),
		Data:      map[string]string{},
		UpdatedAt: updated,
	}
	if err := json.Unmarshal(data, &s.Data); err != nil {
		return nil, fmt.Errorf("decode session data: %w", err)
	}
	return s, nil
}

// Put upserts the session and pushes its expiry forward by the TTL.
func (r *SessionRepository) Put(ctx context.Context, telegramID int64, s *registration.Session) error {
	data, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("encode session data: %w", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO registration_sessions (telegram_id, step, data, updated_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (telegram_id) DO UPDATE
		 SET step = EXCLUDED.step, data = EXCLUDED.data,
		     updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at`,
		telegramID, string(s.Step), data, s.UpdatedAt, time.Now().UTC().Add(r.ttl),
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// Delete drops the session. Absence is not an error.
func (r *SessionRepository) Delete(ctx context.Context, telegramID int64) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM registration_sessions WHERE telegram_id = $1`, telegramID,
	); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpired removes expired sessions and returns how many were dropped.
// Called periodically by the session janitor.
func (r *SessionRepository) PurgeExpired(ctx context.Context) (int, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM registration_sessions WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
