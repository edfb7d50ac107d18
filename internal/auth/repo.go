package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository provides PostgreSQL backed persistence for refresh
// sessions.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository constructs a repository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Insert persists a new session row.
func (r *SessionRepository) Insert(ctx context.Context, s *Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, lookup_key, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.UserID, s.TokenHash, s.LookupKey, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("auth: insert session: %w", err)
	}
	return nil
}

// Candidates returns the non-expired sessions sharing the lookup key.
func (r *SessionRepository) Candidates(ctx context.Context, lookupKey string, now time.Time) ([]Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, token_hash, lookup_key, expires_at, created_at
		FROM sessions
		WHERE lookup_key = $1 AND expires_at > $2`, lookupKey, now)
	if err != nil {
		return nil, fmt.Errorf("auth: query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.LookupKey, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("auth: scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auth: iterate sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session row by id. Deleting an absent row is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("auth: delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes all sessions past expiry and reports how many.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("auth: delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
