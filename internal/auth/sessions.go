package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/memora-app/memora/internal/shared"
)

// DefaultRefreshTTL is the refresh credential lifetime.
const DefaultRefreshTTL = 30 * 24 * time.Hour

// lookupKeyLen is the hex length of the truncated keyed hash stored next to
// the verification hash. It narrows validation to the sessions sharing the
// key instead of scanning every live session, while staying useless to an
// attacker holding only the database.
const lookupKeyLen = 32

// Session is a persisted refresh credential. Only the argon2id hash of the
// token is stored; ExpiresAt is immutable once created and revocation is
// deletion, not mutation.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	LookupKey string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionRepositoryPort defines persistence for refresh sessions.
type SessionRepositoryPort interface {
	Insert(ctx context.Context, s *Session) error
	Candidates(ctx context.Context, lookupKey string, now time.Time) ([]Session, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionStore manages long-lived opaque refresh credentials. The plaintext
// token exists only in transit: it is returned once from Create and never
// persisted.
type SessionStore struct {
	repo         SessionRepositoryPort
	lookupSecret []byte
	ttl          time.Duration
}

// NewSessionStore constructs a SessionStore. The lookup secret keys the
// non-secret index derived from each raw token; without it the store falls
// back to nothing, so it is required.
func NewSessionStore(repo SessionRepositoryPort, lookupSecret string, ttl time.Duration) (*SessionStore, error) {
	if lookupSecret == "" {
		return nil, fmt.Errorf("auth: session lookup secret missing: %w", shared.ErrConfiguration)
	}
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	return &SessionStore{repo: repo, lookupSecret: []byte(lookupSecret), ttl: ttl}, nil
}

// Create mints a high-entropy refresh token for the user, persists its hash
// and returns the raw token. Multiple live sessions per user are allowed.
func (s *SessionStore) Create(ctx context.Context, userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: refresh token entropy: %w", err)
	}
	raw := hex.EncodeToString(buf)

	hash, err := HashSecret(raw)
	if err != nil {
		return "", err
	}

	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hash,
		LookupKey: s.lookupKey(raw),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.repo.Insert(ctx, sess); err != nil {
		return "", fmt.Errorf("auth: persist session: %w", err)
	}
	return raw, nil
}

// Validate resolves a raw refresh token to its owning user. The presented
// token stays valid afterwards; there is no rotation on use.
func (s *SessionStore) Validate(ctx context.Context, raw string) (string, error) {
	match, err := s.match(ctx, raw)
	if err != nil {
		return "", err
	}
	if match == nil {
		return "", shared.ErrInvalidRefreshToken
	}
	return match.UserID, nil
}

// Revoke deletes the session matching the raw token. Revoking a token that
// matches nothing is a silent no-op so logout stays idempotent.
func (s *SessionStore) Revoke(ctx context.Context, raw string) error {
	match, err := s.match(ctx, raw)
	if err != nil {
		return err
	}
	if match == nil {
		return nil
	}
	return s.repo.Delete(ctx, match.ID)
}

// SweepExpired bulk-deletes sessions past expiry. It runs on a schedule from
// the worker, not per request.
func (s *SessionStore) SweepExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, time.Now())
}

func (s *SessionStore) match(ctx context.Context, raw string) (*Session, error) {
	if raw == "" {
		return nil, nil
	}
	candidates, err := s.repo.Candidates(ctx, s.lookupKey(raw), time.Now())
	if err != nil {
		return nil, fmt.Errorf("auth: load sessions: %w", err)
	}
	// The lookup key narrows the set to, in practice, one row; the argon2
	// verify remains the authority on a match.
	for i := range candidates {
		if VerifySecret(candidates[i].TokenHash, raw) {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

func (s *SessionStore) lookupKey(raw string) string {
	mac := hmac.New(sha256.New, s.lookupSecret)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))[:lookupKeyLen]
}
