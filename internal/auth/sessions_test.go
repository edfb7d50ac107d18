package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memora-app/memora/internal/shared"
)

type mockSessionRepo struct {
	sessions map[string]*Session

	insertErr     error
	candidatesErr error
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*Session)}
}

func (m *mockSessionRepo) Insert(ctx context.Context, s *Session) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockSessionRepo) Candidates(ctx context.Context, lookupKey string, now time.Time) ([]Session, error) {
	if m.candidatesErr != nil {
		return nil, m.candidatesErr
	}
	var out []Session
	for _, s := range m.sessions {
		if s.LookupKey == lookupKey && s.ExpiresAt.After(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) Delete(ctx context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func newTestStore(t *testing.T, repo SessionRepositoryPort) *SessionStore {
	t.Helper()
	store, err := NewSessionStore(repo, "lookup-secret", time.Hour)
	require.NoError(t, err)
	return store
}

func TestNewSessionStoreRequiresLookupSecret(t *testing.T) {
	_, err := NewSessionStore(newMockSessionRepo(), "", time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestSessionCreateValidateRevoke(t *testing.T) {
	repo := newMockSessionRepo()
	store := newTestStore(t, repo)
	ctx := context.Background()

	raw, err := store.Create(ctx, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.Len(t, repo.sessions, 1)

	for _, s := range repo.sessions {
		assert.NotEqual(t, raw, s.TokenHash)
		assert.NotContains(t, s.TokenHash, raw)
		assert.Len(t, s.LookupKey, 32)
	}

	userID, err := store.Validate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	// Validation does not rotate: the same token keeps working.
	userID, err = store.Validate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	require.NoError(t, store.Revoke(ctx, raw))
	assert.Empty(t, repo.sessions)

	_, err = store.Validate(ctx, raw)
	assert.ErrorIs(t, err, shared.ErrInvalidRefreshToken)

	// Revoking an already-revoked token stays a no-op.
	assert.NoError(t, store.Revoke(ctx, raw))
}

func TestValidateUnknownToken(t *testing.T) {
	store := newTestStore(t, newMockSessionRepo())

	_, err := store.Validate(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, shared.ErrInvalidRefreshToken)

	_, err = store.Validate(context.Background(), "")
	assert.ErrorIs(t, err, shared.ErrInvalidRefreshToken)
}

func TestValidateSkipsExpiredSession(t *testing.T) {
	repo := newMockSessionRepo()
	store := newTestStore(t, repo)
	ctx := context.Background()

	raw, err := store.Create(ctx, "user-1")
	require.NoError(t, err)

	for _, s := range repo.sessions {
		s.ExpiresAt = time.Now().Add(-time.Minute)
	}

	_, err = store.Validate(ctx, raw)
	assert.ErrorIs(t, err, shared.ErrInvalidRefreshToken)
}

func TestValidatePicksOwnerAmongCandidates(t *testing.T) {
	repo := newMockSessionRepo()
	store := newTestStore(t, repo)
	ctx := context.Background()

	first, err := store.Create(ctx, "user-1")
	require.NoError(t, err)
	second, err := store.Create(ctx, "user-2")
	require.NoError(t, err)

	// Force both rows onto one lookup key so the argon2 check has to tell
	// them apart.
	sharedKey := store.lookupKey(first)
	for _, s := range repo.sessions {
		s.LookupKey = sharedKey
	}
	secondMatch, err := store.match(ctx, second)
	require.NoError(t, err)
	if secondMatch != nil {
		// Only reachable when the forged key equals second's real key.
		assert.Equal(t, "user-2", secondMatch.UserID)
	}

	userID, err := store.Validate(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestSweepExpired(t *testing.T) {
	repo := newMockSessionRepo()
	store := newTestStore(t, repo)
	ctx := context.Background()

	live, err := store.Create(ctx, "user-1")
	require.NoError(t, err)
	_, err = store.Create(ctx, "user-2")
	require.NoError(t, err)

	liveKey := store.lookupKey(live)
	for _, s := range repo.sessions {
		if s.LookupKey != liveKey {
			s.ExpiresAt = time.Now().Add(-time.Hour)
		}
	}

	swept, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)
	assert.Len(t, repo.sessions, 1)

	userID, err := store.Validate(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}
