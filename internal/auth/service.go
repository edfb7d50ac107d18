package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/memora-app/memora/internal/shared"
	"github.com/memora-app/memora/internal/users"
)

// UsersPort defines the account operations the auth flows depend on.
type UsersPort interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	FindByID(ctx context.Context, id string) (*users.User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*users.User, error)
	Create(ctx context.Context, u *users.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	LinkGoogle(ctx context.Context, id, googleID string) error
}

// Mailer delivers credentials for admin-provisioned accounts out-of-band.
type Mailer interface {
	EnqueueWelcome(ctx context.Context, email, password string) error
}

// GoogleProfile is a verified federated identity, produced by an external
// token verifier.
type GoogleProfile struct {
	GoogleID string
	Email    string
	Name     string
}

// Result is what a successful login-shaped flow returns. RefreshToken is the
// only moment the plaintext refresh credential exists; it travels to the
// client on a channel distinct from the access token.
type Result struct {
	AccessToken  string
	RefreshToken string
	User         *users.User
}

// Service composes credential verification, token issuance and the session
// store into the signup, login, refresh and logout flows.
type Service struct {
	users    UsersPort
	sessions *SessionStore
	issuer   *Issuer
	mailer   Mailer
}

// NewService constructs a new Service.
func NewService(usersPort UsersPort, sessions *SessionStore, issuer *Issuer, mailer Mailer) *Service {
	return &Service{users: usersPort, sessions: sessions, issuer: issuer, mailer: mailer}
}

// Authenticate validates email/password credentials. An unknown email, a
// federated-only account and a wrong password all fail with the same error
// and, as far as feasible, the same shape of work.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.HasPassword() {
		return nil, shared.ErrInvalidCredentials
	}
	if !VerifySecret(user.PasswordHash, password) {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Signup registers a new account with a zeroed usage record. Admin-created
// accounts get their initial credentials mailed out-of-band and must change
// the password on first login; they are not logged in here.
func (s *Service) Signup(ctx context.Context, email, password string, adminCreated bool) (*Result, error) {
	email = normalizeEmail(email)

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, shared.ErrUserAlreadyExists
	} else if !errors.Is(err, shared.ErrUserNotFound) {
		return nil, err
	}

	hash, err := HashSecret(password)
	if err != nil {
		return nil, err
	}

	user := &users.User{
		ID:                    uuid.NewString(),
		Email:                 email,
		PasswordHash:          hash,
		Tier:                  users.TierFree,
		Roles:                 []string{users.RoleUser},
		RequirePasswordChange: adminCreated,
	}
	// Create is the race backstop: a concurrent signup with the same email
	// surfaces here as ErrUserAlreadyExists via the unique index.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if adminCreated {
		if s.mailer != nil {
			if err := s.mailer.EnqueueWelcome(ctx, email, password); err != nil {
				return nil, fmt.Errorf("auth: enqueue welcome mail: %w", err)
			}
		}
		return &Result{User: user}, nil
	}

	return s.login(ctx, user)
}

// Login verifies credentials and issues both token kinds.
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.login(ctx, user)
}

// Refresh exchanges a live refresh token for a fresh access token. The
// refresh token itself is not rotated; it remains valid until expiry or an
// explicit logout.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	userID, err := s.sessions.Validate(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			return "", shared.ErrInvalidRefreshToken
		}
		return "", err
	}
	return s.issuer.Issue(user)
}

// Logout revokes the presented refresh token. Unmatched tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.Revoke(ctx, refreshToken)
}

// ChangePassword verifies the current password before storing a new hash
// and clearing the forced-change flag.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() || !VerifySecret(user.PasswordHash, oldPassword) {
		return shared.ErrInvalidCredentials
	}
	hash, err := HashSecret(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

// GoogleLogin finds, links or creates the account owning a verified Google
// identity and proceeds as a login.
func (s *Service) GoogleLogin(ctx context.Context, profile GoogleProfile) (*Result, error) {
	user, err := s.users.FindByGoogleID(ctx, profile.GoogleID)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrUserNotFound):
		user, err = s.findOrCreateByEmail(ctx, profile)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return s.login(ctx, user)
}

// Me returns the profile of the authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (*users.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *Service) findOrCreateByEmail(ctx context.Context, profile GoogleProfile) (*users.User, error) {
	email := normalizeEmail(profile.Email)
	user, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		// Existing password account: link the federated identity to it.
		if err := s.users.LinkGoogle(ctx, user.ID, profile.GoogleID); err != nil {
			return nil, err
		}
		user.GoogleID = profile.GoogleID
		user.Provider = "google"
		return user, nil
	}
	if !errors.Is(err, shared.ErrUserNotFound) {
		return nil, err
	}

	user = &users.User{
		ID:       uuid.NewString(),
		Email:    email,
		Tier:     users.TierFree,
		Roles:    []string{users.RoleUser},
		GoogleID: profile.GoogleID,
		Provider: "google",
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) login(ctx context.Context, user *users.User) (*Result, error) {
	accessToken, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &Result{AccessToken: accessToken, RefreshToken: refreshToken, User: user}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
