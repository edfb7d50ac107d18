package users

import (
	"context"
)

// RepositoryPort defines data access methods for user accounts.
type RepositoryPort interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	LinkGoogle(ctx context.Context, id, googleID string) error
}

// Service handles user account business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// FindByEmail returns the user owning the given email.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.FindByEmail(ctx, email)
}

// FindByID returns the user with the given id.
func (s *Service) FindByID(ctx context.Context, id string) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByGoogleID returns the user linked to the federated identity.
func (s *Service) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	return s.repo.FindByGoogleID(ctx, googleID)
}

// Create provisions a new account and its usage record.
func (s *Service) Create(ctx context.Context, u *User) error {
	return s.repo.Create(ctx, u)
}

// UpdatePassword stores a new hash and clears the forced-change flag.
func (s *Service) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.repo.UpdatePassword(ctx, id, passwordHash)
}

// LinkGoogle links a federated identity to an existing account.
func (s *Service) LinkGoogle(ctx context.Context, id, googleID string) error {
	return s.repo.LinkGoogle(ctx, id, googleID)
}
