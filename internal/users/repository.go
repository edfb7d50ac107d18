package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memora-app/memora/internal/platform/db"
	"github.com/memora-app/memora/internal/shared"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for user accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, password_hash, tier, roles, google_id, provider, require_password_change, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var (
		u            User
		passwordHash *string
		tier         string
		googleID     *string
		provider     *string
	)
	if err := row.Scan(&u.ID, &u.Email, &passwordHash, &tier, &u.Roles, &googleID, &provider, &u.RequirePasswordChange, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("users: scan: %w", err)
	}
	parsed, err := ParseTier(tier)
	if err != nil {
		return nil, err
	}
	u.Tier = parsed
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	if googleID != nil {
		u.GoogleID = *googleID
	}
	if provider != nil {
		u.Provider = *provider
	}
	return &u, nil
}

// FindByEmail returns the user owning the given email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// FindByID returns the user with the given id.
func (r *Repository) FindByID(ctx context.Context, id string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// FindByGoogleID returns the user linked to the given federated identity.
func (r *Repository) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE google_id = $1`, googleID)
	return scanUser(row)
}

// Create inserts the user together with its zeroed usage row in one
// transaction. A user without a usage row breaks the quota provisioning
// invariant, so the two inserts must not be separable.
func (r *Repository) Create(ctx context.Context, u *User) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var passwordHash, googleID, provider *string
		if u.PasswordHash != "" {
			passwordHash = &u.PasswordHash
		}
		if u.GoogleID != "" {
			googleID = &u.GoogleID
		}
		if u.Provider != "" {
			provider = &u.Provider
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (id, email, password_hash, tier, roles, google_id, provider, require_password_change)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			u.ID, u.Email, passwordHash, string(u.Tier), u.Roles, googleID, provider, u.RequirePasswordChange,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO user_usage (user_id) VALUES ($1)`, u.ID)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shared.ErrUserAlreadyExists
		}
		return fmt.Errorf("users: create: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored hash and clears the forced-change flag.
func (r *Repository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $2, require_password_change = FALSE, updated_at = NOW()
		WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("users: update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// LinkGoogle attaches a federated identity to an existing account.
func (r *Repository) LinkGoogle(ctx context.Context, id, googleID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET google_id = $2, provider = 'google', updated_at = NOW()
		WHERE id = $1`, id, googleID)
	if err != nil {
		return fmt.Errorf("users: link google: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}
