package users

import (
	"fmt"
	"time"
)

// Tier is a named service level. It is a closed set so an invalid tier is
// unrepresentable past the parsing boundary.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier validates a stored tier value.
func ParseTier(raw string) (Tier, error) {
	switch Tier(raw) {
	case TierFree, TierPremium:
		return Tier(raw), nil
	}
	return "", fmt.Errorf("users: unknown tier %q", raw)
}

// RoleUser is the default role granted on signup.
const RoleUser = "user"

// User represents an identity record. PasswordHash is empty for accounts
// that only ever authenticated through a federated provider.
type User struct {
	ID                    string
	Email                 string
	PasswordHash          string
	Tier                  Tier
	Roles                 []string
	GoogleID              string
	Provider              string
	RequirePasswordChange bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// HasPassword reports whether local credential login is possible.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}
