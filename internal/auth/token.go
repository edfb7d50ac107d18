package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/memora-app/memora/internal/shared"
	"github.com/memora-app/memora/internal/users"
)

// Claims carried by an access token. The token is stateless: revoking a
// user's session only denies future refreshes, so a stolen token stays
// usable until its expiry.
type Claims struct {
	Email string   `json:"email"`
	Tier  string   `json:"tier"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Issuer mints and parses signed access tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer constructs an Issuer. A missing signing secret makes the
// deployment unsafe to serve traffic, so it is rejected outright.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: signing secret missing: %w", shared.ErrConfiguration)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a short-lived token embedding the user's identity and roles.
func (i *Issuer) Issue(u *users.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: u.Email,
		Tier:  string(u.Tier),
		Roles: u.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a raw token and returns its claims. Any failure, whether
// a garbled token, a bad signature or an expired claim, maps to
// ErrUnauthorized.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, shared.ErrUnauthorized
	}
	return claims, nil
}
