package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. The same value is
	// returned for unknown emails, federated-only accounts and wrong
	// passwords so callers cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserAlreadyExists indicates a signup attempt with a registered email.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrUserNotFound indicates a dangling user reference.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidRefreshToken indicates a missing or unmatched refresh token.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrUnauthorized indicates a missing, garbled or expired access token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUsageLimitExceeded indicates a quota ceiling was reached.
	ErrUsageLimitExceeded = errors.New("usage limit exceeded")
	// ErrConfiguration indicates the deployment is unsafe to serve traffic,
	// for example a missing signing secret or a missing usage row.
	ErrConfiguration = errors.New("configuration error")
)
