package auth

import (
	"net/http"
	"strings"

	"github.com/memora-app/memora/internal/platform/httpx"
	"github.com/memora-app/memora/internal/shared"
)

// FailureRecorder counts rejected authentications for observability.
type FailureRecorder interface {
	AuthFailure(reason string)
}

// RequireAuth rejects requests without a valid bearer access token and
// stores the caller's identity in the request context.
func RequireAuth(issuer *Issuer, metrics FailureRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				recordFailure(metrics, "missing_token")
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			claims, err := issuer.Parse(raw)
			if err != nil {
				recordFailure(metrics, "invalid_token")
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			identity := &shared.Identity{
				UserID: claims.Subject,
				Email:  claims.Email,
				Tier:   claims.Tier,
				Roles:  claims.Roles,
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return header[len(prefix):]
}

func recordFailure(metrics FailureRecorder, reason string) {
	if metrics != nil {
		metrics.AuthFailure(reason)
	}
}
