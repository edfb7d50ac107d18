package quota

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/memora-app/memora/internal/platform/httpx"
	"github.com/memora-app/memora/internal/shared"
)

// DenialRecorder counts quota denials for observability.
type DenialRecorder interface {
	QuotaDenial(resource, tier string)
}

// denialPayload is the structured 429 body quota-gated endpoints return.
type denialPayload struct {
	Error    string    `json:"error"`
	Message  string    `json:"message"`
	Resource Resource  `json:"resource"`
	Limit    int64     `json:"limit"`
	ResetAt  time.Time `json:"resetAt"`
}

// Gate guards request handlers with quota admission control.
type Gate struct {
	logger   *slog.Logger
	enforcer *Enforcer
	metrics  DenialRecorder
}

// NewGate constructs a Gate.
func NewGate(logger *slog.Logger, enforcer *Enforcer, metrics DenialRecorder) *Gate {
	return &Gate{logger: logger, enforcer: enforcer, metrics: metrics}
}

// Admit returns middleware admitting or rejecting the request before the
// guarded operation runs. Admission and increment are one atomic step, so a
// handler that fails after admission leaves the unit consumed; that is the
// accepted cost of side-effecting admission, not something to unwind.
func (g *Gate) Admit(resource Resource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := shared.IdentityFromContext(r.Context())
			if identity == nil {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}

			decision, err := g.enforcer.Reserve(r.Context(), identity.UserID, resource)
			if err != nil {
				// A missing usage row is a broken deployment, not a user
				// problem; make it loud.
				g.logger.Error("quota reserve",
					slog.String("resource", string(resource)),
					slog.String("user_id", identity.UserID),
					slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}

			if !decision.Allowed {
				if g.metrics != nil {
					g.metrics.QuotaDenial(string(resource), identity.Tier)
				}
				httpx.JSON(w, http.StatusTooManyRequests, denialPayload{
					Error:    "LIMIT_EXCEEDED",
					Message:  "You've reached your " + string(resource) + " limit",
					Resource: decision.Resource,
					Limit:    decision.Limit,
					ResetAt:  decision.ResetAt.UTC(),
				})
				return
			}

			if decision.Remaining != Unlimited {
				w.Header().Set("X-Usage-Remaining", strconv.FormatInt(decision.Remaining, 10))
			}
			next.ServeHTTP(w, r)
		})
	}
}
