package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/memora-app/memora/internal/auth"
	"github.com/memora-app/memora/internal/observability"
	"github.com/memora-app/memora/internal/quota"
)

// GatedRoute is an endpoint supplied by a collaborator module (capture,
// search, media processing) that must pass quota admission before running.
type GatedRoute struct {
	Method   string
	Pattern  string
	Resource quota.Resource
	Handler  http.Handler
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	AuthHandler  *auth.Handler
	UsageHandler *quota.Handler
	RequireAuth  func(http.Handler) http.Handler
	Gate         *quota.Gate
	GatedRoutes  []GatedRoute
	Metrics      *observability.Metrics
}

// NewRouter constructs the chi.Router with Memora defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	if params.UsageHandler != nil {
		r.Route("/usage", func(r chi.Router) {
			r.Use(params.RequireAuth)
			params.UsageHandler.MountRoutes(r)
		})
	}

	for _, gated := range params.GatedRoutes {
		if gated.Handler == nil || params.Gate == nil {
			continue
		}
		handler := params.RequireAuth(params.Gate.Admit(gated.Resource)(gated.Handler))
		r.Method(gated.Method, gated.Pattern, handler)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
