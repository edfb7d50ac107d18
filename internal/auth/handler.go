package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/memora-app/memora/internal/platform/httpx"
	"github.com/memora-app/memora/internal/shared"
	"github.com/memora-app/memora/internal/users"
)

const refreshCookieName = "refresh_token"

// GoogleVerifier validates a federated ID token with the provider. The
// implementation is an external collaborator; the handler only needs the
// verified profile.
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*GoogleProfile, error)
}

// HandlerConfig carries the HTTP-facing knobs for the auth endpoints.
type HandlerConfig struct {
	// CookieSecure marks the refresh cookie Secure; set in production.
	CookieSecure bool
	// RefreshTTL bounds the refresh cookie lifetime, matching the session TTL.
	RefreshTTL time.Duration
	// CredentialLimit rate-limits the endpoints that run memory-hard hash
	// verification; without it a flood of bad logins is a cheap CPU attack.
	CredentialLimit func(http.Handler) http.Handler
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	cfg         HandlerConfig
	requireAuth func(http.Handler) http.Handler
	google      GoogleVerifier
	metrics     FailureRecorder
	validator   *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, cfg HandlerConfig, requireAuth func(http.Handler) http.Handler, google GoogleVerifier, metrics FailureRecorder) *Handler {
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &Handler{
		logger:      logger,
		service:     service,
		cfg:         cfg,
		requireAuth: requireAuth,
		google:      google,
		metrics:     metrics,
		validator:   validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.cfg.CredentialLimit != nil {
			r.Use(h.cfg.CredentialLimit)
		}
		r.Post("/signup", h.handleSignup)
		r.Post("/login", h.handleLogin)
		r.Post("/refresh", h.handleRefresh)
		if h.google != nil {
			r.Post("/google", h.handleGoogle)
		}
	})
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
		r.Post("/change-password", h.handleChangePassword)
	})
}

type signupRequest struct {
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,min=8"`
	IsAdminCreated bool   `json:"isAdminCreated"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

type googleRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

type userPayload struct {
	ID                    string   `json:"id"`
	Email                 string   `json:"email"`
	Tier                  string   `json:"tier"`
	Roles                 []string `json:"roles"`
	RequirePasswordChange bool     `json:"requirePasswordChange"`
}

func toUserPayload(u *users.User) userPayload {
	return userPayload{
		ID:                    u.ID,
		Email:                 u.Email,
		Tier:                  string(u.Tier),
		Roles:                 u.Roles,
		RequirePasswordChange: u.RequirePasswordChange,
	}
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	result, err := h.service.Signup(r.Context(), req.Email, req.Password, req.IsAdminCreated)
	if err != nil {
		h.respondError(w, r, "signup", err)
		return
	}

	if req.IsAdminCreated {
		httpx.JSON(w, http.StatusCreated, map[string]any{"user": toUserPayload(result.User)})
		return
	}

	h.setRefreshCookie(w, result.RefreshToken)
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"accessToken": result.AccessToken,
		"user":        toUserPayload(result.User),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.metrics != nil {
			h.metrics.AuthFailure("invalid_credentials")
		}
		h.respondError(w, r, "login", err)
		return
	}

	h.setRefreshCookie(w, result.RefreshToken)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"accessToken": result.AccessToken,
		"user":        toUserPayload(result.User),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidRefreshToken)
		return
	}

	accessToken, err := h.service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		h.respondError(w, r, "refresh", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accessToken": accessToken})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("revoke session", slog.Any("error", err))
		}
	}
	h.clearRefreshCookie(w)
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	user, err := h.service.Me(r.Context(), identity.UserID)
	if err != nil {
		h.respondError(w, r, "me", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserPayload(user))
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}

	var req changePasswordRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), identity.UserID, req.OldPassword, req.NewPassword); err != nil {
		h.respondError(w, r, "change password", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "password changed"})
}

func (h *Handler) handleGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	profile, err := h.google.Verify(r.Context(), req.IDToken)
	if err != nil {
		if h.metrics != nil {
			h.metrics.AuthFailure("invalid_google_token")
		}
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}

	result, err := h.service.GoogleLogin(r.Context(), *profile)
	if err != nil {
		h.respondError(w, r, "google login", err)
		return
	}

	h.setRefreshCookie(w, result.RefreshToken)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"accessToken": result.AccessToken,
		"user":        toUserPayload(result.User),
	})
}

func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !isExpected(err) {
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
	}
	httpx.RespondError(w, err)
}

func isExpected(err error) bool {
	for _, known := range []error{
		shared.ErrInvalidCredentials,
		shared.ErrInvalidRefreshToken,
		shared.ErrUserAlreadyExists,
		shared.ErrUnauthorized,
		shared.ErrUserNotFound,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/auth/refresh",
		MaxAge:   int(h.cfg.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth/refresh",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
