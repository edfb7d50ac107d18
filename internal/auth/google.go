package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/memora-app/memora/internal/shared"
)

const tokenInfoEndpoint = "https://oauth2.googleapis.com/tokeninfo"

// GoogleTokenVerifier resolves an ID token into a profile via Google's
// tokeninfo endpoint. The audience must match the configured client ID.
type GoogleTokenVerifier struct {
	clientID string
	endpoint string
	client   *http.Client
}

// NewGoogleTokenVerifier constructs a verifier for the given OAuth client ID.
func NewGoogleTokenVerifier(clientID string, client *http.Client) *GoogleTokenVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &GoogleTokenVerifier{clientID: clientID, endpoint: tokenInfoEndpoint, client: client}
}

type tokenInfoResponse struct {
	Audience      string `json:"aud"`
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
}

// Verify exchanges the ID token for the holder's profile. Any provider
// rejection surfaces as ErrUnauthorized so callers treat the token as bad
// credentials rather than an internal fault.
func (v *GoogleTokenVerifier) Verify(ctx context.Context, idToken string) (*GoogleProfile, error) {
	endpoint := v.endpoint + "?id_token=" + url.QueryEscape(idToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("google verify: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google verify: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, shared.ErrUnauthorized
	}

	var info tokenInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("google verify: decode: %w", err)
	}
	if info.Audience != v.clientID || info.Subject == "" || info.Email == "" {
		return nil, shared.ErrUnauthorized
	}
	if info.EmailVerified != "true" {
		return nil, shared.ErrUnauthorized
	}
	return &GoogleProfile{GoogleID: info.Subject, Email: info.Email, Name: info.Name}, nil
}
