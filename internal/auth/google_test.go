package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memora-app/memora/internal/shared"
)

func newTokenInfoServer(t *testing.T, status int, payload tokenInfoResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("id_token"))
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGoogleVerify(t *testing.T) {
	srv := newTokenInfoServer(t, http.StatusOK, tokenInfoResponse{
		Audience:      "client-id",
		Subject:       "goog-123",
		Email:         "fed@memora.test",
		EmailVerified: "true",
		Name:          "Fed Erated",
	})
	verifier := NewGoogleTokenVerifier("client-id", srv.Client())
	verifier.endpoint = srv.URL

	profile, err := verifier.Verify(context.Background(), "opaque-token")
	require.NoError(t, err)
	assert.Equal(t, "goog-123", profile.GoogleID)
	assert.Equal(t, "fed@memora.test", profile.Email)
	assert.Equal(t, "Fed Erated", profile.Name)
}

func TestGoogleVerifyRejections(t *testing.T) {
	cases := map[string]struct {
		status  int
		payload tokenInfoResponse
	}{
		"provider rejects token": {
			status: http.StatusBadRequest,
		},
		"audience mismatch": {
			status: http.StatusOK,
			payload: tokenInfoResponse{
				Audience: "someone-else", Subject: "goog-123",
				Email: "fed@memora.test", EmailVerified: "true",
			},
		},
		"unverified email": {
			status: http.StatusOK,
			payload: tokenInfoResponse{
				Audience: "client-id", Subject: "goog-123",
				Email: "fed@memora.test", EmailVerified: "false",
			},
		},
		"missing subject": {
			status: http.StatusOK,
			payload: tokenInfoResponse{
				Audience: "client-id", Email: "fed@memora.test", EmailVerified: "true",
			},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newTokenInfoServer(t, tc.status, tc.payload)
			verifier := NewGoogleTokenVerifier("client-id", srv.Client())
			verifier.endpoint = srv.URL

			_, err := verifier.Verify(context.Background(), "opaque-token")
			assert.ErrorIs(t, err, shared.ErrUnauthorized)
		})
	}
}
