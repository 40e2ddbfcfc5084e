package idp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tregate/internal/config"
	"tregate/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logging.InitForTests()
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.IdentityProviderConfig{
		ExternalURL:    srv.URL,
		InternalURL:    srv.URL,
		Realm:          "research",
		ClientID:       "gateway",
		ClientSecret:   "s3cret",
		TimeoutSeconds: 5,
	}
	return NewClient(cfg), srv
}

func TestRefreshRotatesCredentialPair(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/research/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
		assert.Equal(t, "gateway", r.Form.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","token_type":"Bearer","expires_in":300}`))
	})

	client, _ := newTestClient(t, mux)

	access, refresh, err := client.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", access)
	assert.Equal(t, "new-refresh", refresh)
}

func TestRefreshKeepsOldRefreshTokenWhenNotRotated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/research/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","token_type":"Bearer","expires_in":300}`))
	})

	client, _ := newTestClient(t, mux)

	_, refresh, err := client.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "old-refresh", refresh)
}

func TestRefreshRejectedIsTerminal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/research/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Session not active"}`))
	})

	client, _ := newTestClient(t, mux)

	_, _, err := client.Refresh(context.Background(), "stale")
	assert.True(t, errors.Is(err, ErrRefreshRejected))
}

func TestRefreshWithoutTokenFailsFast(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())

	_, _, err := client.Refresh(context.Background(), "")
	assert.True(t, errors.Is(err, ErrRefreshRejected))
}

func TestRefreshUnreachableProviderFailsClosed(t *testing.T) {
	client, srv := newTestClient(t, http.NewServeMux())
	srv.Close()

	_, _, err := client.Refresh(context.Background(), "anything")
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
}

func TestUserInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/research/protocol/openid-connect/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"preferred_username":"ada","email":"ada@example.org"}`))
	})

	client, _ := newTestClient(t, mux)

	info, err := client.UserInfo(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "ada", info["preferred_username"])
}

func TestRevokeSwallowsErrors(t *testing.T) {
	called := false
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/research/protocol/openid-connect/revoke", func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client, _ := newTestClient(t, mux)

	client.Revoke(context.Background(), "tok", "refresh_token")
	assert.True(t, called)
}
