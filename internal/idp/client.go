package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"tregate/internal/config"
	"tregate/pkg/logging"

	"golang.org/x/oauth2"
)

// ErrUpstreamUnavailable is returned when the identity provider cannot be
// reached or answers with a server error. Callers must fail closed.
var ErrUpstreamUnavailable = errors.New("identity provider unavailable")

// ErrRefreshRejected is returned when the provider rejected the refresh
// grant (revoked or expired refresh token). The caller must push the user to
// re-authentication, never retry.
var ErrRefreshRejected = errors.New("refresh grant rejected")

// Client talks to the identity provider's token, revocation and userinfo
// endpoints. All calls carry a bounded timeout from the configuration.
type Client struct {
	oauthCfg    oauth2.Config
	revokeURL   string
	userinfoURL string
	httpClient  *http.Client
}

// NewClient creates an identity provider client from configuration.
func NewClient(cfg config.IdentityProviderConfig) *Client {
	return &Client{
		oauthCfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		revokeURL:   cfg.RevokeURL(),
		userinfoURL: cfg.UserinfoURL(),
		httpClient:  &http.Client{Timeout: cfg.Timeout()},
	}
}

// Refresh exchanges a refresh token for a new credential pair. The provider
// may rotate the refresh token; when it does not, the old one is returned so
// the caller always stores a complete pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (access, newRefresh string, err error) {
	if refreshToken == "" {
		return "", "", fmt.Errorf("%w: no refresh token", ErrRefreshRejected)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	src := c.oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			logging.Warn("IdP", "Token refresh rejected: %s", retrieveErr.ErrorDescription)
			return "", "", fmt.Errorf("%w: %s", ErrRefreshRejected, retrieveErr.ErrorCode)
		}
		logging.Error("IdP", err, "Token endpoint unreachable")
		return "", "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	newRefresh = tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	return tok.AccessToken, newRefresh, nil
}

// Revoke invalidates a token at the provider. Revocation is best-effort
// cleanup: failures are logged and swallowed, since the token expires on its
// own anyway.
func (c *Client) Revoke(ctx context.Context, tok, tokenTypeHint string) {
	if tok == "" {
		return
	}

	form := url.Values{
		"token":           {tok},
		"token_type_hint": {tokenTypeHint},
		"client_id":       {c.oauthCfg.ClientID},
		"client_secret":   {c.oauthCfg.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		logging.Warn("IdP", "Failed to build revocation request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Warn("IdP", "Token revocation failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		logging.Warn("IdP", "Token revocation answered %d", resp.StatusCode)
	}
}

// UserInfo fetches the userinfo record for an access token.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userinfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("userinfo answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("malformed userinfo response: %w", err)
	}
	return info, nil
}
