package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tregate/pkg/logging"
)

func init() {
	logging.InitForTests()
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "tregate-session", cfg.Session.CookieName)
	assert.Equal(t, "jupyterhub", cfg.Signing.Audience)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Setenv("TREGATE_SIGNING_SECRET", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
identityProvider:
  externalURL: https://idp.example.org
  internalURL: http://idp.idp
  realm: research
  clientID: gateway
signing:
  secret: test-secret
cookies:
  tokenMaxAgeSeconds: 600
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://idp.example.org/realms/research", cfg.IdentityProvider.Issuer())
	assert.Equal(t, "http://idp.idp/realms/research/protocol/openid-connect/token", cfg.IdentityProvider.TokenURL())
	assert.Equal(t, 600, cfg.Cookies.TokenMaxAgeSeconds)
	// Unset fields keep their defaults.
	assert.Equal(t, "tregate-project", cfg.Cookies.ProjectCookie)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
identityProvider:
  externalURL: https://idp.example.org
  internalURL: http://idp.idp
  clientID: gateway
`), 0o600))
	t.Setenv("TREGATE_SIGNING_SECRET", "")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing.secret")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TREGATE_CLIENT_SECRET", "from-env")
	t.Setenv("TREGATE_SIGNING_SECRET", "sig-from-env")
	t.Setenv("TREGATE_REDIS_ADDR", "redis.internal:6379")

	cfg := GetDefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "from-env", cfg.IdentityProvider.ClientSecret)
	assert.Equal(t, "sig-from-env", cfg.Signing.Secret)
	assert.Equal(t, "redis.internal:6379", cfg.Session.RedisAddr)
}

func TestTokenCookieName(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "tregate-auth-token-geo", cfg.Cookies.TokenCookieName("geo"))
	assert.Equal(t, "tregate-auth-token", cfg.Cookies.TokenCookieName(""))
}
