package config

import (
	"fmt"
	"time"
)

// Config is the top-level configuration structure for tregate.
type Config struct {
	Server           ServerConfig           `yaml:"server"`
	IdentityProvider IdentityProviderConfig `yaml:"identityProvider"`
	Session          SessionConfig          `yaml:"session"`
	Cookies          CookieConfig           `yaml:"cookies"`
	Signing          SigningConfig          `yaml:"signing"`
	Kubernetes       KubernetesConfig       `yaml:"kubernetes"`
	Static           StaticConfig           `yaml:"static"`
	Downstream       DownstreamConfig       `yaml:"downstream"`
}

// ServerConfig defines the HTTP listener for the decision endpoint.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"` // Host to bind to (default: 0.0.0.0)
	Port int    `yaml:"port,omitempty"` // Listen port (default: 8080)
}

// Address returns the host:port the server binds to.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IdentityProviderConfig describes the OIDC identity provider the gateway
// consumes tokens from. The provider is reached on two hostnames: ExternalURL
// is the issuer browsers see (and the value baked into token `iss` claims),
// InternalURL is the in-cluster address used for server-to-server calls.
type IdentityProviderConfig struct {
	ExternalURL    string `yaml:"externalURL"`
	InternalURL    string `yaml:"internalURL"`
	Realm          string `yaml:"realm"`
	ClientID       string `yaml:"clientID"`
	ClientSecret   string `yaml:"clientSecret,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"` // Bound on every provider call (default: 30)
}

// Issuer returns the expected `iss` claim value for tokens from this provider.
func (c IdentityProviderConfig) Issuer() string {
	return fmt.Sprintf("%s/realms/%s", c.ExternalURL, c.Realm)
}

func (c IdentityProviderConfig) internalBase() string {
	return fmt.Sprintf("%s/realms/%s", c.InternalURL, c.Realm)
}

// TokenURL returns the in-cluster token endpoint (refresh grant).
func (c IdentityProviderConfig) TokenURL() string {
	return c.internalBase() + "/protocol/openid-connect/token"
}

// RevokeURL returns the in-cluster token revocation endpoint.
func (c IdentityProviderConfig) RevokeURL() string {
	return c.internalBase() + "/protocol/openid-connect/revoke"
}

// UserinfoURL returns the in-cluster userinfo endpoint.
func (c IdentityProviderConfig) UserinfoURL() string {
	return c.internalBase() + "/protocol/openid-connect/userinfo"
}

// JWKSURL returns the in-cluster public key set endpoint.
func (c IdentityProviderConfig) JWKSURL() string {
	return c.internalBase() + "/protocol/openid-connect/certs"
}

// Timeout returns the bounded timeout applied to identity provider calls.
func (c IdentityProviderConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SessionConfig defines the process-external session store.
type SessionConfig struct {
	RedisAddr     string `yaml:"redisAddr,omitempty"`     // Redis address (default: localhost:6379)
	RedisPassword string `yaml:"redisPassword,omitempty"` // Redis AUTH password, if any
	RedisDB       int    `yaml:"redisDB,omitempty"`       // Redis database number
	CookieName    string `yaml:"cookieName,omitempty"`    // Session id cookie (default: tregate-session)
	TTLHours      int    `yaml:"ttlHours,omitempty"`      // Session lifetime (default: 48h)
}

// TTL returns the session lifetime.
func (s SessionConfig) TTL() time.Duration {
	if s.TTLHours <= 0 {
		return 48 * time.Hour
	}
	return time.Duration(s.TTLHours) * time.Hour
}

// CookieConfig defines the client-visible cookie conventions.
type CookieConfig struct {
	Domain             string `yaml:"domain,omitempty"`             // Cookie domain shared across app hosts
	ProjectCookie      string `yaml:"projectCookie,omitempty"`      // Plain project cookie (default: tregate-project)
	TokenCookiePrefix  string `yaml:"tokenCookiePrefix,omitempty"`  // Project token cookie prefix (default: tregate-auth-token)
	TokenMaxAgeSeconds int    `yaml:"tokenMaxAgeSeconds,omitempty"` // Token cookie max-age (default: 3600)
}

// TokenCookieName returns the http-only cookie name carrying the credential
// scoped to the given project. With an empty project it returns the legacy
// unscoped cookie name kept for backward compatibility.
func (c CookieConfig) TokenCookieName(project string) string {
	if project == "" {
		return c.TokenCookiePrefix
	}
	return c.TokenCookiePrefix + "-" + project
}

// SigningConfig defines the trusted-header assertion protocol shared with the
// downstream application.
type SigningConfig struct {
	Secret     string `yaml:"secret"`
	TTLSeconds int    `yaml:"ttlSeconds,omitempty"` // Replay window (default: 60)
	Audience   string `yaml:"audience,omitempty"`   // Downstream name (default: jupyterhub)
}

// TTL returns the assertion replay window.
func (s SigningConfig) TTL() time.Duration {
	if s.TTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.TTLSeconds) * time.Second
}

// KubernetesConfig locates the resource graph and desktop instances.
type KubernetesConfig struct {
	Namespace        string `yaml:"namespace,omitempty"`        // Namespace of User/Group/Project records (default: default)
	DesktopNamespace string `yaml:"desktopNamespace,omitempty"` // Namespace of DesktopInstances (default: desktops)
}

// StaticConfig is the allowlist of unauthenticated static asset paths.
type StaticConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Prefixes   []string `yaml:"prefixes,omitempty"`   // Literal path prefixes ("/hub/static/")
	Extensions []string `yaml:"extensions,omitempty"` // File extensions (".css", ".woff2")
	Patterns   []string `yaml:"patterns,omitempty"`   // Regex allowlist, anchored by the author
	File       string   `yaml:"file,omitempty"`       // Optional yaml file watched for live reload
}

// DownstreamConfig names the path namespaces with special decision rules.
type DownstreamConfig struct {
	// HubPrefixes is the protected namespace: requests under these prefixes
	// hard-fail without a credential and a project, and receive the signed
	// assertion headers on success.
	HubPrefixes []string `yaml:"hubPrefixes,omitempty"`

	// TunnelPrefixes are remote-desktop tunnel endpoints whose
	// authentication is owned by the desktop gateway; credential resolution
	// is skipped for them.
	TunnelPrefixes []string `yaml:"tunnelPrefixes,omitempty"`
}
