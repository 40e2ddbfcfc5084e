package config

import "os"

// GetDefaultConfig returns the default configuration for tregate.
// Secrets are expected from the environment or config.yaml; everything else
// has a working in-cluster default.
func GetDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		IdentityProvider: IdentityProviderConfig{
			ExternalURL:    "https://keycloak.dev.tre.internal",
			InternalURL:    "http://keycloak.keycloak",
			Realm:          "tre-app",
			ClientID:       "tregate",
			TimeoutSeconds: 30,
		},
		Session: SessionConfig{
			RedisAddr:  "localhost:6379",
			CookieName: "tregate-session",
			TTLHours:   48,
		},
		Cookies: CookieConfig{
			ProjectCookie:      "tregate-project",
			TokenCookiePrefix:  "tregate-auth-token",
			TokenMaxAgeSeconds: 3600,
		},
		Signing: SigningConfig{
			TTLSeconds: 60,
			Audience:   "jupyterhub",
		},
		Kubernetes: KubernetesConfig{
			Namespace:        "default",
			DesktopNamespace: "desktops",
		},
		Static: StaticConfig{
			Enabled: true,
			Prefixes: []string{
				"/hub/static/",
				"/static/",
				"/favicon.ico",
				"/hub/favicon.ico",
				"/hub/logo",
			},
			Extensions: []string{
				".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".ico",
				".svg", ".woff", ".woff2", ".ttf", ".eot", ".map", ".json",
				".webp", ".avif", ".webm", ".mp4",
			},
			Patterns: []string{
				`^/desktop/api/.*`,
				`^/desktop/assets/.*`,
				`^/desktop/translations/.*`,
				`^/desktop/fonts/.*`,
				`^/desktop/images/.*`,
				`^/desktop/.*\.(js|css|png|svg|woff2?|ico|ttf|map)$`,
			},
		},
		Downstream: DownstreamConfig{
			HubPrefixes:    []string{"/hub", "/user/"},
			TunnelPrefixes: []string{"/desktop/tunnel", "/desktop/websocket-tunnel"},
		},
	}
}

// ApplyEnvOverrides overlays secret material from the environment. Secrets
// live in env vars (mounted from kubernetes secrets), not in config.yaml.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TREGATE_CLIENT_SECRET"); v != "" {
		c.IdentityProvider.ClientSecret = v
	}
	if v := os.Getenv("TREGATE_SIGNING_SECRET"); v != "" {
		c.Signing.Secret = v
	}
	if v := os.Getenv("TREGATE_REDIS_ADDR"); v != "" {
		c.Session.RedisAddr = v
	}
	if v := os.Getenv("TREGATE_REDIS_PASSWORD"); v != "" {
		c.Session.RedisPassword = v
	}
}
