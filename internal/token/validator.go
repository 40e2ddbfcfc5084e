package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tregate/pkg/logging"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// ErrUnauthenticated is returned for any credential that fails validation:
// missing, malformed, bad signature, wrong issuer or audience, or expired.
// Callers translate it to a 401; the detail stays in the logs.
var ErrUnauthenticated = errors.New("invalid or missing credential")

// ErrUpstreamUnavailable is returned when the identity provider's key set
// cannot be fetched. Validation fails closed in that case.
var ErrUpstreamUnavailable = errors.New("identity provider unavailable")

// Validator verifies credentials against the identity provider's public key
// set. It is stateless apart from the key cache: validation is a pure
// function of (token, keyset, expected issuer, expected audience).
type Validator struct {
	cache    *jwk.Cache
	jwksURL  string
	issuer   string
	audience string
}

// NewValidator creates a Validator fetching keys from jwksURL. The key set
// is cached and refreshed by key id in the background; correctness does not
// depend on the cache, only latency does.
func NewValidator(ctx context.Context, jwksURL, issuer, audience string) (*Validator, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS endpoint %s: %w", jwksURL, err)
	}

	return &Validator{
		cache:    cache,
		jwksURL:  jwksURL,
		issuer:   issuer,
		audience: audience,
	}, nil
}

// ValidateBearer validates an Authorization header value of the form
// "Bearer <token>".
func (v *Validator) ValidateBearer(ctx context.Context, authHeader string) (*Claims, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return nil, fmt.Errorf("%w: missing bearer prefix", ErrUnauthenticated)
	}
	return v.Validate(ctx, strings.TrimPrefix(authHeader, prefix))
}

// Validate verifies the token's signature against the provider's key set and
// checks issuer, audience and expiry. The returned claims are trusted.
func (v *Validator) Validate(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthenticated)
	}

	keySet, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		logging.Error("TokenValidator", err, "Failed to fetch key set from %s", v.jwksURL)
		return nil, fmt.Errorf("%w: key set fetch failed", ErrUpstreamUnavailable)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	_, err = parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no key id")
		}
		key, found := keySet.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("no key %q in provider key set", kid)
		}
		var pubKey interface{}
		if err := key.Raw(&pubKey); err != nil {
			return nil, fmt.Errorf("failed to materialize key %q: %w", kid, err)
		}
		return pubKey, nil
	})
	if err != nil {
		logging.Debug("TokenValidator", "Token verification failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	return claims, nil
}
