package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity-provider claims the gateway consumes.
type Claims struct {
	jwt.RegisteredClaims

	PreferredUsername string   `json:"preferred_username"`
	Email             string   `json:"email"`
	Groups            []string `json:"groups"`
}

// Identity is the caller identity derived from a validated credential. It is
// never persisted independently of the credential it came from.
type Identity struct {
	Username string
	Email    string
	Groups   []string
}

// Identity extracts the identity fields from the claims.
func (c *Claims) Identity() Identity {
	return Identity{
		Username: c.PreferredUsername,
		Email:    c.Email,
		Groups:   c.Groups,
	}
}

// ExpiryThreshold is how close to expiry a credential may get before the
// lifecycle manager refreshes it.
const ExpiryThreshold = 300 * time.Second

// peekParser decodes without verifying. Kept distinct from the validating
// parser so the two trust levels cannot be conflated at a call site.
var peekParser = jwt.NewParser()

// PeekClaims parses the token's payload WITHOUT verifying its signature.
//
// The returned claims are untrusted: they are good enough for UX decisions
// (expiry countdowns, choosing which credential to refresh) and nothing
// else. Authorization must go through Validator.Validate.
func PeekClaims(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := peekParser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("unparseable token payload: %w", err)
	}
	return claims, nil
}

// CheckExpiry inspects the token's unverified expiry claim and reports
// whether it expires within ExpiryThreshold, along with the seconds left.
// A missing or unparseable token always reads as expiring now.
func CheckExpiry(raw string) (expiresSoon bool, secondsLeft int64) {
	if raw == "" {
		return true, 0
	}
	claims, err := PeekClaims(raw)
	if err != nil || claims.ExpiresAt == nil {
		return true, 0
	}

	secondsLeft = int64(time.Until(claims.ExpiresAt.Time).Seconds())
	return secondsLeft < int64(ExpiryThreshold.Seconds()), secondsLeft
}
