package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://idp.example.org/realms/research"
	testAudience = "gateway"
	testKeyID    = "test-key-1"
)

// issuerKeys is a signing key plus the JWKS endpoint publishing its public
// half, the way the identity provider would.
type issuerKeys struct {
	private *rsa.PrivateKey
	jwksURL string
}

func newIssuer(t *testing.T) *issuerKeys {
	t.Helper()

	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub, err := jwk.FromRaw(private.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, "RS256"))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	body, err := json.Marshal(set)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	return &issuerKeys{private: private, jwksURL: srv.URL}
}

// mint signs a token with the issuer's key, applying mutations to the claims
// first.
func (ik *issuerKeys) mint(t *testing.T, mutate ...func(jwt.MapClaims)) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss":                testIssuer,
		"aud":                testAudience,
		"exp":                time.Now().Add(time.Hour).Unix(),
		"preferred_username": "ada",
		"email":              "ada@example.org",
		"groups":             []string{"geophysics-team"},
	}
	for _, m := range mutate {
		m(claims)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKeyID
	raw, err := tok.SignedString(ik.private)
	require.NoError(t, err)
	return raw
}

func newTestValidator(t *testing.T, ik *issuerKeys) *Validator {
	t.Helper()
	v, err := NewValidator(context.Background(), ik.jwksURL, testIssuer, testAudience)
	require.NoError(t, err)
	return v
}

func TestValidateAcceptsGoodToken(t *testing.T) {
	ik := newIssuer(t)
	v := newTestValidator(t, ik)

	claims, err := v.Validate(context.Background(), ik.mint(t))
	require.NoError(t, err)
	assert.Equal(t, "ada", claims.PreferredUsername)
	assert.Equal(t, []string{"geophysics-team"}, claims.Groups)
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	ik := newIssuer(t)
	v := newTestValidator(t, ik)

	raw := ik.mint(t, func(c jwt.MapClaims) { c["iss"] = "https://elsewhere.example.org" })
	_, err := v.Validate(context.Background(), raw)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestValidateRejectsWrongAudience(t *testing.T) {
	ik := newIssuer(t)
	v := newTestValidator(t, ik)

	raw := ik.mint(t, func(c jwt.MapClaims) { c["aud"] = "some-other-client" })
	_, err := v.Validate(context.Background(), raw)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	ik := newIssuer(t)
	v := newTestValidator(t, ik)

	raw := ik.mint(t, func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Minute).Unix() })
	_, err := v.Validate(context.Background(), raw)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestValidateRejectsForeignKey(t *testing.T) {
	ik := newIssuer(t)
	forger := newIssuer(t)
	v := newTestValidator(t, ik)

	// Signed by somebody else's key under our kid.
	raw := forger.mint(t)
	_, err := v.Validate(context.Background(), raw)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestValidateRejectsUnsignedInput(t *testing.T) {
	ik := newIssuer(t)
	v := newTestValidator(t, ik)

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, err := v.Validate(context.Background(), raw)
		assert.True(t, errors.Is(err, ErrUnauthenticated), "input %q", raw)
	}
}

func TestValidateBearer(t *testing.T) {
	ik := newIssuer(t)
	v := newTestValidator(t, ik)

	claims, err := v.ValidateBearer(context.Background(), "Bearer "+ik.mint(t))
	require.NoError(t, err)
	assert.Equal(t, "ada", claims.PreferredUsername)

	_, err = v.ValidateBearer(context.Background(), ik.mint(t))
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestValidateFailsClosedWhenKeySetUnreachable(t *testing.T) {
	ik := newIssuer(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	v, err := NewValidator(context.Background(), srv.URL, testIssuer, testAudience)
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), ik.mint(t))
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
}
