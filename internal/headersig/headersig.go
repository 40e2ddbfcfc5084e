// Package headersig implements the signed-header assertion the gateway hands
// to the downstream application. The assertion binds a username, a project
// and a timestamp under a shared HMAC secret so the downstream can trust
// identity headers without seeing the upstream credential.
package headersig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Assertion is one signed identity statement. The signature covers every
// other field, joined in a fixed order; both parties must derive the exact
// same byte string or verification fails.
type Assertion struct {
	Username  string
	Project   string
	Audience  string
	Timestamp int64
	Signature string
}

var (
	// ErrBadSignature is returned when the signature does not match.
	ErrBadSignature = errors.New("signature mismatch")
	// ErrExpired is returned when the timestamp is outside the replay window.
	ErrExpired = errors.New("assertion outside replay window")
)

// Signer produces and verifies assertions under a shared secret.
type Signer struct {
	secret   []byte
	audience string
	ttl      time.Duration
}

// NewSigner creates a signer. audience names the downstream consumer and is
// baked into every assertion; ttl is the replay window applied on
// verification.
func NewSigner(secret, audience string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), audience: audience, ttl: ttl}
}

// payload is the canonical byte string the HMAC covers. The separator may
// not appear in usernames or project names, which the upstream provider and
// resource naming rules already guarantee.
func payload(username, project, audience string, ts int64) string {
	return username + "|" + project + "|" + audience + "|" + strconv.FormatInt(ts, 10)
}

func (s *Signer) signature(username, project string, ts int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload(username, project, s.audience, ts)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign issues an assertion for the given identity, timestamped now.
func (s *Signer) Sign(username, project string) Assertion {
	return s.SignAt(username, project, time.Now().Unix())
}

// SignAt issues an assertion with an explicit timestamp.
func (s *Signer) SignAt(username, project string, ts int64) Assertion {
	return Assertion{
		Username:  username,
		Project:   project,
		Audience:  s.audience,
		Timestamp: ts,
		Signature: s.signature(username, project, ts),
	}
}

// Verify checks an assertion against the shared secret and the replay
// window. The timestamp may sit up to the full window on either side of the
// verifier's clock; exactly the window passes, one second beyond fails.
func (s *Signer) Verify(a Assertion) error {
	return s.VerifyAt(a, time.Now().Unix())
}

// VerifyAt verifies against an explicit clock reading.
func (s *Signer) VerifyAt(a Assertion, now int64) error {
	if a.Audience != s.audience {
		return fmt.Errorf("%w: audience %q", ErrBadSignature, a.Audience)
	}

	skew := now - a.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(s.ttl.Seconds()) {
		return fmt.Errorf("%w: %ds old", ErrExpired, skew)
	}

	want := s.signature(a.Username, a.Project, a.Timestamp)
	if !hmac.Equal([]byte(want), []byte(a.Signature)) {
		return ErrBadSignature
	}
	return nil
}

// ScopedUsername derives the downstream account name from an identity and a
// project. The downstream provisions one account per (user, project) pair.
func ScopedUsername(username, project string) string {
	if project == "" {
		return username
	}
	return fmt.Sprintf("%s-%s", username, project)
}
