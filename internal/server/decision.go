package server

import (
	"context"
	"strings"

	"tregate/internal/authz"
	"tregate/internal/resolve"
	"tregate/internal/token"
	"tregate/pkg/logging"
)

// State is the terminal state of one decision. The evaluator walks the
// stages in a fixed order (resolution, validation, authorization) and stops
// at the first terminal state; no stage is retried.
type State int

const (
	// StateStaticOK permits an allowlisted static asset with no credential.
	StateStaticOK State = iota
	// StateAnonymousOK permits an unprotected path that resolved no
	// credential; authorization is the target's own problem.
	StateAnonymousOK
	// StateNoCredential rejects a protected path that resolved no credential
	// or no project.
	StateNoCredential
	// StateInvalidCredential rejects a credential that failed validation.
	StateInvalidCredential
	// StateUnauthorizedProject rejects a valid identity that no group grants
	// the requested project.
	StateUnauthorizedProject
	// StateAuthorized permits the request and carries the identity to
	// forward downstream.
	StateAuthorized
)

func (s State) String() string {
	switch s {
	case StateStaticOK:
		return "static-ok"
	case StateAnonymousOK:
		return "anonymous-ok"
	case StateNoCredential:
		return "no-credential"
	case StateInvalidCredential:
		return "invalid-credential"
	case StateUnauthorizedProject:
		return "unauthorized-project"
	case StateAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// Decision is the evaluator's outcome for one request.
type Decision struct {
	State    State
	Identity token.Identity
	Project  string
	Token    string

	// Protected marks paths that receive the signed assertion headers.
	Protected bool
}

// validator is the slice of the token validator the evaluator needs.
type validator interface {
	Validate(ctx context.Context, raw string) (*token.Claims, error)
}

// desktopPinner reads the desktop pinning recorded on the session, when a
// session accompanies the request.
type desktopPinner interface {
	DesktopDenies(project string) bool
	DesktopPinned() bool
}

// evaluator runs the decision stages for /auth/validate.
type evaluator struct {
	engine       *resolve.Engine
	validator    validator
	authorizer   *authz.Authorizer
	launchPrefix string
}

// decide evaluates one described request. pinner may be nil when the request
// carries no session.
func (e *evaluator) decide(ctx context.Context, d *resolve.Description, res resolve.Result, pinner desktopPinner) Decision {
	protected := e.engine.Protected(d.Path())

	if res.Static {
		return Decision{State: StateStaticOK}
	}
	if res.Tunnel {
		// Tunnel traffic authenticates against the desktop gateway's own
		// mechanism; nothing to decide here.
		return Decision{State: StateAnonymousOK}
	}

	if !res.HasToken() {
		if protected {
			logging.Info("Decision", "Protected path %s without credential", d.Path())
			return Decision{State: StateNoCredential, Protected: true}
		}
		return Decision{State: StateAnonymousOK}
	}

	claims, err := e.validator.Validate(ctx, res.Token)
	if err != nil {
		logging.Info("Decision", "Credential from %s rejected: %v", res.TokenSource, err)
		return Decision{State: StateInvalidCredential, Protected: protected}
	}
	identity := claims.Identity()

	if protected && res.Project == "" {
		logging.Info("Decision", "Protected path %s for %s without project", d.Path(), identity.Username)
		return Decision{State: StateNoCredential, Identity: identity, Protected: true}
	}

	// A session pinned to a desktop stays inside that desktop's project, and
	// may not launch another desktop from within one.
	if pinner != nil {
		if res.Project != "" && pinner.DesktopDenies(res.Project) {
			logging.Warn("Decision", "Desktop-pinned session for %s denied project %q", identity.Username, res.Project)
			return Decision{State: StateUnauthorizedProject, Identity: identity, Project: res.Project, Protected: protected}
		}
		if e.launchPrefix != "" && strings.HasPrefix(d.Path(), e.launchPrefix) && pinner.DesktopPinned() {
			logging.Warn("Decision", "Desktop-pinned session for %s denied desktop launch", identity.Username)
			return Decision{State: StateUnauthorizedProject, Identity: identity, Project: res.Project, Protected: protected}
		}
	}

	if res.Project != "" && !e.authorizer.Authorized(ctx, identity.Username, res.Project) {
		return Decision{State: StateUnauthorizedProject, Identity: identity, Project: res.Project, Protected: protected}
	}

	return Decision{
		State:     StateAuthorized,
		Identity:  identity,
		Project:   res.Project,
		Token:     res.Token,
		Protected: protected,
	}
}
