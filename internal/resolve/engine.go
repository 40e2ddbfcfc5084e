// Package resolve walks an ordered list of credential sources for an inbound
// request and produces the first structurally present candidate. The result
// is only a syntactic match: cryptographic validation is the token
// validator's job.
package resolve

import (
	"net/url"
	"strings"

	"tregate/internal/config"
	"tregate/internal/session"
	"tregate/internal/token"
	"tregate/pkg/logging"
)

// Source identifies where a candidate credential or project came from.
type Source string

const (
	SourceQuery       Source = "query"
	SourceLoginNext   Source = "login-next"
	SourceBearer      Source = "bearer"
	SourceProxyHeader Source = "proxy-header"
	SourceCookie      Source = "cookie"
	SourceSession     Source = "session"
	SourceReferer     Source = "referer"
)

// Trusted proxy headers carrying pre-resolved values. Set by the reverse
// proxy layer in front of the gateway; the token variant is re-validated
// downstream, never blindly trusted.
const (
	HeaderTokenCookie   = "X-Auth-Token-Cookie"
	HeaderProjectCookie = "X-Project-Cookie"
)

// Outcome classifies what one resolution step produced.
type Outcome int

const (
	// NotFound means the source carried no candidate at all.
	NotFound Outcome = iota
	// Invalid means the source carried something, but it was structurally
	// unusable (unparseable token payload). Resolution continues.
	Invalid
	// Found means the source produced a usable candidate.
	Found
)

// Step records one source's contribution, kept for logging and tests.
type Step struct {
	Source  Source
	Outcome Outcome
}

// Result is the resolution outcome for one request.
type Result struct {
	// Static is set when the path matched the static-asset allowlist; the
	// request is permitted with no credential.
	Static bool

	// Tunnel is set when the path is a remote-desktop tunnel endpoint whose
	// authentication is owned elsewhere; credential resolution was skipped.
	Tunnel bool

	Token   string
	Project string

	// TokenSource names the step that produced the token, when one did.
	TokenSource Source

	// Steps is the per-source trace in precedence order.
	Steps []Step
}

// HasToken reports whether resolution produced a candidate credential.
func (r Result) HasToken() bool { return r.Token != "" }

// Engine resolves credentials from a fixed-precedence list of sources.
type Engine struct {
	allowlist  *config.Allowlist
	cookies    config.CookieConfig
	downstream config.DownstreamConfig
}

// NewEngine creates a resolution engine. allowlist may be nil when static
// short-circuiting is disabled.
func NewEngine(allowlist *config.Allowlist, cookies config.CookieConfig, downstream config.DownstreamConfig) *Engine {
	return &Engine{allowlist: allowlist, cookies: cookies, downstream: downstream}
}

// Protected reports whether the path belongs to the protected namespace:
// paths that hard-fail without both a credential and a project.
func (e *Engine) Protected(path string) bool {
	for _, prefix := range e.downstream.HubPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// tunnel reports whether the path is a remote-desktop tunnel endpoint.
func (e *Engine) tunnel(path string) bool {
	for _, prefix := range e.downstream.TunnelPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// structurallyValid reports whether a candidate token has a decodable
// payload. Parsing errors are swallowed here: a garbage cookie is "invalid,
// keep looking", never a request failure.
func structurallyValid(raw string) bool {
	if raw == "" {
		return false
	}
	_, err := token.PeekClaims(raw)
	return err == nil
}

// Resolve walks the precedence order and returns the first structurally
// present credential and project. sess may be nil when the request carries
// no session cookie.
func (e *Engine) Resolve(d *Description, sess *session.Session) Result {
	res := Result{}

	// 1. Static assets are allowlisted wholesale.
	if e.allowlist != nil && e.allowlist.Matches(d.URL.String()) {
		res.Static = true
		return res
	}

	// 2. Tunnel endpoints authenticate elsewhere.
	if e.tunnel(d.Path()) {
		res.Tunnel = true
		return res
	}

	type step struct {
		source Source
		run    func() (tok, project string, outcome Outcome)
	}

	steps := []step{
		{SourceQuery, func() (string, string, Outcome) { return e.fromQuery(d) }},
		{SourceLoginNext, func() (string, string, Outcome) { return e.fromLoginNext(d) }},
		{SourceBearer, func() (string, string, Outcome) { return e.fromBearer(d) }},
		{SourceProxyHeader, func() (string, string, Outcome) { return e.fromProxyHeaders(d) }},
		{SourceCookie, func() (string, string, Outcome) { return e.fromCookies(d) }},
		{SourceSession, func() (string, string, Outcome) { return e.fromSession(d, sess) }},
		{SourceReferer, func() (string, string, Outcome) { return e.fromReferer(d) }},
	}

	for _, s := range steps {
		tok, project, outcome := s.run()
		res.Steps = append(res.Steps, Step{Source: s.source, Outcome: outcome})

		if res.Project == "" && project != "" {
			res.Project = project
		}
		if res.Token == "" && tok != "" {
			res.Token = tok
			res.TokenSource = s.source
		}
		if res.Token != "" && res.Project != "" {
			break
		}
	}

	if res.Token != "" {
		logging.Debug("Resolve", "Credential for %s resolved from %s (project %q)", d.Path(), res.TokenSource, res.Project)
	}
	return res
}

// fromQuery reads ?token= and ?project= off the original URL. The project
// falls back to the plain project cookie so a bare ?token= link still lands
// in the caller's current project.
func (e *Engine) fromQuery(d *Description) (string, string, Outcome) {
	tok := d.Query("token")
	project := d.Query("project")
	if project == "" {
		project = d.Cookie(e.cookies.ProjectCookie)
	}

	switch {
	case tok == "":
		return "", project, NotFound
	case !structurallyValid(tok):
		return "", project, Invalid
	default:
		return tok, project, Found
	}
}

// fromLoginNext handles the login entry point: /hub/login?next=<url> where
// the nested URL is a same-host hub or user path carrying its own token and
// project parameters.
func (e *Engine) fromLoginNext(d *Description) (string, string, Outcome) {
	if !strings.HasPrefix(d.Path(), "/hub/login") {
		return "", "", NotFound
	}
	next := d.Query("next")
	if next == "" {
		return "", "", NotFound
	}

	nested, err := url.Parse(next)
	if err != nil {
		return "", "", Invalid
	}
	if !d.SameHost(nested) || !e.hubOrUserPath(nested.Path) {
		return "", "", NotFound
	}

	q := nested.Query()
	tok := q.Get("token")
	project := q.Get("project")

	switch {
	case tok == "":
		return "", project, NotFound
	case !structurallyValid(tok):
		return "", project, Invalid
	default:
		return tok, project, Found
	}
}

func (e *Engine) hubOrUserPath(path string) bool {
	return strings.HasPrefix(path, "/hub") || strings.HasPrefix(path, "/user/")
}

func (e *Engine) fromBearer(d *Description) (string, string, Outcome) {
	auth := d.Header.Get("Authorization")
	if auth == "" {
		return "", "", NotFound
	}
	tok, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || !structurallyValid(tok) {
		return "", "", Invalid
	}
	return tok, "", Found
}

// fromProxyHeaders reads the trusted internal headers a reverse proxy layer
// sets after its own cookie handling. The token is re-validated like any
// other candidate.
func (e *Engine) fromProxyHeaders(d *Description) (string, string, Outcome) {
	tok := d.Header.Get(HeaderTokenCookie)
	project := d.Header.Get(HeaderProjectCookie)

	switch {
	case tok == "" && project == "":
		return "", "", NotFound
	case tok == "":
		return "", project, NotFound
	case !structurallyValid(tok):
		return "", project, Invalid
	default:
		return tok, project, Found
	}
}

// fromCookies reads the plain project cookie, then the project-scoped
// credential cookie, falling back to the legacy unscoped credential cookie.
func (e *Engine) fromCookies(d *Description) (string, string, Outcome) {
	project := d.Cookie(e.cookies.ProjectCookie)

	tok := ""
	if project != "" {
		tok = d.Cookie(e.cookies.TokenCookieName(project))
	}
	if tok == "" {
		tok = d.Cookie(e.cookies.TokenCookieName(""))
	}

	switch {
	case tok == "":
		return "", project, NotFound
	case !structurallyValid(tok):
		return "", project, Invalid
	default:
		return tok, project, Found
	}
}

// fromSession reads the project-scoped credential stored in the session,
// falling back to the session's global credential.
func (e *Engine) fromSession(d *Description, sess *session.Session) (string, string, Outcome) {
	if sess == nil {
		return "", "", NotFound
	}
	project := sess.CurrentProject
	lookup := d.Query("project")
	if lookup == "" {
		lookup = d.Cookie(e.cookies.ProjectCookie)
	}
	if lookup == "" {
		lookup = project
	}

	tok := sess.CredentialFor(lookup)
	if tok == "" {
		return "", project, NotFound
	}
	return tok, project, Found
}

// fromReferer is the lowest-trust last resort: token and project embedded in
// the Referer URL's query string.
func (e *Engine) fromReferer(d *Description) (string, string, Outcome) {
	ref := d.Header.Get("Referer")
	if ref == "" {
		return "", "", NotFound
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", Invalid
	}

	q := u.Query()
	tok := q.Get("token")
	project := q.Get("project")

	switch {
	case tok == "" && project == "":
		return "", "", NotFound
	case tok == "":
		return "", project, Found
	case !structurallyValid(tok):
		return "", project, Invalid
	default:
		return tok, project, Found
	}
}
