// Package server is the HTTP surface of the gateway: the forward-auth
// decision endpoint consumed by the ingress, plus the session, context and
// profile endpoints consumed by the portal and the downstream hub.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tregate/internal/authz"
	"tregate/internal/config"
	"tregate/internal/desktop"
	"tregate/internal/graph"
	"tregate/internal/headersig"
	"tregate/internal/idp"
	"tregate/internal/resolve"
	"tregate/internal/session"
	"tregate/internal/token"
	"tregate/pkg/logging"
)

const (
	// DefaultReadHeaderTimeout bounds header reads on inbound connections.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultWriteTimeout bounds response writes.
	DefaultWriteTimeout = 30 * time.Second
	// DefaultIdleTimeout bounds keepalive connections.
	DefaultIdleTimeout = 120 * time.Second

	// desktopLaunchPrefix is the path that provisions a new remote desktop.
	// Desktop-pinned sessions may not reach it.
	desktopLaunchPrefix = "/desktop/new"
)

// Server serves the gateway's HTTP endpoints.
type Server struct {
	cfg        config.Config
	engine     *resolve.Engine
	eval       *evaluator
	validator  *token.Validator
	lifecycle  *token.Lifecycle
	authorizer *authz.Authorizer
	graph      *graph.Client
	guard      *desktop.Guard
	idp        *idp.Client
	signer     *headersig.Signer
	store      session.Store
	registry   *session.Registry
	httpServer *http.Server
}

// Deps carries the wired components the server serves.
type Deps struct {
	Config     config.Config
	Allowlist  *config.Allowlist
	Validator  *token.Validator
	Lifecycle  *token.Lifecycle
	Authorizer *authz.Authorizer
	Graph      *graph.Client
	Guard      *desktop.Guard
	IdP        *idp.Client
	Store      session.Store
	Registry   *session.Registry
}

// New assembles the server and its routes.
func New(deps Deps) *Server {
	engine := resolve.NewEngine(deps.Allowlist, deps.Config.Cookies, deps.Config.Downstream)

	s := &Server{
		cfg:    deps.Config,
		engine: engine,
		eval: &evaluator{
			engine:       engine,
			validator:    deps.Validator,
			authorizer:   deps.Authorizer,
			launchPrefix: desktopLaunchPrefix,
		},
		validator:  deps.Validator,
		lifecycle:  deps.Lifecycle,
		authorizer: deps.Authorizer,
		graph:      deps.Graph,
		guard:      deps.Guard,
		idp:        deps.IdP,
		signer:     headersig.NewSigner(deps.Config.Signing.Secret, deps.Config.Signing.Audience, deps.Config.Signing.TTL()),
		store:      deps.Store,
		registry:   deps.Registry,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/validate", s.handleValidate)
	mux.HandleFunc("GET /auth/sso", s.handleSSO)
	mux.HandleFunc("GET /api/context", s.handleContext)
	mux.HandleFunc("POST /api/cleanup-session", s.handleCleanupSession)
	mux.HandleFunc("GET /internal/projects/{project}/profiles", s.handleProfiles)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:              deps.Config.Server.Address(),
		Handler:           mux,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	return s
}

// Handler exposes the route table. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logging.Info("Server", "Listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// loadSession fetches the session referenced by the session cookie, or nil
// when the request carries none (or the store no longer has it).
func (s *Server) loadSession(r *http.Request) *session.Session {
	c, err := r.Cookie(s.cfg.Session.CookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	sess, err := s.store.Get(r.Context(), c.Value)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			logging.Error("Server", err, "Session lookup failed")
		}
		return nil
	}
	return sess
}

// handleValidate is the forward-auth decision endpoint. The ingress calls it
// for every request; the answer's status code decides whether the original
// request proceeds, and on 200 the identity headers are copied downstream.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	d, err := resolve.Describe(r)
	if err != nil {
		logging.Info("Server", "Rejecting undescribable subrequest: %v", err)
		http.Error(w, "cannot reconstruct original request", http.StatusBadRequest)
		return
	}

	sess := s.loadSession(r)
	res := s.engine.Resolve(d, sess)

	// A session whose project-scoped credential is near expiry gets it
	// refreshed transparently before validation.
	if res.TokenSource == resolve.SourceSession && sess != nil {
		if fresh := s.lifecycle.EnsureFresh(r.Context(), sess, res.Project); fresh != "" {
			res.Token = fresh
		}
	}

	var pinner desktopPinner
	if sess != nil {
		pinner = sess
	}
	decision := s.eval.decide(r.Context(), d, res, pinner)

	switch decision.State {
	case StateStaticOK, StateAnonymousOK:
		w.WriteHeader(http.StatusOK)
	case StateNoCredential, StateInvalidCredential:
		w.WriteHeader(http.StatusUnauthorized)
	case StateUnauthorizedProject:
		logging.Warn("Server", "User %q denied access to project %q", decision.Identity.Username, decision.Project)
		w.WriteHeader(http.StatusForbidden)
	case StateAuthorized:
		s.writeIdentityHeaders(w, decision)
		w.WriteHeader(http.StatusOK)
	}
}

// writeIdentityHeaders emits the downstream-trusted identity headers, plus
// the signed assertion for the protected namespace.
func (s *Server) writeIdentityHeaders(w http.ResponseWriter, decision Decision) {
	h := w.Header()
	h.Set("Remote-User", decision.Identity.Username)
	h.Set("X-Auth-User", decision.Identity.Username)
	h.Set("X-Auth-Email", decision.Identity.Email)
	h.Set("X-Auth-Groups", strings.Join(decision.Identity.Groups, ","))
	h.Set("X-Auth-Project", decision.Project)
	h.Set("Authorization", "Bearer "+decision.Token)

	// Decisions are identity-bound; never let a cache replay one.
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Vary", "Cookie, Authorization")

	if decision.Protected {
		a := s.signer.Sign(decision.Identity.Username, decision.Project)
		h.Set("X-Auth-Stamp", fmt.Sprintf("%d", a.Timestamp))
		h.Set("X-Auth-Signature", a.Signature)
		h.Set("X-Auth-Audience", a.Audience)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
