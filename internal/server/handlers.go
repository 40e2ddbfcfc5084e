package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"tregate/internal/graph"
	"tregate/internal/session"
	"tregate/pkg/logging"

	researchv1alpha1 "tregate/pkg/apis/research/v1alpha1"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Server", err, "Failed to encode response")
	}
}

// contextResponse is the portal's view of who the caller is and what they
// may reach.
type contextResponse struct {
	User     string           `json:"user"`
	Groups   []string         `json:"groups"`
	Projects []projectSummary `json:"projects"`
}

type projectSummary struct {
	Name        string                        `json:"name"`
	Description string                        `json:"description"`
	Apps        []researchv1alpha1.ProjectApp `json:"apps"`
}

// handleContext answers with the caller's groups and accessible projects,
// resolved fresh from the resource graph.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	claims, err := s.validator.ValidateBearer(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credential"})
		return
	}
	identity := claims.Identity()

	// An explicit ?user= must match the credential; the endpoint never
	// answers for somebody else.
	if asked := r.URL.Query().Get("user"); asked != "" && asked != identity.Username {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "user mismatch"})
		return
	}

	user, err := s.graph.GetUser(r.Context(), identity.Username)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no user record"})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "resource graph unavailable"})
		return
	}

	resp := contextResponse{
		User:     identity.Username,
		Groups:   user.Spec.Groups,
		Projects: []projectSummary{},
	}
	granted := map[string]struct{}{}
	for _, name := range s.authorizer.Projects(r.Context(), identity.Username) {
		granted[name] = struct{}{}
	}

	// One list call covers every granted project; a granted name with no
	// record is a graph consistency problem, not the caller's.
	projects, err := s.graph.ListProjects(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "resource graph unavailable"})
		return
	}
	for _, project := range projects {
		if _, ok := granted[project.Name]; !ok {
			continue
		}
		resp.Projects = append(resp.Projects, projectSummary{
			Name:        project.Name,
			Description: project.Spec.Description,
			Apps:        project.Spec.Apps,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleProfiles answers with a project's spawn profiles. Consumed by the
// downstream hub's custom spawner.
func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("project")

	project, err := s.graph.GetProject(r.Context(), name)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "project not found"})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "resource graph unavailable"})
		return
	}

	profiles := project.Spec.Profiles
	if profiles == nil {
		profiles = []researchv1alpha1.SpawnProfile{}
	}
	writeJSON(w, http.StatusOK, map[string][]researchv1alpha1.SpawnProfile{"profiles": profiles})
}

// handleSSO authenticates a desktop shortcut link: a JWT and project arrive
// as query parameters, and on success the browser leaves with the project
// cookies set and a redirect into the requested application.
func (s *Server) handleSSO(w http.ResponseWriter, r *http.Request) {
	rawToken := r.URL.Query().Get("token")
	project := r.URL.Query().Get("project")
	app := r.URL.Query().Get("app")
	if app == "" {
		app = "jupyter"
	}
	if rawToken == "" || project == "" {
		http.Error(w, "token and project are required", http.StatusBadRequest)
		return
	}

	claims, err := s.validator.Validate(r.Context(), rawToken)
	if err != nil {
		logging.Info("Server", "SSO rejected: %v", err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}
	identity := claims.Identity()

	// Some token mappers omit the email claim; the userinfo endpoint still
	// has it. Best-effort: an unreachable provider leaves the claim empty.
	if identity.Email == "" {
		if info, err := s.idp.UserInfo(r.Context(), rawToken); err != nil {
			logging.Warn("Server", "Userinfo lookup failed for %q: %v", identity.Username, err)
		} else if email, ok := info["email"].(string); ok {
			identity.Email = email
		}
	}

	if !s.authorizer.Authorized(r.Context(), identity.Username, project) {
		logging.Warn("Server", "SSO denied: %q has no access to project %q", identity.Username, project)
		http.Error(w, "access denied", http.StatusForbidden)
		return
	}

	sess := s.loadSession(r)
	if sess == nil {
		sess = session.New()
		sess.Username = identity.Username
		sess.Email = identity.Email
	}
	sess.SetCredential(project, rawToken, "")
	sess.CurrentProject = project

	// A shortcut opened from inside a desktop pins the session to that
	// desktop's project.
	if dctx, fromDesktop := s.guard.Detect(r.Context(), r, identity.Username); fromDesktop {
		sess.PinDesktop(dctx.Project)
		logging.Info("Server", "SSO for %q from desktop %s, pinned to project %q", identity.Username, dctx.Instance, dctx.Project)
	} else {
		sess.UnpinDesktop()
	}

	if err := s.store.Save(r.Context(), sess); err != nil {
		logging.Error("Server", err, "Failed to persist SSO session")
		http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
		return
	}
	s.registry.Put(session.RegistryEntry{
		SessionID: sess.ID,
		Username:  identity.Username,
		Access:    rawToken,
	})

	s.setSessionCookie(w, sess.ID)
	s.setProjectCookies(w, project, rawToken)

	http.Redirect(w, r, ssoRedirectTarget(app), http.StatusFound)
}

func ssoRedirectTarget(app string) string {
	switch app {
	case "jupyter":
		return "/hub"
	case "desktop":
		return "/desktop/"
	default:
		return "/"
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    id,
		Path:     "/",
		Domain:   s.cfg.Cookies.Domain,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cfg.Session.TTL().Seconds()),
	})
}

// setProjectCookies sets the client-readable project cookie and the
// http-only project-scoped credential cookie.
func (s *Server) setProjectCookies(w http.ResponseWriter, project, rawToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Cookies.ProjectCookie,
		Value:    project,
		Path:     "/",
		Domain:   s.cfg.Cookies.Domain,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Cookies.TokenCookieName(project),
		Value:    rawToken,
		Path:     "/",
		Domain:   s.cfg.Cookies.Domain,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   s.cfg.Cookies.TokenMaxAgeSeconds,
	})
}

// handleCleanupSession revokes a user's registered credentials after the
// downstream hub logged them out. The hub authenticates this call with the
// identity headers it received from us.
func (s *Server) handleCleanupSession(w http.ResponseWriter, r *http.Request) {
	username := r.Header.Get("X-Auth-User")
	if username == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no_user"})
		return
	}

	entries := s.registry.DropUser(username)
	for _, entry := range entries {
		s.idp.Revoke(r.Context(), entry.Access, "access_token")
		s.idp.Revoke(r.Context(), entry.Refresh, "refresh_token")
		if err := s.store.Delete(r.Context(), entry.SessionID); err != nil {
			logging.Error("Server", err, "Failed to delete session %s during cleanup", entry.SessionID)
		}
	}
	logging.Info("Server", "Cleaned up %d session(s) for %q", len(entries), username)

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleaned", "user": username})
}

// handleLogout tears down the caller's own session: revokes its credentials,
// deletes the stored session and expires the cookies.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(r)
	if sess != nil {
		s.idp.Revoke(r.Context(), sess.Global.Access, "access_token")
		s.idp.Revoke(r.Context(), sess.Global.Refresh, "refresh_token")
		for _, cred := range sess.ProjectCredentials {
			s.idp.Revoke(r.Context(), cred.Access, "access_token")
			s.idp.Revoke(r.Context(), cred.Refresh, "refresh_token")
		}
		if err := s.store.Delete(r.Context(), sess.ID); err != nil {
			logging.Error("Server", err, "Failed to delete session %s on logout", sess.ID)
		}
		s.registry.DropSession(sess.ID)
	}

	http.SetCookie(w, &http.Cookie{
		Name:   s.cfg.Session.CookieName,
		Value:  "",
		Path:   "/",
		Domain: s.cfg.Cookies.Domain,
		MaxAge: -1,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}
