package session

import (
	"time"

	"github.com/google/uuid"
)

// Credential is one access/refresh pair issued by the identity provider.
// Both fields are opaque signed tokens; any derived data (expiry, identity)
// comes from inspecting them, not from fields stored here.
type Credential struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Session is the per-browser state, keyed by an opaque session identifier
// carried in a cookie. It is owned by the request currently holding it;
// concurrent requests for the same session resolve as last-writer-wins.
type Session struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`

	// Global holds the unscoped credential pair, kept for backward
	// compatibility with pre-project-scoping clients.
	Global Credential `json:"global,omitempty"`

	// ProjectCredentials maps project name to its scoped credential pair.
	ProjectCredentials map[string]Credential `json:"project_credentials,omitempty"`

	// DesktopContext pins the session to DesktopProject when the session
	// was established from inside a remote desktop. While pinned, every
	// authorization against a different project is denied.
	DesktopContext bool   `json:"desktop_context,omitempty"`
	DesktopProject string `json:"desktop_project,omitempty"`

	CurrentProject string    `json:"current_project,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// New creates an empty session with a fresh opaque identifier.
func New() *Session {
	return &Session{
		ID:                 uuid.New().String(),
		ProjectCredentials: map[string]Credential{},
		CreatedAt:          time.Now(),
	}
}

// CredentialFor returns the access token for the given project, falling back
// to the unscoped credential. An empty project selects the unscoped
// credential directly.
func (s *Session) CredentialFor(project string) string {
	if project != "" {
		if cred, ok := s.ProjectCredentials[project]; ok && cred.Access != "" {
			return cred.Access
		}
	}
	return s.Global.Access
}

// RefreshCredentialFor returns the refresh token for the given project,
// falling back to the unscoped refresh token.
func (s *Session) RefreshCredentialFor(project string) string {
	if project != "" {
		if cred, ok := s.ProjectCredentials[project]; ok && cred.Refresh != "" {
			return cred.Refresh
		}
	}
	return s.Global.Refresh
}

// SetCredential replaces the credential pair for the given project in one
// step. Replacement is whole-pair: the access and refresh tokens from one
// provider response always travel together, never a partial update. An empty
// project replaces the unscoped pair.
func (s *Session) SetCredential(project, access, refresh string) {
	cred := Credential{Access: access, Refresh: refresh}
	if project == "" {
		s.Global = cred
		return
	}
	if s.ProjectCredentials == nil {
		s.ProjectCredentials = map[string]Credential{}
	}
	s.ProjectCredentials[project] = cred
}

// ClearCredential removes the credential pair for the given project.
func (s *Session) ClearCredential(project string) {
	if project == "" {
		s.Global = Credential{}
		return
	}
	delete(s.ProjectCredentials, project)
}

// PinDesktop pins the session to the given project for its remaining
// lifetime. See DesktopContext.
func (s *Session) PinDesktop(project string) {
	s.DesktopContext = true
	s.DesktopProject = project
}

// UnpinDesktop clears the desktop pin.
func (s *Session) UnpinDesktop() {
	s.DesktopContext = false
	s.DesktopProject = ""
}

// DesktopDenies reports whether the desktop pin forbids acting in the given
// project.
func (s *Session) DesktopDenies(project string) bool {
	return s.DesktopContext && s.DesktopProject != "" && project != s.DesktopProject
}

// DesktopPinned reports whether the session is pinned to a desktop.
func (s *Session) DesktopPinned() bool {
	return s.DesktopContext && s.DesktopProject != ""
}
