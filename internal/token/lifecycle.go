package token

import (
	"context"

	"tregate/internal/session"
	"tregate/pkg/logging"
)

// Refresher exchanges a refresh token for a new credential pair. Implemented
// by the identity provider client.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (access, newRefresh string, err error)
}

// Lifecycle keeps session credentials fresh. It refreshes a credential once
// it enters the expiry threshold and replaces the stored pair atomically; a
// failed refresh leaves the stored pair alone so a transient provider outage
// cannot destroy a still-valid refresh token.
type Lifecycle struct {
	refresher Refresher
	store     session.Store
}

// NewLifecycle creates a lifecycle manager over the given refresher and
// session store.
func NewLifecycle(refresher Refresher, store session.Store) *Lifecycle {
	return &Lifecycle{refresher: refresher, store: store}
}

// EnsureFresh returns a usable access token for the given project scope, or
// an empty string when the session holds no usable credential.
//
// A token outside the expiry threshold is returned as-is. A token inside the
// threshold is refreshed; on success both tokens of the pair are replaced in
// one step and the session is persisted. On failure (rejected grant,
// unreachable provider) the stored pair is left untouched and the empty
// string is returned: the caller must treat this as "no credential", never
// retry here.
func (l *Lifecycle) EnsureFresh(ctx context.Context, sess *session.Session, project string) string {
	access := sess.CredentialFor(project)
	if access == "" {
		return ""
	}

	expiresSoon, secondsLeft := CheckExpiry(access)
	if !expiresSoon {
		return access
	}
	logging.Debug("Token", "Credential for session %s project %q expires in %ds, refreshing", sess.ID, project, secondsLeft)

	refresh := sess.RefreshCredentialFor(project)
	newAccess, newRefresh, err := l.refresher.Refresh(ctx, refresh)
	if err != nil {
		logging.Warn("Token", "Refresh failed for session %s project %q: %v", sess.ID, project, err)
		return ""
	}

	sess.SetCredential(project, newAccess, newRefresh)
	if err := l.store.Save(ctx, sess); err != nil {
		logging.Error("Token", err, "Failed to persist refreshed credential for session %s", sess.ID)
	}
	return newAccess
}
