package session

import (
	"sync"

	"tregate/pkg/logging"
)

// RegistryEntry records the credentials issued to one session so they can be
// revoked when a downstream application reports a logout out-of-band.
type RegistryEntry struct {
	SessionID string
	Username  string
	Access    string
	Refresh   string
}

// Registry tracks live sessions for out-of-band cleanup. It is keyed by
// session id, with a secondary username index, so two concurrent sessions of
// the same user never clobber each other. All access is mutex-guarded; this
// is process-wide shared state.
type Registry struct {
	mu     sync.RWMutex
	bySID  map[string]RegistryEntry
	byUser map[string]map[string]struct{} // username -> set of session ids
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bySID:  make(map[string]RegistryEntry),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Put records (or replaces) the entry for a session.
func (r *Registry) Put(entry RegistryEntry) {
	if entry.SessionID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.bySID[entry.SessionID]; ok && old.Username != entry.Username {
		r.removeUserIndexLocked(old.Username, entry.SessionID)
	}
	r.bySID[entry.SessionID] = entry

	sids, ok := r.byUser[entry.Username]
	if !ok {
		sids = make(map[string]struct{})
		r.byUser[entry.Username] = sids
	}
	sids[entry.SessionID] = struct{}{}

	logging.Debug("SessionRegistry", "Registered session %s for user %s", entry.SessionID, entry.Username)
}

// DropSession removes one session's entry, returning it if present.
func (r *Registry) DropSession(sessionID string) (RegistryEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.bySID[sessionID]
	if !ok {
		return RegistryEntry{}, false
	}
	delete(r.bySID, sessionID)
	r.removeUserIndexLocked(entry.Username, sessionID)
	return entry, true
}

// DropUser removes every session of the given user, returning the dropped
// entries. Used by the downstream logout event, which only knows a username.
func (r *Registry) DropUser(username string) []RegistryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	sids, ok := r.byUser[username]
	if !ok {
		return nil
	}

	entries := make([]RegistryEntry, 0, len(sids))
	for sid := range sids {
		if entry, ok := r.bySID[sid]; ok {
			entries = append(entries, entry)
			delete(r.bySID, sid)
		}
	}
	delete(r.byUser, username)

	logging.Debug("SessionRegistry", "Dropped %d session(s) for user %s", len(entries), username)
	return entries
}

// Sessions returns the number of registered sessions.
func (r *Registry) Sessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *Registry) removeUserIndexLocked(username, sessionID string) {
	if sids, ok := r.byUser[username]; ok {
		delete(sids, sessionID)
		if len(sids) == 0 {
			delete(r.byUser, username)
		}
	}
}
