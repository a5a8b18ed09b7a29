package session

import (
	"log/slog"
	"sync"
)

// Factory builds a new Session for userID the first time the registry
// sees it.
type Factory func(userID string) *Session

// Registry maps userId to its Session. It is the only cross-session
// structure; it is mutated only on create, mark-disconnected, and end,
// each an O(1) map update.
type Registry struct {
	logger  *slog.Logger
	factory Factory

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty Registry. factory constructs a brand-new
// Session the first time a userId is seen.
func NewRegistry(logger *slog.Logger, factory Factory) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		factory:  factory,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the existing session for userID, reactivating it
// (per §4.5 idempotent reconnect semantics), or allocates a new one via
// factory. The bool result reports whether an existing session was reused.
func (r *Registry) GetOrCreate(userID string, glassesConn Sender, installedApps []string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[userID]; ok {
		s.Reactivate(glassesConn, installedApps)
		r.logger.Info("session reactivated on reconnect", "user_id", userID)
		return s, true
	}

	s := r.factory(userID)
	s.Reactivate(glassesConn, installedApps)
	r.sessions[userID] = s
	r.logger.Info("session created", "user_id", userID)
	return s, false
}

// Get returns the session for userID, if one exists.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// MarkDisconnected stamps userID's session as disconnected and arms its
// cleanup timer; onExpire runs after CleanupGrace unless a reconnect
// reactivates the session first.
func (r *Registry) MarkDisconnected(userID string, onExpire func()) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	r.mu.Unlock()
	if !ok {
		return
	}
	s.MarkDisconnected()
	s.ArmCleanup(onExpire)
}

// CleanupIfStillDisconnected ends and removes userID's session, but only
// if the glasses channel is still disconnected — a reconnect inside the
// grace window must have already cleared that flag via GetOrCreate.
func (r *Registry) CleanupIfStillDisconnected(userID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	r.mu.Unlock()
	if !ok || !s.IsDisconnected() {
		return
	}
	r.End(userID)
}

// End tears down and removes userID's session unconditionally.
func (r *Registry) End(userID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	if ok {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	s.End()
	r.logger.Info("session ended", "user_id", userID)
}

// Len reports the number of tracked sessions, for metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
