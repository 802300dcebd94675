package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"duochat/models"
)

// Session is one live connection handle bound to an identity.
type Session interface {
	ID() string
	UserID() int64
	// Send queues an encoded event without blocking.
	Send(payload []byte) error
	Close()
}

// Registry maps identities to their live sessions. A user may hold any
// number of sessions at once; they are online while at least one remains.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]map[Session]struct{}
	total    int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]map[Session]struct{})}
}

// Register adds a session and returns how many sessions its user now holds.
func (r *Registry) Register(s Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.sessions[s.UserID()]
	if set == nil {
		set = make(map[Session]struct{})
		r.sessions[s.UserID()] = set
	}
	if _, exists := set[s]; !exists {
		set[s] = struct{}{}
		r.total++
	}
	return len(set)
}

// Unregister removes a session. It returns the sessions its user still
// holds and whether the session was registered at all.
func (r *Registry) Unregister(s Session) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.sessions[s.UserID()]
	if _, exists := set[s]; !exists {
		return len(set), false
	}
	delete(set, s)
	r.total--
	if len(set) == 0 {
		delete(r.sessions, s.UserID())
		return 0, true
	}
	return len(set), true
}

// IsOnline reports whether the user holds at least one session.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID]) > 0
}

// Route returns a snapshot of the user's sessions.
func (r *Registry) Route(userID int64) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.sessions[userID]
	out := make([]Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// Others returns a snapshot of every session not owned by userID.
func (r *Registry) Others(userID int64) []Session {
	return r.snapshot(func(owner int64) bool { return owner != userID })
}

func (r *Registry) snapshot(include func(owner int64) bool) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, r.total)
	for owner, set := range r.sessions {
		if !include(owner) {
			continue
		}
		for s := range set {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of live sessions across all users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// Deliver pushes an event to every session of the user. It returns how
// many sessions accepted it; failed sends are joined into the error.
func (r *Registry) Deliver(userID int64, ev models.Event) (int, error) {
	return fanOut(r.Route(userID), ev)
}

// BroadcastExcept pushes an event to every session not owned by userID.
func (r *Registry) BroadcastExcept(userID int64, ev models.Event) (int, error) {
	return fanOut(r.Others(userID), ev)
}

// CloseAll asks every live session to close. Sessions unregister themselves
// as their connections wind down.
func (r *Registry) CloseAll() {
	for _, s := range r.snapshot(func(int64) bool { return true }) {
		s.Close()
	}
}

func fanOut(targets []Session, ev models.Event) (int, error) {
	if len(targets) == 0 {
		return 0, nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	delivered := 0
	var errs []error
	for _, s := range targets {
		if err := s.Send(payload); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID(), err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}
