package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"duochat/logging"
	"duochat/metrics"
	"duochat/models"
)

const presenceWriteTimeout = 5 * time.Second

// PresenceStore persists the derived online flag and last-seen time.
type PresenceStore interface {
	SetPresence(ctx context.Context, userID int64, online bool, lastSeen time.Time) error
	ResetPresence(ctx context.Context) error
}

// TypingReleaser drops typing state owned by a user who went offline.
type TypingReleaser interface {
	Release(senderID int64)
}

// Presence turns registry changes into online/offline transitions. Only
// the first session of a user and the removal of their last session are
// announced; anything in between is silent.
type Presence struct {
	registry *Registry
	store    PresenceStore
	typing   TypingReleaser
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
	locks    keyedMutex
}

// NewPresence creates a presence tracker. typing may be nil.
func NewPresence(registry *Registry, store PresenceStore, typing TypingReleaser, m *metrics.Metrics, logger *zap.Logger) *Presence {
	return &Presence{
		registry: registry,
		store:    store,
		typing:   typing,
		metrics:  m,
		logger:   logging.OrNop(logger),
		now:      time.Now,
		locks:    keyedMutex{entries: make(map[int64]*keyedEntry)},
	}
}

// Connect registers the session. It reports whether the user just came online.
func (p *Presence) Connect(ctx context.Context, user *models.User, s Session) bool {
	unlock := p.locks.Lock(user.ID)
	defer unlock()

	count := p.registry.Register(s)
	p.metrics.AddSessions(1)
	p.logger.Info("session registered",
		zap.Int64("user_id", user.ID), zap.String("conn_id", s.ID()), zap.Int("sessions", count))
	if count != 1 {
		return false
	}
	p.transition(ctx, user, true)
	return true
}

// Disconnect unregisters the session. It reports whether the user went offline.
func (p *Presence) Disconnect(ctx context.Context, user *models.User, s Session) bool {
	unlock := p.locks.Lock(user.ID)
	defer unlock()

	remaining, removed := p.registry.Unregister(s)
	if !removed {
		return false
	}
	p.metrics.AddSessions(-1)
	p.logger.Info("session unregistered",
		zap.Int64("user_id", user.ID), zap.String("conn_id", s.ID()), zap.Int("sessions", remaining))
	if remaining != 0 {
		return false
	}
	p.transition(ctx, user, false)
	if p.typing != nil {
		p.typing.Release(user.ID)
	}
	return true
}

// Reset clears persisted online flags left over from a previous process.
func (p *Presence) Reset(ctx context.Context) error {
	return p.store.ResetPresence(ctx)
}

// transition persists the new state and then broadcasts it, so a client
// reacting to the event reads the state it announces.
func (p *Presence) transition(ctx context.Context, user *models.User, online bool) {
	now := p.now().UTC()

	// the connection that triggered this may already be gone
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presenceWriteTimeout)
	defer cancel()
	if err := p.store.SetPresence(writeCtx, user.ID, online, now); err != nil {
		p.logger.Error("persist presence failed",
			zap.Int64("user_id", user.ID), zap.Bool("online", online), zap.Error(err))
	}

	profile := user.Profile()
	profile.IsOnline = online
	profile.LastSeen = &now

	eventType := models.EventPresenceOffline
	if online {
		eventType = models.EventPresenceOnline
	}
	delivered, err := p.registry.BroadcastExcept(user.ID, models.Event{
		Type:    eventType,
		Payload: models.PresencePayload{UserID: user.ID, User: profile},
	})
	if err != nil {
		p.metrics.IncPushFailure()
		p.logger.Warn("presence broadcast incomplete", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	p.metrics.IncPresence()
	p.logger.Info("presence changed",
		zap.Int64("user_id", user.ID), zap.Bool("online", online), zap.Int("notified", delivered))
}

// keyedMutex serialises work per identity without one global lock.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[int64]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key int64) func() {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
