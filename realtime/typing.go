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

// DefaultTypingIdle is how long a pair stays "typing" without a new signal.
const DefaultTypingIdle = time.Second

// ContactChecker answers whether owner has contact in their list.
type ContactChecker interface {
	ContactExists(ctx context.Context, ownerID, contactID int64) (bool, error)
}

// Deliverer pushes an event to every session of a user.
type Deliverer interface {
	Deliver(userID int64, ev models.Event) (int, error)
}

type typingKey struct {
	sender int64
	peer   int64
}

type typingState struct {
	timer *time.Timer
	gen   uint64
}

// Typing debounces raw keystroke signals into typing-start and typing-stop
// events for one (sender, peer) pair at a time. Repeated signals inside the
// idle window only extend it; they never repeat typing-start.
type Typing struct {
	mu       sync.Mutex
	idle     time.Duration
	pairs    map[typingKey]*typingState
	gen      uint64
	closed   bool
	contacts ContactChecker
	out      Deliverer
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewTyping creates a coordinator. A non-positive idle uses DefaultTypingIdle.
func NewTyping(idle time.Duration, contacts ContactChecker, out Deliverer, m *metrics.Metrics, logger *zap.Logger) *Typing {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &Typing{
		idle:     idle,
		pairs:    make(map[typingKey]*typingState),
		contacts: contacts,
		out:      out,
		metrics:  m,
		logger:   logging.OrNop(logger),
	}
}

// Start handles client:typing from sender about peer.
func (t *Typing) Start(ctx context.Context, senderID, peerID int64) error {
	if senderID == peerID {
		return models.Validation("cannot send typing to yourself")
	}
	key := typingKey{sender: senderID, peer: peerID}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	if _, active := t.pairs[key]; active {
		t.armLocked(key)
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	ok, err := t.contacts.ContactExists(ctx, senderID, peerID)
	if err != nil {
		return models.Storage("check contact", err)
	}
	if !ok {
		return models.NotFound("contact")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	_, active := t.pairs[key]
	t.armLocked(key)
	if !active {
		t.metrics.IncTyping()
		t.emitLocked(models.EventTypingStart, key)
	}
	return nil
}

// Stop handles client:stopTyping. Without an active state it does nothing.
func (t *Typing) Stop(senderID, peerID int64) {
	key := typingKey{sender: senderID, peer: peerID}

	t.mu.Lock()
	defer t.mu.Unlock()
	st, active := t.pairs[key]
	if !active {
		return
	}
	st.timer.Stop()
	delete(t.pairs, key)
	t.emitLocked(models.EventTypingStop, key)
}

// Release stops every pair the sender owns and tells each peer.
func (t *Typing) Release(senderID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, st := range t.pairs {
		if key.sender != senderID {
			continue
		}
		st.timer.Stop()
		delete(t.pairs, key)
		t.emitLocked(models.EventTypingStop, key)
	}
}

// Active reports whether sender is currently typing to peer.
func (t *Typing) Active(senderID, peerID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pairs[typingKey{sender: senderID, peer: peerID}]
	return ok
}

// Close stops all timers without emitting events; later signals are ignored.
func (t *Typing) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, st := range t.pairs {
		st.timer.Stop()
		delete(t.pairs, key)
	}
	t.closed = true
}

// armLocked (re)starts the idle timer for key. Each arm gets a new
// generation so a timer that already fired but lost the race for mu
// recognises itself as stale.
func (t *Typing) armLocked(key typingKey) {
	if st, ok := t.pairs[key]; ok {
		st.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.pairs[key] = &typingState{
		gen:   gen,
		timer: time.AfterFunc(t.idle, func() { t.expire(key, gen) }),
	}
}

func (t *Typing) expire(key typingKey, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.pairs[key]
	if !ok || st.gen != gen {
		return
	}
	delete(t.pairs, key)
	t.emitLocked(models.EventTypingStop, key)
}

func (t *Typing) emitLocked(eventType string, key typingKey) {
	_, err := t.out.Deliver(key.peer, models.Event{
		Type:    eventType,
		Payload: models.TypingPayload{SenderID: key.sender, PeerID: key.peer},
	})
	if err != nil {
		t.metrics.IncPushFailure()
		t.logger.Warn("typing push failed",
			zap.String("event", eventType), zap.Int64("user_id", key.sender), zap.Int64("peer_id", key.peer), zap.Error(err))
	}
}
