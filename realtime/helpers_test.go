package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"duochat/models"
)

type fakeSession struct {
	id     string
	userID int64

	mu     sync.Mutex
	events []models.InboundEvent
	fail   bool
	closed bool

	// onSend runs for every decoded event before it is recorded
	onSend func(models.InboundEvent)
}

func newFakeSession(id string, userID int64) *fakeSession {
	return &fakeSession{id: id, userID: userID}
}

func (s *fakeSession) ID() string    { return s.id }
func (s *fakeSession) UserID() int64 { return s.userID }

func (s *fakeSession) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("send failed")
	}
	var ev models.InboundEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	if s.onSend != nil {
		s.onSend(ev)
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSession) count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func (s *fakeSession) last() models.InboundEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return models.InboundEvent{}
	}
	return s.events[len(s.events)-1]
}

type presenceCall struct {
	userID int64
	online bool
}

type fakePresenceStore struct {
	mu     sync.Mutex
	calls  []presenceCall
	resets int
	err    error
}

func (f *fakePresenceStore) SetPresence(_ context.Context, userID int64, online bool, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, presenceCall{userID: userID, online: online})
	return f.err
}

func (f *fakePresenceStore) ResetPresence(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.err
}

func (f *fakePresenceStore) snapshot() []presenceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]presenceCall(nil), f.calls...)
}

// contactSet answers ContactExists from a fixed list of directed edges.
type contactSet struct {
	edges map[[2]int64]bool
	err   error
}

func newContactSet(pairs ...[2]int64) *contactSet {
	c := &contactSet{edges: make(map[[2]int64]bool)}
	for _, p := range pairs {
		c.edges[p] = true
	}
	return c
}

func (c *contactSet) ContactExists(_ context.Context, ownerID, contactID int64) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	return c.edges[[2]int64{ownerID, contactID}], nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
