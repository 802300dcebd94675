package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"duochat/models"
)

func TestUserLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "alice@example.com", "ALICE1", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.ID == 0 {
		t.Fatalf("expected id > 0")
	}
	if _, err := store.CreateUser(ctx, "alice@example.com", "OTHER1", "hash"); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict on duplicate email, got %v", err)
	}
	if _, err := store.CreateUser(ctx, "other@example.com", "ALICE1", "hash"); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict on duplicate unique id, got %v", err)
	}

	byEmail, err := store.GetUserByEmail(ctx, "alice@example.com")
	if err != nil || byEmail == nil || byEmail.ID != user.ID {
		t.Fatalf("GetUserByEmail: %+v, err=%v", byEmail, err)
	}
	byCode, err := store.GetUserByUniqueID(ctx, "ALICE1")
	if err != nil || byCode == nil || byCode.ID != user.ID {
		t.Fatalf("GetUserByUniqueID: %+v, err=%v", byCode, err)
	}
	missing, err := store.GetUserByID(ctx, user.ID+100)
	if err != nil {
		t.Fatalf("GetUserByID missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing user, got %+v", missing)
	}
}

func TestPresencePersistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, store, "alice")

	seen := time.Now().UTC().Truncate(time.Second)
	if err := store.SetPresence(ctx, alice.ID, true, seen); err != nil {
		t.Fatalf("SetPresence: %v", err)
	}
	got, _ := store.GetUserByID(ctx, alice.ID)
	if !got.IsOnline || got.LastSeen == nil || !got.LastSeen.Equal(seen) {
		t.Fatalf("unexpected presence: online=%v lastSeen=%v", got.IsOnline, got.LastSeen)
	}

	if err := store.ResetPresence(ctx); err != nil {
		t.Fatalf("ResetPresence: %v", err)
	}
	got, _ = store.GetUserByID(ctx, alice.ID)
	if got.IsOnline {
		t.Fatalf("expected offline after reset")
	}
}

func TestContacts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, store, "alice")
	bob := mustUser(t, store, "bob")

	before := time.Now().UTC().Add(-time.Second)
	edge, err := store.AddContact(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("AddContact: %v", err)
	}
	if edge.OwnerID != alice.ID || edge.ContactID != bob.ID || edge.CreatedAt.Before(before) {
		t.Fatalf("unexpected edge: %+v", edge)
	}
	if dup, err := store.AddContact(ctx, alice.ID, bob.ID); !errors.Is(err, models.ErrConflict) || dup != nil {
		t.Fatalf("expected conflict on duplicate edge, got %+v err=%v", dup, err)
	}

	ok, err := store.ContactExists(ctx, alice.ID, bob.ID)
	if err != nil || !ok {
		t.Fatalf("expected alice -> bob edge, ok=%v err=%v", ok, err)
	}
	ok, err = store.ContactExists(ctx, bob.ID, alice.ID)
	if err != nil || ok {
		t.Fatalf("edge must be directed, ok=%v err=%v", ok, err)
	}

	contacts, err := store.ListContacts(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if len(contacts) != 1 || contacts[0].ID != bob.ID || contacts[0].Email != bob.Email {
		t.Fatalf("unexpected contacts: %+v", contacts)
	}
}

func TestMessageOrderingAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, store, "alice")
	bob := mustUser(t, store, "bob")

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		if _, err := store.CreateMessage(ctx, alice.ID, bob.ID, string(rune('a'+i)), base.Add(time.Duration(i)*time.Millisecond)); err != nil {
			t.Fatalf("CreateMessage %d: %v", i, err)
		}
	}
	// same timestamp as the last one: insertion order breaks the tie
	if _, err := store.CreateMessage(ctx, bob.ID, alice.ID, "f", base.Add(4*time.Millisecond)); err != nil {
		t.Fatalf("CreateMessage tie: %v", err)
	}

	all, err := store.GetMessagesBetweenUsers(ctx, bob.ID, alice.ID, 100)
	if err != nil {
		t.Fatalf("GetMessagesBetweenUsers: %v", err)
	}
	var order string
	for _, m := range all {
		order += m.Body
	}
	if order != "abcdef" {
		t.Fatalf("unexpected order %q", order)
	}

	recent, err := store.GetMessagesBetweenUsers(ctx, alice.ID, bob.ID, 2)
	if err != nil {
		t.Fatalf("GetMessagesBetweenUsers limit: %v", err)
	}
	if len(recent) != 2 || recent[0].Body != "e" || recent[1].Body != "f" {
		t.Fatalf("expected the two most recent ascending, got %+v", recent)
	}
}

func TestCreateMessageAddsReverseContact(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, store, "alice")
	bob := mustUser(t, store, "bob")

	if _, err := store.CreateMessage(ctx, alice.ID, bob.ID, "hi", time.Now()); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	ok, err := store.ContactExists(ctx, bob.ID, alice.ID)
	if err != nil || !ok {
		t.Fatalf("expected reverse edge bob -> alice, ok=%v err=%v", ok, err)
	}
	// a second message must not trip over the existing edge
	if _, err := store.CreateMessage(ctx, alice.ID, bob.ID, "again", time.Now()); err != nil {
		t.Fatalf("CreateMessage second: %v", err)
	}
}

func TestUnreadAndMarkRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, store, "alice")
	bob := mustUser(t, store, "bob")

	first, _ := store.CreateMessage(ctx, alice.ID, bob.ID, "one", time.Now())
	if _, err := store.CreateMessage(ctx, alice.ID, bob.ID, "two", time.Now()); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if _, err := store.CreateMessage(ctx, bob.ID, alice.ID, "reply", time.Now()); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	count, err := store.CountUnread(ctx, alice.ID, bob.ID)
	if err != nil || count != 2 {
		t.Fatalf("expected 2 unread, got %d err=%v", count, err)
	}

	changed, err := store.MarkMessagesAsRead(ctx, alice.ID, bob.ID, first.ID)
	if err != nil || changed != 1 {
		t.Fatalf("bounded mark read: changed=%d err=%v", changed, err)
	}
	count, _ = store.CountUnread(ctx, alice.ID, bob.ID)
	if count != 1 {
		t.Fatalf("expected 1 unread after bounded mark, got %d", count)
	}

	changed, err = store.MarkMessagesAsRead(ctx, alice.ID, bob.ID, 0)
	if err != nil || changed != 1 {
		t.Fatalf("mark read: changed=%d err=%v", changed, err)
	}
	changed, err = store.MarkMessagesAsRead(ctx, alice.ID, bob.ID, 0)
	if err != nil || changed != 0 {
		t.Fatalf("second mark read must be a no-op: changed=%d err=%v", changed, err)
	}

	// the other direction is untouched
	count, _ = store.CountUnread(ctx, bob.ID, alice.ID)
	if count != 1 {
		t.Fatalf("expected reply to stay unread, got %d", count)
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("unexpected postgres rebind %q", got)
	}
	lite := &Store{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite query must be unchanged, got %q", got)
	}
}

func TestPureSQLiteDriver(t *testing.T) {
	store, err := Open(DriverSQLitePure, "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	alice := mustUser(t, store, "alice")
	bob := mustUser(t, store, "bob")
	if _, err := store.CreateUser(ctx, "alice@example.com", "ALICE2", "hash"); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict from pure driver, got %v", err)
	}
	if _, err := store.AddContact(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("AddContact: %v", err)
	}
	if _, err := store.AddContact(ctx, alice.ID, bob.ID); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected duplicate edge conflict, got %v", err)
	}
	if _, err := store.CreateMessage(ctx, alice.ID, bob.ID, "hi", time.Now().UTC()); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if n, err := store.CountUnread(ctx, alice.ID, bob.ID); err != nil || n != 1 {
		t.Fatalf("CountUnread: n=%d err=%v", n, err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	if got := sqliteDSN("chat.db"); got != "file:chat.db?_foreign_keys=on&_busy_timeout=5000" {
		t.Fatalf("unexpected dsn %q", got)
	}
	if got := pureSQLiteDSN("sqlite://chat.db?mode=ro"); got != "chat.db?mode=ro&_pragma=busy_timeout=5000&_pragma=foreign_keys=ON" {
		t.Fatalf("unexpected pure dsn %q", got)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func mustUser(t *testing.T, store *Store, name string) *models.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), name+"@example.com", name, "hash")
	if err != nil {
		t.Fatalf("CreateUser %s: %v", name, err)
	}
	return user
}
