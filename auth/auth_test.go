package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"duochat/models"
)

type fakeUsers struct {
	users map[int64]*models.User
	err   error
}

func (f *fakeUsers) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

func newTestTokens(t *testing.T) *Tokens {
	t.Helper()
	tokens, err := NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	return tokens
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := newTestTokens(t)
	token, expiresAt, err := tokens.Issue(42)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected expiry in the future, got %v", expiresAt)
	}
	userID, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}
}

func TestTokensRejectBadSignature(t *testing.T) {
	tokens := newTestTokens(t)
	other, _ := NewTokens("another-secret", time.Hour)
	token, _, _ := other.Issue(1)
	if _, err := tokens.Verify(token); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestTokensRejectExpired(t *testing.T) {
	tokens := newTestTokens(t)
	tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, _ := tokens.Issue(1)
	tokens.now = time.Now
	if _, err := tokens.Verify(token); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestTokensRejectOtherAlgorithm(t *testing.T) {
	tokens := newTestTokens(t)
	claims := jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := tokens.Verify(unsigned); err == nil {
		t.Fatalf("expected alg none to be rejected")
	}
}

func TestNewTokensRequiresSecret(t *testing.T) {
	if _, err := NewTokens("", time.Hour); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestGatekeeperAdmit(t *testing.T) {
	tokens := newTestTokens(t)
	users := &fakeUsers{users: map[int64]*models.User{7: {ID: 7, Email: "g@example.com"}}}
	gate := NewGatekeeper(tokens, users)
	ctx := context.Background()

	token, _, _ := tokens.Issue(7)
	user, err := gate.Admit(ctx, token)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if user.ID != 7 {
		t.Fatalf("unexpected user %+v", user)
	}

	if _, err := gate.Admit(ctx, ""); !errors.Is(err, models.ErrUnauthenticated) {
		t.Fatalf("missing token: expected ErrUnauthenticated, got %v", err)
	}
	if _, err := gate.Admit(ctx, "not-a-token"); !errors.Is(err, models.ErrUnauthenticated) {
		t.Fatalf("garbage token: expected ErrUnauthenticated, got %v", err)
	}

	unknown, _, _ := tokens.Issue(99)
	if _, err := gate.Admit(ctx, unknown); !errors.Is(err, models.ErrUnauthenticated) {
		t.Fatalf("unknown user: expected ErrUnauthenticated, got %v", err)
	}

	users.err = errors.New("disk on fire")
	if _, err := gate.Admit(ctx, token); !errors.Is(err, models.ErrStorage) {
		t.Fatalf("store failure: expected ErrStorage, got %v", err)
	}
}

func TestPasswordHelpers(t *testing.T) {
	hash, err := HashPassword("secret123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPasswordHash("secret123", hash) {
		t.Fatalf("expected password to match")
	}
	if CheckPasswordHash("wrong", hash) {
		t.Fatalf("expected mismatch")
	}

	code, err := GenerateUniqueID()
	if err != nil {
		t.Fatalf("GenerateUniqueID: %v", err)
	}
	if len(code) != 6 || strings.ToUpper(code) != code {
		t.Fatalf("unexpected code %q", code)
	}
}
