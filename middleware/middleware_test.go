package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"duochat/models"
)

type stubGate struct {
	users map[string]*models.User
	err   error
}

func (g stubGate) Admit(_ context.Context, token string) (*models.User, error) {
	if g.err != nil {
		return nil, g.err
	}
	if u, ok := g.users[token]; ok {
		return u, nil
	}
	return nil, models.ErrUnauthenticated
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
	if got := TokenFromRequest(r); got != "query" {
		t.Fatalf("query token: got %q", got)
	}
	r.Header.Set("Authorization", "Bearer header")
	if got := TokenFromRequest(r); got != "header" {
		t.Fatalf("header token should win: got %q", got)
	}
	r.Header.Set("Authorization", "Basic abc")
	if got := TokenFromRequest(r); got != "" {
		t.Fatalf("non-bearer scheme should yield no token, got %q", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	alice := &models.User{ID: 7}
	gate := stubGate{users: map[string]*models.User{"good": alice}}

	var seen *models.User
	h := Auth(gate, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserFromContext(r)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen == nil || seen.ID != alice.ID {
		t.Fatalf("expected admitted request, code=%d user=%+v", rec.Code, seen)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/contacts", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	failing := Auth(stubGate{err: errors.Join(models.ErrStorage, errors.New("db down"))}, nil)(h)
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/contacts?token=x", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on store failure, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS("http://localhost:3000")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/messages/1", nil))
	if rec.Code != http.StatusNoContent || called {
		t.Fatalf("preflight should be answered by the middleware, code=%d called=%v", rec.Code, called)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
