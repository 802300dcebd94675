package auth

import (
	"context"
	"fmt"

	"duochat/models"
)

// UserLookup resolves an identity in the user store.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Gatekeeper authenticates a connection attempt before anything else may
// see it. It holds no state of its own, so a rejected attempt leaves none.
type Gatekeeper struct {
	tokens *Tokens
	users  UserLookup
}

// NewGatekeeper creates a gatekeeper backed by the token service and user store.
func NewGatekeeper(tokens *Tokens, users UserLookup) *Gatekeeper {
	return &Gatekeeper{tokens: tokens, users: users}
}

// Admit verifies the bearer token and resolves it to an existing user.
// Every credential problem maps to models.ErrUnauthenticated; a store
// failure maps to models.ErrStorage.
func (g *Gatekeeper) Admit(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", models.ErrUnauthenticated)
	}
	userID, err := g.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
	}
	user, err := g.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, models.Storage("lookup user", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user not found", models.ErrUnauthenticated)
	}
	return user, nil
}
