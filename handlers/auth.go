package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"duochat/auth"
	"duochat/middleware"
	"duochat/models"
)

const (
	minPasswordLength = 6
	minUniqueIDLength = 3
	maxUniqueIDLength = 10
	uniqueIDAttempts  = 5
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	UniqueID string `json:"unique_id"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string               `json:"token"`
	ExpiresAt time.Time            `json:"expires_at"`
	User      models.PublicProfile `json:"user"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.UniqueID = strings.TrimSpace(req.UniqueID)

	if !strings.Contains(req.Email, "@") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid email address"})
		return
	}
	if len(req.Password) < minPasswordLength {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Password must be at least 6 characters"})
		return
	}
	if req.UniqueID != "" && (len(req.UniqueID) < minUniqueIDLength || len(req.UniqueID) > maxUniqueIDLength) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unique ID must be 3-10 characters"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.createUser(r, req, hash)
	if errors.Is(err, models.ErrConflict) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "User already exists"})
		return
	}
	if err != nil {
		h.writeError(w, r, models.Storage("create user", err))
		return
	}

	h.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("unique_id", user.UniqueID))
	h.issue(w, r, http.StatusCreated, user)
}

// createUser inserts the user, retrying generated unique ids that collide.
func (h *Handler) createUser(r *http.Request, req registerRequest, hash string) (*models.User, error) {
	if req.UniqueID != "" {
		return h.store.CreateUser(r.Context(), req.Email, req.UniqueID, hash)
	}
	var lastErr error
	for i := 0; i < uniqueIDAttempts; i++ {
		code, err := auth.GenerateUniqueID()
		if err != nil {
			return nil, err
		}
		user, err := h.store.CreateUser(r.Context(), req.Email, code, hash)
		if !errors.Is(err, models.ErrConflict) {
			return user, err
		}
		// the email may be the conflict; stop early in that case
		existing, lookupErr := h.store.GetUserByEmail(r.Context(), req.Email)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, models.Storage("lookup user", err))
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
		return
	}

	h.issue(w, r, http.StatusOK, user)
}

// Me returns the current authenticated user
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		h.writeError(w, r, models.ErrUnauthenticated)
		return
	}
	profile := user.Profile()
	profile.IsOnline = h.registry.IsOnline(user.ID)
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, status int, user *models.User) {
	token, expiresAt, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, authResponse{Token: token, ExpiresAt: expiresAt, User: user.Profile()})
}
