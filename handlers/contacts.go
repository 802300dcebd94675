package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"duochat/middleware"
	"duochat/models"
)

type addContactRequest struct {
	UniqueID string `json:"unique_id"`
}

// ListContacts returns the user's contacts with their live online flag
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	contacts, err := h.store.ListContacts(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, models.Storage("list contacts", err))
		return
	}
	for i := range contacts {
		contacts[i].IsOnline = h.registry.IsOnline(contacts[i].ID)
	}
	if contacts == nil {
		contacts = []models.ContactWithUser{}
	}
	writeJSON(w, http.StatusOK, contacts)
}

// AddContact adds a contact by their unique id
func (h *Handler) AddContact(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	var req addContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	req.UniqueID = strings.TrimSpace(req.UniqueID)
	if len(req.UniqueID) < minUniqueIDLength || len(req.UniqueID) > maxUniqueIDLength {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unique ID must be 3-10 characters"})
		return
	}

	peer, err := h.store.GetUserByUniqueID(r.Context(), req.UniqueID)
	if err != nil {
		h.writeError(w, r, models.Storage("lookup user", err))
		return
	}
	if peer == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	if peer.ID == user.ID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Cannot add yourself as a contact"})
		return
	}

	edge, err := h.store.AddContact(r.Context(), user.ID, peer.ID)
	if errors.Is(err, models.ErrConflict) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Contact already added"})
		return
	}
	if err != nil {
		h.writeError(w, r, models.Storage("add contact", err))
		return
	}

	h.logger.Info("contact added", zap.Int64("user_id", user.ID), zap.Int64("peer_id", peer.ID))
	profile := peer.Profile()
	profile.IsOnline = h.registry.IsOnline(peer.ID)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Contact added successfully",
		"contact":  profile,
		"added_at": edge.CreatedAt,
	})
}
