package handlers

import (
	"encoding/json"
	"net/http"

	"duochat/middleware"
)

type sendMessageRequest struct {
	Message string `json:"message"`
}

// GetMessages returns the conversation with a contact. Unless peek is set,
// the fetched messages from the contact are marked read.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	contactID, err := contactIDFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	fetch := h.router.History
	if peek := r.URL.Query().Get("peek"); peek == "1" || peek == "true" {
		fetch = h.router.Peek
	}
	msgs, err := fetch(r.Context(), user.ID, contactID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// SendMessage stores a message and pushes it to the receiver
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	contactID, err := contactIDFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	msg, err := h.router.Send(r.Context(), user, contactID, req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// UnreadCounts returns the unread count per contact
func (h *Handler) UnreadCounts(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	counts, err := h.ledger.UnreadSummary(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// MarkRead marks every message from the contact as read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	contactID, err := contactIDFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	changed, err := h.ledger.MarkRead(r.Context(), user.ID, contactID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Messages marked as read",
		"updated": changed,
	})
}
