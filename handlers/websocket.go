package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"duochat/middleware"
	"duochat/models"
	"duochat/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // tokens, not cookies, authenticate the socket
	},
}

// WebSocket admits the connection and hands it to a realtime client. A
// failed admission is answered before the upgrade, so no session exists.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := h.gate.Admit(r.Context(), middleware.TokenFromRequest(r))
	if err != nil {
		if !errors.Is(err, models.ErrStorage) {
			h.logger.Debug("websocket rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		}
		h.writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}

	client := realtime.NewClient(conn, user, h.presence, h.typing, h.logger.Named("ws"))
	client.Run(r.Context())
}
