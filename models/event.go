package models

import "encoding/json"

// Real-time event names
const (
	EventPresenceOnline  = "presence-online"
	EventPresenceOffline = "presence-offline"
	EventTypingStart     = "typing-start"
	EventTypingStop      = "typing-stop"
	EventNewMessage      = "new-message"
	EventError           = "error"

	EventClientTyping     = "client:typing"
	EventClientStopTyping = "client:stopTyping"
)

// Event is the envelope for everything sent over a WebSocket
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// InboundEvent is a frame received from a client. Payload is decoded
// once the type is known.
type InboundEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PresencePayload accompanies presence-online and presence-offline
type PresencePayload struct {
	UserID int64         `json:"user_id"`
	User   PublicProfile `json:"user"`
}

// TypingPayload accompanies typing-start and typing-stop
type TypingPayload struct {
	SenderID int64 `json:"sender_id"`
	PeerID   int64 `json:"peer_id"`
}

// NewMessagePayload accompanies new-message
type NewMessagePayload struct {
	Message Message       `json:"message"`
	Sender  PublicProfile `json:"sender"`
}

// PeerPayload is what clients send with client:typing and client:stopTyping
type PeerPayload struct {
	PeerID int64 `json:"peer_id"`
}

// ErrorPayload is sent back to a client whose frame could not be handled
type ErrorPayload struct {
	Error string `json:"error"`
}
