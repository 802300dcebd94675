package models

import "time"

// Message bodies are measured in characters after trimming.
const (
	MinMessageLength = 1
	MaxMessageLength = 1000
)

// Message represents a direct message between two users
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Body       string    `json:"message"`
	CreatedAt  time.Time `json:"timestamp"`
	IsRead     bool      `json:"is_read"`
}

// Contact is a directed edge from Owner to Peer
type Contact struct {
	OwnerID   int64     `json:"owner_id"`
	ContactID int64     `json:"contact_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ContactWithUser includes the peer's public profile
type ContactWithUser struct {
	PublicProfile
	AddedAt time.Time `json:"added_at"`
}

// UnreadCount is the number of unread messages a contact has sent
type UnreadCount struct {
	ContactID   int64 `json:"contact_id"`
	UnreadCount int   `json:"unread_count"`
}
