package models

import "time"

// User represents a registered account
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	UniqueID     string     `json:"unique_id"`
	PasswordHash string     `json:"-"` // Never send password in JSON
	IsOnline     bool       `json:"is_online"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// PublicProfile is the safe version of User shared with other users
type PublicProfile struct {
	ID       int64      `json:"id"`
	Email    string     `json:"email"`
	UniqueID string     `json:"unique_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Profile converts User to PublicProfile
func (u *User) Profile() PublicProfile {
	return PublicProfile{
		ID:       u.ID,
		Email:    u.Email,
		UniqueID: u.UniqueID,
		IsOnline: u.IsOnline,
		LastSeen: u.LastSeen,
	}
}
