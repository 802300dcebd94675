package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"duochat/models"
)

const userColumns = "id, email, unique_id, password_hash, is_online, last_seen, created_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var lastSeen sql.NullTime
	err := row.Scan(&user.ID, &user.Email, &user.UniqueID, &user.PasswordHash, &user.IsOnline, &lastSeen, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		user.LastSeen = &t
	}
	return user, nil
}

// CreateUser inserts a new user. models.ErrConflict is returned when the
// email or unique id is taken.
func (s *Store) CreateUser(ctx context.Context, email, uniqueID, passwordHash string) (*models.User, error) {
	now := time.Now().UTC()
	user := &models.User{
		Email:        email,
		UniqueID:     uniqueID,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}
	err := s.db.QueryRowContext(ctx, s.rebind(
		`INSERT INTO users (email, unique_id, password_hash, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		email, uniqueID, passwordHash, now,
	).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrConflict
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by id. A missing user yields (nil, nil).
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
}

// GetUserByUniqueID retrieves a user by their shareable code.
func (s *Store) GetUserByUniqueID(ctx context.Context, uniqueID string) (*models.User, error) {
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE unique_id = ?", uniqueID)
}

func (s *Store) getUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, s.rebind(query), arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// SetPresence persists the online flag and last-seen time of a user.
func (s *Store) SetPresence(ctx context.Context, userID int64, online bool, lastSeen time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		"UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?"),
		online, lastSeen.UTC(), userID,
	)
	return err
}

// ResetPresence marks every user offline. Live sessions never survive a
// restart, so this runs once at startup.
func (s *Store) ResetPresence(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "UPDATE users SET is_online = FALSE WHERE is_online = TRUE")
	return err
}
