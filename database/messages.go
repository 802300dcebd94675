package database

import (
	"context"
	"time"

	"duochat/models"
)

// CreateMessage appends a message to the log. The reverse contact edge
// receiver -> sender is created in the same transaction when missing, so
// the receiver always sees the sender in their contacts and unread summary.
func (s *Store) CreateMessage(ctx context.Context, senderID, receiverID int64, body string, createdAt time.Time) (_ *models.Message, err error) {
	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		CreatedAt:  createdAt.UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = tx.QueryRowContext(ctx, s.rebind(
		"INSERT INTO messages (sender_id, receiver_id, body, created_at, is_read) VALUES (?, ?, ?, ?, FALSE) RETURNING id"),
		senderID, receiverID, body, msg.CreatedAt,
	).Scan(&msg.ID); err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, s.rebind(
		"INSERT INTO contacts (owner_id, contact_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING"),
		receiverID, senderID, msg.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessagesBetweenUsers returns the most recent messages exchanged by the
// pair, oldest first. Ties on created_at fall back to insertion order.
func (s *Store) GetMessagesBetweenUsers(ctx context.Context, userID1, userID2 int64, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, sender_id, receiver_id, body, created_at, is_read
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`),
		userID1, userID2, userID2, userID1, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Body, &msg.CreatedAt, &msg.IsRead); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CountUnread counts messages from sender to receiver that are still unread.
func (s *Store) CountUnread(ctx context.Context, senderID, receiverID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT COUNT(*) FROM messages WHERE sender_id = ? AND receiver_id = ? AND is_read = FALSE"),
		senderID, receiverID,
	).Scan(&count)
	return count, err
}

// MarkMessagesAsRead flips unread messages from sender to receiver to read.
// When upToID is positive only messages with id <= upToID are touched, so a
// message that arrives after a history fetch stays unread. It returns the
// number of messages that changed state.
func (s *Store) MarkMessagesAsRead(ctx context.Context, senderID, receiverID, upToID int64) (int64, error) {
	query := "UPDATE messages SET is_read = TRUE WHERE sender_id = ? AND receiver_id = ? AND is_read = FALSE"
	args := []interface{}{senderID, receiverID}
	if upToID > 0 {
		query += " AND id <= ?"
		args = append(args, upToID)
	}
	result, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
