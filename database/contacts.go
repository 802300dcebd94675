package database

import (
	"context"
	"database/sql"
	"time"

	"duochat/models"
)

// AddContact stores the directed edge owner -> contact. models.ErrConflict
// is returned when the edge already exists.
func (s *Store) AddContact(ctx context.Context, ownerID, contactID int64) (*models.Contact, error) {
	contact := &models.Contact{OwnerID: ownerID, ContactID: contactID, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, s.rebind(
		"INSERT INTO contacts (owner_id, contact_id, created_at) VALUES (?, ?, ?)"),
		contact.OwnerID, contact.ContactID, contact.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrConflict
		}
		return nil, err
	}
	return contact, nil
}

// ContactExists reports whether owner has contact in their list.
func (s *Store) ContactExists(ctx context.Context, ownerID, contactID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT COUNT(1) FROM contacts WHERE owner_id = ? AND contact_id = ?"),
		ownerID, contactID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListContacts returns the owner's contacts with their profiles, newest first.
func (s *Store) ListContacts(ctx context.Context, ownerID int64) ([]models.ContactWithUser, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT u.id, u.email, u.unique_id, u.is_online, u.last_seen, c.created_at
		FROM contacts c
		JOIN users u ON u.id = c.contact_id
		WHERE c.owner_id = ?
		ORDER BY c.created_at DESC, u.id DESC`),
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []models.ContactWithUser
	for rows.Next() {
		var c models.ContactWithUser
		var lastSeen sql.NullTime
		if err := rows.Scan(&c.ID, &c.Email, &c.UniqueID, &c.IsOnline, &lastSeen, &c.AddedAt); err != nil {
			return nil, err
		}
		if lastSeen.Valid {
			t := lastSeen.Time
			c.LastSeen = &t
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// ListContactIDs returns only the peer ids of the owner's contacts.
func (s *Store) ListContactIDs(ctx context.Context, ownerID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT contact_id FROM contacts WHERE owner_id = ? ORDER BY created_at ASC, contact_id ASC"),
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
