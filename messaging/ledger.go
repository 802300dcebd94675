package messaging

import (
	"context"

	"duochat/models"
)

// Ledger answers unread questions from the message log. Nothing here is
// cached; every count is a query.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// UnreadCount is the number of unread messages from peer to owner.
func (l *Ledger) UnreadCount(ctx context.Context, ownerID, peerID int64) (int, error) {
	n, err := l.store.CountUnread(ctx, peerID, ownerID)
	if err != nil {
		return 0, models.Storage("count unread", err)
	}
	return n, nil
}

// MarkRead marks every unread message from peer to owner as read and
// returns how many changed. A repeat call changes nothing.
func (l *Ledger) MarkRead(ctx context.Context, ownerID, peerID int64) (int64, error) {
	if err := requireContact(ctx, l.store, ownerID, peerID); err != nil {
		return 0, err
	}
	n, err := l.store.MarkMessagesAsRead(ctx, peerID, ownerID, 0)
	if err != nil {
		return 0, models.Storage("mark read", err)
	}
	return n, nil
}

// UnreadSummary returns the unread count for each of the owner's contacts.
func (l *Ledger) UnreadSummary(ctx context.Context, ownerID int64) ([]models.UnreadCount, error) {
	ids, err := l.store.ListContactIDs(ctx, ownerID)
	if err != nil {
		return nil, models.Storage("list contacts", err)
	}
	out := make([]models.UnreadCount, 0, len(ids))
	for _, id := range ids {
		n, err := l.UnreadCount(ctx, ownerID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, models.UnreadCount{ContactID: id, UnreadCount: n})
	}
	return out, nil
}
