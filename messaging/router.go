package messaging

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"duochat/logging"
	"duochat/metrics"
	"duochat/models"
)

// DefaultHistoryLimit caps how many messages a history fetch returns.
const DefaultHistoryLimit = 100

// Store is the slice of the durable store the router and ledger need.
type Store interface {
	ContactExists(ctx context.Context, ownerID, contactID int64) (bool, error)
	ListContactIDs(ctx context.Context, ownerID int64) ([]int64, error)
	CreateMessage(ctx context.Context, senderID, receiverID int64, body string, createdAt time.Time) (*models.Message, error)
	GetMessagesBetweenUsers(ctx context.Context, userID1, userID2 int64, limit int) ([]models.Message, error)
	CountUnread(ctx context.Context, senderID, receiverID int64) (int, error)
	MarkMessagesAsRead(ctx context.Context, senderID, receiverID, upToID int64) (int64, error)
}

// Pusher delivers a live event to every session of a user.
type Pusher interface {
	Deliver(userID int64, ev models.Event) (int, error)
}

// Router persists messages and then pushes them to the receiver.
type Router struct {
	store        Store
	pusher       Pusher
	historyLimit int
	metrics      *metrics.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// NewRouter creates a router. historyLimit <= 0 uses DefaultHistoryLimit.
func NewRouter(store Store, pusher Pusher, historyLimit int, m *metrics.Metrics, logger *zap.Logger) *Router {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Router{
		store:        store,
		pusher:       pusher,
		historyLimit: historyLimit,
		metrics:      m,
		logger:       logging.OrNop(logger),
		now:          time.Now,
	}
}

// Send validates and stores a message from sender to receiverID, then pushes
// it to the receiver's live sessions. Push failures never fail the send: the
// message is already in the log and reachable through History.
func (r *Router) Send(ctx context.Context, sender *models.User, receiverID int64, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if n := utf8.RuneCountInString(body); n < models.MinMessageLength || n > models.MaxMessageLength {
		return nil, models.Validation("message must be between %d and %d characters", models.MinMessageLength, models.MaxMessageLength)
	}
	if err := r.requireContact(ctx, sender.ID, receiverID); err != nil {
		return nil, err
	}

	msg, err := r.store.CreateMessage(ctx, sender.ID, receiverID, body, r.now().UTC())
	if err != nil {
		return nil, models.Storage("create message", err)
	}
	r.metrics.IncMessage()

	delivered, err := r.pusher.Deliver(receiverID, models.Event{
		Type:    models.EventNewMessage,
		Payload: models.NewMessagePayload{Message: *msg, Sender: sender.Profile()},
	})
	if err != nil {
		r.metrics.IncPushFailure()
		r.logger.Warn("message push failed",
			zap.Int64("message_id", msg.ID), zap.Int64("user_id", sender.ID), zap.Int64("peer_id", receiverID), zap.Error(err))
	}
	r.logger.Debug("message sent",
		zap.Int64("message_id", msg.ID), zap.Int64("user_id", sender.ID), zap.Int64("peer_id", receiverID), zap.Int("sessions", delivered))
	return msg, nil
}

// History returns the latest messages between owner and peer, oldest first,
// and marks the fetched messages from peer as read.
func (r *Router) History(ctx context.Context, ownerID, peerID int64) ([]models.Message, error) {
	msgs, err := r.Peek(ctx, ownerID, peerID)
	if err != nil {
		return nil, err
	}

	var newest int64
	for _, m := range msgs {
		if m.ID > newest {
			newest = m.ID
		}
	}
	if newest == 0 {
		return msgs, nil
	}
	if _, err := r.store.MarkMessagesAsRead(ctx, peerID, ownerID, newest); err != nil {
		return nil, models.Storage("mark read", err)
	}
	for i := range msgs {
		if msgs[i].ReceiverID == ownerID {
			msgs[i].IsRead = true
		}
	}
	return msgs, nil
}

// Peek is History without the read side effect.
func (r *Router) Peek(ctx context.Context, ownerID, peerID int64) ([]models.Message, error) {
	if err := r.requireContact(ctx, ownerID, peerID); err != nil {
		return nil, err
	}
	msgs, err := r.store.GetMessagesBetweenUsers(ctx, ownerID, peerID, r.historyLimit)
	if err != nil {
		return nil, models.Storage("get messages", err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

func (r *Router) requireContact(ctx context.Context, ownerID, peerID int64) error {
	return requireContact(ctx, r.store, ownerID, peerID)
}

func requireContact(ctx context.Context, store Store, ownerID, peerID int64) error {
	ok, err := store.ContactExists(ctx, ownerID, peerID)
	if err != nil {
		return models.Storage("check contact", err)
	}
	if !ok {
		return models.NotFound("contact")
	}
	return nil
}
