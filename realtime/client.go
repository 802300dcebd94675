package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"duochat/logging"
	"duochat/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMsgSize     = 8192
	sendBufferSize = 256
)

// Client represents one WebSocket connection of an authenticated user
type Client struct {
	id       string
	user     *models.User
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	presence *Presence
	typing   *Typing
	logger   *zap.Logger
}

// NewClient wraps an upgraded connection. Call Run to serve it.
func NewClient(conn *websocket.Conn, user *models.User, presence *Presence, typing *Typing, logger *zap.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:       id,
		user:     user,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		presence: presence,
		typing:   typing,
		logger:   logging.OrNop(logger).With(zap.String("conn_id", id), zap.Int64("user_id", user.ID)),
	}
}

func (c *Client) ID() string    { return c.id }
func (c *Client) UserID() int64 { return c.user.ID }

// Send queues a payload for the write pump. A client that cannot keep up is
// closed rather than allowed to stall the sender.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("%w: connection closed", models.ErrDelivery)
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return fmt.Errorf("%w: connection closed", models.ErrDelivery)
	default:
		c.Close()
		return fmt.Errorf("%w: send buffer full", models.ErrDelivery)
	}
}

// Close stops the pumps. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Run admits the client to presence and serves it until the connection
// ends. It blocks; the write pump runs on its own goroutine.
func (c *Client) Run(ctx context.Context) {
	c.presence.Connect(ctx, c.user, c)
	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.Close()
		c.presence.Disconnect(ctx, c.user, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		c.handle(ctx, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handle dispatches one inbound frame. Frames from a connection are handled
// in arrival order because only the read pump calls this.
func (c *Client) handle(ctx context.Context, raw []byte) {
	var in models.InboundEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		c.sendError(models.Validation("malformed event"))
		return
	}

	switch in.Type {
	case models.EventClientTyping, models.EventClientStopTyping:
		var payload models.PeerPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil || payload.PeerID <= 0 {
			c.sendError(models.Validation("peer_id is required"))
			return
		}
		if in.Type == models.EventClientStopTyping {
			c.typing.Stop(c.user.ID, payload.PeerID)
			return
		}
		if err := c.typing.Start(ctx, c.user.ID, payload.PeerID); err != nil {
			if errors.Is(err, models.ErrStorage) {
				c.logger.Error("typing failed", zap.Int64("peer_id", payload.PeerID), zap.Error(err))
			}
			c.sendError(err)
		}
	default:
		c.sendError(models.Validation("unknown event type %q", in.Type))
	}
}

func (c *Client) sendError(err error) {
	msg := err.Error()
	if errors.Is(err, models.ErrStorage) {
		msg = "server error"
	}
	payload, _ := json.Marshal(models.Event{
		Type:    models.EventError,
		Payload: models.ErrorPayload{Error: msg},
	})
	_ = c.Send(payload)
}
