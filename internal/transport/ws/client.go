package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256
)

// Client represents a single WebSocket connection.
type Client struct {
	conn   *websocket.Conn
	userID uuid.UUID

	// rooms is owned by the Hub and guarded by its mutex.
	rooms map[string]struct{}

	limiter *rate.Limiter
	log     *zap.Logger

	// online is set when presence counted this session. Only the
	// connection's own goroutine touches it.
	online bool

	send      chan []byte
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewClient(ctx context.Context, conn *websocket.Conn, userID uuid.UUID, limiter *rate.Limiter, log *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		conn:    conn,
		userID:  userID,
		rooms:   make(map[string]struct{}),
		limiter: limiter,
		log:     log.With(zap.Stringer("user_id", userID)),
		send:    make(chan []byte, sendBufSize),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// trySend queues data without blocking. It reports false when the buffer is
// full.
func (c *Client) trySend(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) sendEvent(evt *Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.trySend(data)
}

// close stops both pumps. The read pump's caller closes the socket.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
}

// ReadPump reads events until the connection fails or the client is closed.
// Frames that are not valid events are dropped without closing the socket.
func (c *Client) ReadPump(handle func(*Client, *Event)) {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)

	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.log.Debug("ws: client disconnected")
			} else if c.ctx.Err() == nil {
				c.log.Debug("ws: read error", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			c.log.Debug("ws: dropping binary frame")
			continue
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil || event.Type == "" {
			c.log.Debug("ws: dropping malformed event")
			continue
		}

		handle(c, &event)
	}
}

// WritePump writes queued events and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.log.Debug("ws: write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.log.Debug("ws: ping error", zap.Error(err))
				return
			}

		case <-c.done:
			return
		}
	}
}
