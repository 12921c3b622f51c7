package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vthuan-dev/bufforder-sub001/internal/auth"
	"github.com/vthuan-dev/bufforder-sub001/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// Client is one authenticated websocket connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	identity auth.Identity
	limiter  *rate.Limiter
	rooms    map[string]struct{} // guarded by hub.mu
	log      zerolog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, id auth.Identity, limiter *rate.Limiter, buffer int, log zerolog.Logger) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
		identity: id,
		limiter:  limiter,
		rooms:    make(map[string]struct{}),
		log:      log.With().Str("role", string(id.Role)).Str("identity", id.ID).Logger(),
	}
}

// enqueue queues payload without blocking. It reports false when the
// buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// emit queues an event for this connection only.
func (c *Client) emit(event string, data any) {
	b, err := encode(event, data)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("encode event failed")
		return
	}
	if !c.enqueue(b) {
		c.close()
	}
}

func (c *Client) emitError(event, message string) {
	if !c.enqueue(errorFrame(event, message)) {
		c.close()
	}
}

// close asks the write pump to send a close frame and drop the connection.
// Safe to call from any goroutine, any number of times.
func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// readPump handles inbound events one at a time, so a connection's own
// events are processed in the order it sent them.
func (c *Client) readPump(ctx context.Context, handle func(context.Context, *Client, Envelope)) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("read error")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			metrics.RecordEvent("invalid", "rejected")
			c.emitError("", "invalid frame")
			continue
		}
		if !c.limiter.Allow() {
			metrics.RecordEvent(env.Event, "rate_limited")
			c.emitError(env.Event, "rate limit exceeded")
			continue
		}
		handle(ctx, c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
