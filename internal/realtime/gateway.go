package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vthuan-dev/bufforder-sub001/internal/auth"
	"github.com/vthuan-dev/bufforder-sub001/internal/chat"
	"github.com/vthuan-dev/bufforder-sub001/internal/httperr"
	"github.com/vthuan-dev/bufforder-sub001/internal/metrics"
	"github.com/vthuan-dev/bufforder-sub001/internal/models"
	"github.com/vthuan-dev/bufforder-sub001/internal/store"
)

const eventTimeout = 10 * time.Second

// PresenceTracker is the part of presence.Tracker the gateway drives.
type PresenceTracker interface {
	Connect(ctx context.Context, userID string) bool
	Disconnect(ctx context.Context, userID string) bool
}

type Options struct {
	EventsPerSecond float64
	EventBurst      int
	SendBuffer      int
	AllowedOrigins  []string
}

// Gateway authenticates websocket connections and dispatches their events.
type Gateway struct {
	hub      *Hub
	jwt      *auth.JWTManager
	chat     *chat.Service
	presence PresenceTracker
	opts     Options
	upgrader websocket.Upgrader
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGateway(hub *Hub, jwt *auth.JWTManager, svc *chat.Service, presence PresenceTracker, opts Options, log zerolog.Logger) *Gateway {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.EventsPerSecond <= 0 {
		opts.EventsPerSecond = 10
	}
	if opts.EventBurst <= 0 {
		opts.EventBurst = 20
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		hub:      hub,
		jwt:      jwt,
		chat:     svc,
		presence: presence,
		opts:     opts,
		log:      log.With().Str("component", "realtime-gateway").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range g.opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// authenticate applies the handshake rules: exactly one of the token or
// adminToken query parameters, or else a bearer header tried as an end-user
// token and then as a staff token.
func (g *Gateway) authenticate(r *http.Request) (auth.Identity, error) {
	q := r.URL.Query()
	userToken := strings.TrimSpace(q.Get("token"))
	staffToken := strings.TrimSpace(q.Get("adminToken"))

	switch {
	case userToken != "" && staffToken != "":
		return auth.Identity{}, errors.New("provide either token or adminToken, not both")
	case userToken != "":
		return g.jwt.ParseUserToken(userToken)
	case staffToken != "":
		return g.jwt.ParseStaffToken(staffToken)
	}

	if bearer := auth.BearerToken(r.Header.Get("Authorization")); bearer != "" {
		return g.jwt.ParseAny(bearer)
	}
	return auth.Identity{}, errors.New("missing token")
}

// ServeWS rejects unauthenticated requests before upgrading, then runs the
// connection until it closes.
func (g *Gateway) ServeWS(c *gin.Context) {
	id, err := g.authenticate(c.Request)
	if err != nil {
		g.log.Debug().Err(err).Msg("realtime handshake rejected")
		httperr.WriteUnauthorized(c, "unauthorized")
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	limiter := rate.NewLimiter(rate.Limit(g.opts.EventsPerSecond), g.opts.EventBurst)
	client := newClient(g.hub, conn, id, limiter, g.opts.SendBuffer, g.log)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.run(client)
	}()
}

func (g *Gateway) run(c *Client) {
	role := string(c.identity.Role)
	metrics.RecordConnectionOpened(role)
	defer metrics.RecordConnectionClosed(role)

	if c.identity.IsStaff() {
		g.hub.Join(c, StaffRoom)
	} else {
		g.hub.Join(c, UserRoom(c.identity.ID))
		g.presence.Connect(g.ctx, c.identity.ID)
	}
	c.log.Debug().Msg("realtime connection opened")

	go c.writePump()
	c.readPump(g.ctx, g.handle)

	g.hub.LeaveAll(c)
	if !c.identity.IsStaff() {
		// Presence bookkeeping must finish even during shutdown.
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		g.presence.Disconnect(ctx, c.identity.ID)
		cancel()
	}
	c.log.Debug().Msg("realtime connection closed")
}

// Shutdown closes every connection and waits for their handlers to finish.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.cancel()
	g.hub.CloseAll()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) handle(ctx context.Context, c *Client, env Envelope) {
	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	var err error
	switch env.Event {
	case models.EventJoinThread:
		err = g.onJoinThread(ctx, c, env.Data)
	case models.EventSendMessage:
		err = g.onSendMessage(ctx, c, env.Data)
	case models.EventTyping:
		err = g.onTyping(c, env.Data)
	default:
		metrics.RecordEvent("unknown", "rejected")
		c.emitError(env.Event, "unsupported event")
		return
	}

	if err != nil {
		metrics.RecordEvent(env.Event, "error")
		c.log.Debug().Err(err).Str("event", env.Event).Msg("realtime event failed")
		c.emitError(env.Event, clientMessage(err))
		return
	}
	metrics.RecordEvent(env.Event, "ok")
}

var errBadPayload = errors.New("invalid payload")

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errBadPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errBadPayload
	}
	return nil
}

func (g *Gateway) onJoinThread(ctx context.Context, c *Client, data json.RawMessage) error {
	var p models.JoinThreadPayload
	if err := decode(data, &p); err != nil || p.ThreadID == "" {
		return errBadPayload
	}
	if _, err := g.chat.AuthorizeThread(ctx, c.identity, p.ThreadID); err != nil {
		return err
	}
	g.hub.Join(c, ThreadRoom(p.ThreadID))
	return nil
}

func (g *Gateway) onSendMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var p models.SendMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if strings.TrimSpace(p.Text) == "" {
		return chat.ErrEmptyMessage
	}

	// A user without a thread id writes to their open thread; join its room
	// before sending so this connection receives the message too.
	if p.ThreadID == "" && !c.identity.IsStaff() {
		thread, err := g.chat.OpenThread(ctx, c.identity.ID, "")
		if err != nil {
			return err
		}
		g.hub.Join(c, ThreadRoom(thread.ID))
		p.ThreadID = thread.ID
	}

	_, _, err := g.chat.Send(ctx, c.identity, chat.SendInput{
		ThreadID:  p.ThreadID,
		Text:      p.Text,
		Transport: chat.TransportRealtime,
	})
	return err
}

func (g *Gateway) onTyping(c *Client, data json.RawMessage) error {
	var p models.TypingPayload
	if err := decode(data, &p); err != nil || p.ThreadID == "" {
		return errBadPayload
	}
	room := ThreadRoom(p.ThreadID)
	if !g.hub.InRoom(c, room) {
		return store.ErrNotFound
	}
	b, err := encode(models.EventTypingBroadcast, models.TypingBroadcastPayload{
		ThreadID:   p.ThreadID,
		Typing:     p.Typing,
		SenderRole: c.identity.Role,
	})
	if err != nil {
		return err
	}
	g.hub.BroadcastExcept(c, b, room)
	return nil
}

// clientMessage keeps internal error text off the wire.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "thread not found"
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrThreadRequired),
		errors.Is(err, chat.ErrThreadClosed),
		errors.Is(err, errBadPayload):
		return err.Error()
	default:
		return "internal error"
	}
}
