package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/apperr"
	"github.com/vedran77/riffchat/internal/domain"
	"github.com/vedran77/riffchat/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
)

const opTimeout = 5 * time.Second

type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*domain.User, error)
}

type MembershipChecker interface {
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

type PresenceTracker interface {
	Connected(ctx context.Context, userID uuid.UUID) error
	Disconnected(ctx context.Context, userID uuid.UUID) error
}

type GatewayOptions struct {
	// OriginPatterns lists allowed browser origins. "*" allows any origin.
	OriginPatterns []string
	EventRate      rate.Limit
	EventBurst     int
	Metrics        *metrics.Metrics
}

// Gateway upgrades authenticated requests to realtime sessions and handles
// the events clients send.
type Gateway struct {
	hub      *Hub
	auth     Authenticator
	members  MembershipChecker
	presence PresenceTracker
	log      *zap.Logger
	opts     GatewayOptions
}

func NewGateway(hub *Hub, auth Authenticator, members MembershipChecker, presence PresenceTracker, log *zap.Logger, opts GatewayOptions) *Gateway {
	if opts.EventRate == 0 {
		opts.EventRate = rate.Inf
	}
	if opts.EventBurst <= 0 {
		opts.EventBurst = 1
	}
	return &Gateway{
		hub:      hub,
		auth:     auth,
		members:  members,
		presence: presence,
		log:      log,
		opts:     opts,
	}
}

// credential returns the bearer token from the handshake: the token query
// parameter, then the Authorization header, then X-Auth-Token.
func credential(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.Header.Get("X-Auth-Token")
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tok := credential(r)
	if tok == "" {
		rejectHandshake(w, "Authentication token required")
		return
	}
	user, err := g.auth.Authenticate(r.Context(), tok)
	if err != nil {
		if !apperr.Is(err, apperr.AuthFailed) {
			g.log.Error("ws: authenticate", zap.Error(err))
		}
		rejectHandshake(w, "Invalid authentication token")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.opts.OriginPatterns,
		InsecureSkipVerify: slices.Contains(g.opts.OriginPatterns, "*"),
	})
	if err != nil {
		g.log.Warn("ws: accept error", zap.Error(err))
		return
	}

	client := NewClient(r.Context(), conn, user.ID, rate.NewLimiter(g.opts.EventRate, g.opts.EventBurst), g.log)
	g.connect(client)
	defer func() {
		g.disconnect(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	go client.WritePump()
	client.ReadPump(g.handleEvent)
}

func rejectHandshake(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
		"error":   apperr.AuthFailed.String(),
	})
}

func (g *Gateway) connect(c *Client) {
	g.hub.Register(c)
	if m := g.opts.Metrics; m != nil {
		m.WSConnections.Inc()
	}

	ctx, cancel := context.WithTimeout(c.ctx, opTimeout)
	defer cancel()
	if err := g.presence.Connected(ctx, c.userID); err != nil {
		c.log.Error("ws: presence connected", zap.Error(err))
	} else {
		c.online = true
	}
	c.log.Info("ws: client connected", zap.Int("sessions", g.hub.SessionCount(c.userID)))
}

func (g *Gateway) disconnect(c *Client) {
	c.close()
	g.hub.Unregister(c)
	if m := g.opts.Metrics; m != nil {
		m.WSConnections.Dec()
	}

	if c.online {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := g.presence.Disconnected(ctx, c.userID); err != nil {
			c.log.Error("ws: presence disconnected", zap.Error(err))
		}
	}
	c.log.Info("ws: client disconnected", zap.Int("sessions", g.hub.SessionCount(c.userID)))
}

// handleEvent routes an incoming client event. Events that are malformed,
// unauthorized, unknown or over the rate limit are dropped.
func (g *Gateway) handleEvent(c *Client, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("ws: panic handling event", zap.String("type", event.Type), zap.Any("panic", r))
		}
	}()

	if !c.limiter.Allow() {
		g.drop(c, event, "rate_limited")
		return
	}

	switch event.Type {
	case EventTypeJoinConversation:
		g.received(event.Type)
		g.join(c, event)

	case EventTypeLeaveConversation:
		g.received(event.Type)
		var p ConversationPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.ConversationID == uuid.Nil {
			g.drop(c, event, "invalid_payload")
			return
		}
		g.hub.Leave(c, ConversationRoom(p.ConversationID))

	case EventTypeTypingStart, EventTypeTypingStop:
		g.received(event.Type)
		g.typing(c, event)

	case EventTypeMessageRead:
		g.received(event.Type)
		g.readReceipt(c, event)

	case EventTypePing:
		g.received(event.Type)
		if pong, err := NewEvent(EventTypePong, nil); err == nil {
			c.sendEvent(pong)
		}

	default:
		g.drop(c, event, "unknown_event")
	}
}

func (g *Gateway) join(c *Client, event *Event) {
	var p ConversationPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil || p.ConversationID == uuid.Nil {
		g.drop(c, event, "invalid_payload")
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, opTimeout)
	defer cancel()
	ok, err := g.members.IsParticipant(ctx, p.ConversationID, c.userID)
	if err != nil {
		c.log.Error("ws: membership check", zap.Stringer("conversation_id", p.ConversationID), zap.Error(err))
		g.drop(c, event, "internal")
		return
	}
	if !ok {
		g.drop(c, event, "not_participant")
		return
	}

	room := ConversationRoom(p.ConversationID)
	g.hub.Join(c, room)
	c.log.Debug("ws: joined conversation", zap.String("room", room), zap.Int("members", g.hub.RoomSize(room)))

	evt, err := NewEvent(EventTypeUserJoined, UserJoinedPayload{ConversationID: p.ConversationID, UserID: c.userID})
	if err != nil {
		return
	}
	g.hub.Emit(room, evt, c)
}

func (g *Gateway) typing(c *Client, event *Event) {
	var p ConversationPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil || p.ConversationID == uuid.Nil {
		g.drop(c, event, "invalid_payload")
		return
	}
	room := ConversationRoom(p.ConversationID)
	if !g.hub.InRoom(c, room) {
		g.drop(c, event, "not_joined")
		return
	}

	eventType := EventTypeUserTyping
	if event.Type == EventTypeTypingStop {
		eventType = EventTypeUserStopTyping
	}
	evt, err := NewEvent(eventType, TypingPayload{ConversationID: p.ConversationID, UserID: c.userID})
	if err != nil {
		return
	}
	g.hub.Emit(room, evt, c)
}

func (g *Gateway) readReceipt(c *Client, event *Event) {
	var p MessageReadPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil || p.ConversationID == uuid.Nil || p.MessageID == uuid.Nil {
		g.drop(c, event, "invalid_payload")
		return
	}
	room := ConversationRoom(p.ConversationID)
	if !g.hub.InRoom(c, room) {
		g.drop(c, event, "not_joined")
		return
	}

	evt, err := NewEvent(EventTypeReadReceipt, ReadReceiptPayload{
		ConversationID: p.ConversationID,
		MessageID:      p.MessageID,
		UserID:         c.userID,
		ReadAt:         time.Now().UTC(),
	})
	if err != nil {
		return
	}
	g.hub.Emit(room, evt, c)
}

func (g *Gateway) received(eventType string) {
	if m := g.opts.Metrics; m != nil {
		m.WSEventsReceived.WithLabelValues(eventType).Inc()
	}
}

func (g *Gateway) drop(c *Client, event *Event, reason string) {
	c.log.Debug("ws: dropping event", zap.String("type", event.Type), zap.String("reason", reason))
	if m := g.opts.Metrics; m != nil {
		m.WSEventsDropped.WithLabelValues(reason).Inc()
	}
}
