package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/riffchat/internal/domain"
	"github.com/vedran77/riffchat/internal/repository/memory"
	"github.com/vedran77/riffchat/internal/service"
	"github.com/vedran77/riffchat/internal/token"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type gatewayEnv struct {
	srv           *httptest.Server
	hub           *Hub
	auth          *service.AuthService
	conversations *service.ConversationService
	messages      *service.MessageService
	presence      *service.PresenceService
}

func newGatewayEnv(t *testing.T, opts ...GatewayOptions) *gatewayEnv {
	t.Helper()
	o := GatewayOptions{OriginPatterns: []string{"*"}}
	if len(opts) > 0 {
		o = opts[0]
	}
	store := memory.NewStore()
	auth := service.NewAuthService(store.Users(), token.NewManager("secret", time.Hour))
	conversations := service.NewConversationService(store)
	messages := service.NewMessageService(store, conversations)
	presence := service.NewPresenceService(store.Users(), service.NewLocalSessionCounter())

	hub := NewHub(zap.NewNop())
	messages.SetNotifier(NewHubNotifier(hub, zap.NewNop()))
	gw := NewGateway(hub, auth, conversations, presence, zap.NewNop(), o)

	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)

	return &gatewayEnv{srv: srv, hub: hub, auth: auth, conversations: conversations, messages: messages, presence: presence}
}

func (e *gatewayEnv) register(t *testing.T, name string) (uuid.UUID, string) {
	t.Helper()
	resp, err := e.auth.Register(context.Background(), service.RegisterInput{
		Email:       name + "@example.com",
		Username:    name,
		DisplayName: name,
		Password:    "Secret123",
	})
	require.NoError(t, err)
	return resp.User.ID, resp.AccessToken
}

func (e *gatewayEnv) url(query string) string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + query
}

func (e *gatewayEnv) dial(t *testing.T, userID uuid.UUID, tok string) *websocket.Conn {
	t.Helper()
	before := e.hub.SessionCount(userID)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, e.url("?token="+tok), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	require.Eventually(t, func() bool { return e.hub.SessionCount(userID) == before+1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()
	evt, err := NewEvent(eventType, payload)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, evt))
}

func read(t *testing.T, conn *websocket.Conn) *Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var evt Event
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	return &evt
}

func TestHandshakeRejectsBadCredentials(t *testing.T) {
	e := newGatewayEnv(t)
	userID, _ := e.register(t, "alice")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, e.url(""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged, err := token.NewManager("other-secret", time.Hour).Issue(userID)
	require.NoError(t, err)
	_, resp, err = websocket.Dial(ctx, e.url("?token="+forged), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	unknown, err := token.NewManager("secret", time.Hour).Issue(uuid.New())
	require.NoError(t, err)
	_, resp, err = websocket.Dial(ctx, e.url("?token="+unknown), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Equal(t, 0, e.hub.SessionCount(userID))
	assert.Equal(t, 0, e.hub.RoomSize(UserRoom(userID)))
	p, err := e.presence.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, p.IsOnline)
}

func TestHandshakeHeaderCredentials(t *testing.T) {
	e := newGatewayEnv(t)
	userID, tok := e.register(t, "alice")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, header := range []http.Header{
		{"Authorization": {"Bearer " + tok}},
		{"X-Auth-Token": {tok}},
	} {
		conn, _, err := websocket.Dial(ctx, e.url(""), &websocket.DialOptions{HTTPHeader: header})
		require.NoError(t, err)
		send(t, conn, EventTypePing, nil)
		assert.Equal(t, EventTypePong, read(t, conn).Type)
		conn.Close(websocket.StatusNormalClosure, "")
	}

	require.Eventually(t, func() bool { return e.hub.SessionCount(userID) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestNewMessageReachesConnectedRecipient(t *testing.T) {
	e := newGatewayEnv(t)
	alice, _ := e.register(t, "alice")
	bob, bobToken := e.register(t, "bob")
	conn := e.dial(t, bob, bobToken)

	content := "is the guitar still available?"
	msg, err := e.messages.SendToUser(context.Background(), alice, service.SendToUserInput{
		ReceiverID: bob,
		SendInput:  service.SendInput{BodyInput: domain.BodyInput{Content: &content}},
	})
	require.NoError(t, err)

	evt := read(t, conn)
	require.Equal(t, EventTypeNewMessage, evt.Type)

	var payload NewMessagePayload
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, msg.ConversationID, payload.ConversationID)
	assert.Equal(t, msg.ID, payload.Message.ID)
	assert.Equal(t, content, payload.Message.Text())
	assert.Equal(t, alice, payload.Message.SenderID)
}

func TestTypingRequiresJoin(t *testing.T) {
	e := newGatewayEnv(t)
	alice, aliceToken := e.register(t, "alice")
	bob, bobToken := e.register(t, "bob")
	conv, err := e.conversations.FindOrCreate(context.Background(), alice, bob)
	require.NoError(t, err)
	room := ConversationRoom(conv.ID)

	aliceConn := e.dial(t, alice, aliceToken)
	bobConn := e.dial(t, bob, bobToken)

	send(t, bobConn, EventTypeJoinConversation, ConversationPayload{ConversationID: conv.ID})
	require.Eventually(t, func() bool { return e.hub.RoomSize(room) == 1 }, 2*time.Second, 5*time.Millisecond)

	// not joined yet: dropped
	send(t, aliceConn, EventTypeTypingStart, ConversationPayload{ConversationID: conv.ID})
	send(t, aliceConn, EventTypePing, nil)
	assert.Equal(t, EventTypePong, read(t, aliceConn).Type)

	send(t, aliceConn, EventTypeJoinConversation, ConversationPayload{ConversationID: conv.ID})
	joined := read(t, bobConn)
	require.Equal(t, EventTypeUserJoined, joined.Type)

	send(t, aliceConn, EventTypeTypingStart, ConversationPayload{ConversationID: conv.ID})
	typing := read(t, bobConn)
	require.Equal(t, EventTypeUserTyping, typing.Type)
	var p TypingPayload
	require.NoError(t, json.Unmarshal(typing.Payload, &p))
	assert.Equal(t, alice, p.UserID)
	assert.Equal(t, conv.ID, p.ConversationID)

	send(t, aliceConn, EventTypeTypingStop, ConversationPayload{ConversationID: conv.ID})
	assert.Equal(t, EventTypeUserStopTyping, read(t, bobConn).Type)

	messageID := uuid.New()
	send(t, aliceConn, EventTypeMessageRead, MessageReadPayload{ConversationID: conv.ID, MessageID: messageID})
	receipt := read(t, bobConn)
	require.Equal(t, EventTypeReadReceipt, receipt.Type)
	var rp ReadReceiptPayload
	require.NoError(t, json.Unmarshal(receipt.Payload, &rp))
	assert.Equal(t, messageID, rp.MessageID)
	assert.Equal(t, alice, rp.UserID)

	// alice never hears her own events
	send(t, aliceConn, EventTypePing, nil)
	assert.Equal(t, EventTypePong, read(t, aliceConn).Type)
}

func TestJoinRequiresParticipant(t *testing.T) {
	e := newGatewayEnv(t)
	alice, _ := e.register(t, "alice")
	bob, _ := e.register(t, "bob")
	mallory, malloryToken := e.register(t, "mallory")
	conv, err := e.conversations.FindOrCreate(context.Background(), alice, bob)
	require.NoError(t, err)

	conn := e.dial(t, mallory, malloryToken)
	send(t, conn, EventTypeJoinConversation, ConversationPayload{ConversationID: conv.ID})
	send(t, conn, EventTypePing, nil)
	assert.Equal(t, EventTypePong, read(t, conn).Type)

	assert.Equal(t, 0, e.hub.RoomSize(ConversationRoom(conv.ID)))
}

func TestMalformedEventsKeepConnection(t *testing.T) {
	e := newGatewayEnv(t)
	alice, tok := e.register(t, "alice")
	conn := e.dial(t, alice, tok)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	send(t, conn, "launch_rockets", nil)
	send(t, conn, EventTypeTypingStart, nil)

	send(t, conn, EventTypePing, nil)
	assert.Equal(t, EventTypePong, read(t, conn).Type)
}

func TestPresenceFollowsConnection(t *testing.T) {
	e := newGatewayEnv(t)
	alice, tok := e.register(t, "alice")
	ctx := context.Background()

	conn := e.dial(t, alice, tok)
	require.Eventually(t, func() bool {
		p, err := e.presence.Get(ctx, alice)
		return err == nil && p.IsOnline
	}, 2*time.Second, 5*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool {
		p, err := e.presence.Get(ctx, alice)
		return err == nil && !p.IsOnline && p.LastSeen != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, e.hub.SessionCount(alice))
}

func TestEventRateLimit(t *testing.T) {
	e := newGatewayEnv(t, GatewayOptions{
		OriginPatterns: []string{"*"},
		EventRate:      rate.Every(time.Hour),
		EventBurst:     1,
	})
	alice, tok := e.register(t, "alice")
	conn := e.dial(t, alice, tok)

	send(t, conn, EventTypePing, nil)
	assert.Equal(t, EventTypePong, read(t, conn).Type)

	send(t, conn, EventTypePing, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	var evt Event
	assert.Error(t, wsjson.Read(ctx, conn, &evt))
}

type unavailablePresence struct {
	mu          sync.Mutex
	disconnects int
}

func (p *unavailablePresence) Connected(context.Context, uuid.UUID) error {
	return errors.New("session store unavailable")
}

func (p *unavailablePresence) Disconnected(context.Context, uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnects++
	return nil
}

func TestUncountedSessionIsNotDecremented(t *testing.T) {
	e := newGatewayEnv(t)
	alice, tok := e.register(t, "alice")

	core, logs := observer.New(zap.DebugLevel)
	presence := &unavailablePresence{}
	srv := httptest.NewServer(NewGateway(e.hub, e.auth, e.conversations, presence, zap.New(core), GatewayOptions{OriginPatterns: []string{"*"}}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"?token="+tok, nil)
	require.NoError(t, err)

	// the session still works without presence
	send(t, conn, EventTypePing, nil)
	assert.Equal(t, EventTypePong, read(t, conn).Type)
	assert.Equal(t, 1, e.hub.SessionCount(alice))

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool {
		return logs.FilterMessage("ws: client disconnected").Len() == 1
	}, 2*time.Second, 5*time.Millisecond)

	presence.mu.Lock()
	defer presence.mu.Unlock()
	assert.Zero(t, presence.disconnects)
	assert.Equal(t, 0, e.hub.SessionCount(alice))
}
