package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func UserRoom(userID uuid.UUID) string {
	return "user:" + userID.String()
}

func ConversationRoom(conversationID uuid.UUID) string {
	return "conversation:" + conversationID.String()
}

// Hub tracks live sessions and the rooms they are in. Every session is in
// its user's personal room; conversation rooms are joined on request.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	// sessions counts local sessions per user.
	sessions map[uuid.UUID]int

	log *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		rooms:    make(map[string]map[*Client]struct{}),
		sessions: make(map[uuid.UUID]int),
		log:      log,
	}
}

// Register adds the client to its personal room and reports whether it is
// the user's first session on this process.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.join(c, UserRoom(c.userID))
	h.sessions[c.userID]++
	first := h.sessions[c.userID] == 1
	h.log.Debug("ws hub: client registered",
		zap.Stringer("user_id", c.userID),
		zap.Int("sessions", h.sessions[c.userID]),
	)
	return first
}

// Unregister removes the client from every room and reports whether it was
// the user's last session on this process. Unregistering twice is a no-op.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := c.rooms[UserRoom(c.userID)]; !ok {
		return false
	}
	for room := range c.rooms {
		h.leave(c, room)
	}

	h.sessions[c.userID]--
	last := h.sessions[c.userID] <= 0
	if last {
		delete(h.sessions, c.userID)
	}
	h.log.Debug("ws hub: client unregistered", zap.Stringer("user_id", c.userID), zap.Bool("last", last))
	return last
}

func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.join(c, room)
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(c, room)
}

func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

func (h *Hub) SessionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[userID]
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Emit delivers evt to every client in room except the given one (may be
// nil). A client whose send buffer is full is disconnected.
func (h *Hub) Emit(room string, evt *Event, except *Client) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("ws hub: marshal error", zap.String("type", evt.Type), zap.Error(err))
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.rooms[room] {
		if c == except {
			continue
		}
		if !c.trySend(data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("ws hub: send buffer full, dropping client", zap.Stringer("user_id", c.userID))
		c.close()
	}
}

// EmitToUser delivers evt to every session of userID.
func (h *Hub) EmitToUser(userID uuid.UUID, evt *Event) {
	h.Emit(UserRoom(userID), evt, nil)
}

func (h *Hub) join(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}
