package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Conversation is a two-party thread. Participants are kept in canonical
// order (User1ID < User2ID) so a pair maps to exactly one row.
type Conversation struct {
	ID            uuid.UUID
	User1ID       uuid.UUID
	User2ID       uuid.UUID
	LastMessageID *uuid.UUID
	LastMessageAt *time.Time
	UnreadCount   map[uuid.UUID]int
	IsActive      bool
	CreatedAt     time.Time
}

// NewConversation builds a conversation between a and b with zeroed unread
// counters. The caller is expected to have rejected a == b.
func NewConversation(a, b uuid.UUID, now time.Time) *Conversation {
	u1, u2 := CanonicalPair(a, b)
	return &Conversation{
		ID:          uuid.New(),
		User1ID:     u1,
		User2ID:     u2,
		UnreadCount: map[uuid.UUID]int{u1: 0, u2: 0},
		IsActive:    true,
		CreatedAt:   now,
	}
}

// CanonicalPair orders two user ids so that the first sorts lower.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

func (c *Conversation) Participants() []uuid.UUID {
	return []uuid.UUID{c.User1ID, c.User2ID}
}

func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherParticipant returns the participant that is not userID. It returns
// uuid.Nil when userID is not a participant.
func (c *Conversation) OtherParticipant(userID uuid.UUID) uuid.UUID {
	switch userID {
	case c.User1ID:
		return c.User2ID
	case c.User2ID:
		return c.User1ID
	default:
		return uuid.Nil
	}
}

// UnreadFor returns the participant's unread counter, 0 when absent.
func (c *Conversation) UnreadFor(userID uuid.UUID) int {
	if c.UnreadCount == nil {
		return 0
	}
	return c.UnreadCount[userID]
}

func (c Conversation) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID            uuid.UUID         `json:"id"`
		Participants  []uuid.UUID       `json:"participants"`
		LastMessageID *uuid.UUID        `json:"lastMessage,omitempty"`
		LastMessageAt *time.Time        `json:"lastMessageTime,omitempty"`
		UnreadCount   map[uuid.UUID]int `json:"unreadCount"`
		IsActive      bool              `json:"isActive"`
		CreatedAt     time.Time         `json:"createdAt"`
	}
	unread := c.UnreadCount
	if unread == nil {
		unread = map[uuid.UUID]int{}
	}
	return json.Marshal(wire{
		ID:            c.ID,
		Participants:  c.Participants(),
		LastMessageID: c.LastMessageID,
		LastMessageAt: c.LastMessageAt,
		UnreadCount:   unread,
		IsActive:      c.IsActive,
		CreatedAt:     c.CreatedAt,
	})
}

// ConversationSummary is a conversation as seen by one participant: the other
// side's profile, the last message and the viewer's own unread counter.
type ConversationSummary struct {
	ID            uuid.UUID     `json:"id"`
	Participants  []uuid.UUID   `json:"participants"`
	OtherUser     PublicProfile `json:"otherUser"`
	LastMessage   *Message      `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time    `json:"lastMessageTime,omitempty"`
	UnreadCount   int           `json:"unreadCount"`
	IsActive      bool          `json:"isActive"`
	CreatedAt     time.Time     `json:"createdAt"`
}
