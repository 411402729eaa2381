package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/domain"
)

// Event types - Client → Server
const (
	EventTypeJoinConversation  = "join_conversation"
	EventTypeLeaveConversation = "leave_conversation"
	EventTypeTypingStart       = "typing_start"
	EventTypeTypingStop        = "typing_stop"
	EventTypeMessageRead       = "message_read"
	EventTypePing              = "ping"
)

// Event types - Server → Client
const (
	EventTypeNewMessage     = "new_message"
	EventTypeMessageEdited  = "message_edited"
	EventTypeMessageDeleted = "message_deleted"
	EventTypeMessagesRead   = "messages_read"
	EventTypeUserJoined     = "user_joined_conversation"
	EventTypeUserTyping     = "user_typing"
	EventTypeUserStopTyping = "user_stop_typing"
	EventTypeReadReceipt    = "message_read_receipt"
	EventTypePong           = "pong"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type ConversationPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
}

type MessageReadPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      uuid.UUID `json:"messageId"`
}

// --- Server → Client payloads ---

type NewMessagePayload struct {
	Message        *domain.Message `json:"message"`
	ConversationID uuid.UUID       `json:"conversationId"`
}

type MessageDeletedPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      uuid.UUID `json:"messageId"`
}

type MessagesReadPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         uuid.UUID `json:"userId"`
	ReadAt         time.Time `json:"readAt"`
}

type UserJoinedPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         uuid.UUID `json:"userId"`
}

type TypingPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         uuid.UUID `json:"userId"`
}

type ReadReceiptPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      uuid.UUID `json:"messageId"`
	UserID         uuid.UUID `json:"userId"`
	ReadAt         time.Time `json:"readAt"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, payload any) (*Event, error) {
	evt := &Event{Type: eventType, Timestamp: time.Now().Unix()}
	if payload == nil {
		return evt, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	evt.Payload = data
	return evt, nil
}
