package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/domain"
	"go.uber.org/zap"
)

// HubNotifier implements service.Notifier using the WebSocket Hub. Events go
// to the recipient's personal room so every session of theirs sees them.
type HubNotifier struct {
	hub *Hub
	log *zap.Logger
}

func NewHubNotifier(hub *Hub, log *zap.Logger) *HubNotifier {
	return &HubNotifier{hub: hub, log: log}
}

func (n *HubNotifier) NotifyNewMessage(recipientID uuid.UUID, msg *domain.Message) {
	n.emit(recipientID, EventTypeNewMessage, NewMessagePayload{Message: msg, ConversationID: msg.ConversationID})
}

func (n *HubNotifier) NotifyEditedMessage(recipientID uuid.UUID, msg *domain.Message) {
	n.emit(recipientID, EventTypeMessageEdited, NewMessagePayload{Message: msg, ConversationID: msg.ConversationID})
}

func (n *HubNotifier) NotifyDeletedMessage(recipientID, conversationID, messageID uuid.UUID) {
	n.emit(recipientID, EventTypeMessageDeleted, MessageDeletedPayload{ConversationID: conversationID, MessageID: messageID})
}

func (n *HubNotifier) NotifyMessagesRead(recipientID, conversationID, readerID uuid.UUID, readAt time.Time) {
	n.emit(recipientID, EventTypeMessagesRead, MessagesReadPayload{ConversationID: conversationID, UserID: readerID, ReadAt: readAt})
}

func (n *HubNotifier) emit(recipientID uuid.UUID, eventType string, payload any) {
	evt, err := NewEvent(eventType, payload)
	if err != nil {
		n.log.Error("ws notifier: marshal error", zap.String("type", eventType), zap.Error(err))
		return
	}
	n.hub.EmitToUser(recipientID, evt)
}
