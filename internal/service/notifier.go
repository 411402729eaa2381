package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/domain"
)

// Notifier pushes realtime events to a user's connected sessions. Delivery is
// best effort and happens after the write has committed.
type Notifier interface {
	NotifyNewMessage(recipientID uuid.UUID, msg *domain.Message)
	NotifyEditedMessage(recipientID uuid.UUID, msg *domain.Message)
	NotifyDeletedMessage(recipientID, conversationID, messageID uuid.UUID)
	NotifyMessagesRead(recipientID, conversationID, readerID uuid.UUID, readAt time.Time)
}

// now is the timestamp stored with every write. Postgres keeps microseconds.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
