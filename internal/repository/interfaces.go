package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/domain"
)

// Lookups return (nil, nil) when the row does not exist.

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	SetPresence(ctx context.Context, id uuid.UUID, online bool, lastSeen *time.Time) error
}

type ConversationRepository interface {
	// Create inserts the conversation and its participant rows unless the
	// pair already exists. It reports whether a row was inserted.
	Create(ctx context.Context, conv *domain.Conversation) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	GetByParticipants(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error)
	RecordNewMessage(ctx context.Context, conversationID uuid.UUID, msg *domain.Message) error
	// LockUnread reads a participant's counter and holds it until the
	// surrounding transaction ends.
	LockUnread(ctx context.Context, conversationID, userID uuid.UUID) (int, error)
	ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error
	DecrementUnread(ctx context.Context, conversationID, userID uuid.UUID) error
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	// ListByConversation returns undeleted messages oldest first. offset and
	// limit page from the newest message backwards.
	ListByConversation(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]domain.Message, error)
	// MarkRead flags every undeleted unread message not sent by readerID and
	// returns how many rows changed.
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, at time.Time) (int64, error)
	// SoftDelete marks an undeleted message deleted. It reports whether it
	// changed the row and whether the message was still unread at that point.
	SoftDelete(ctx context.Context, id, deletedBy uuid.UUID, at time.Time) (changed, wasUnread bool, err error)
	// Update writes the body and edit fields of an undeleted message. It
	// reports false when the message is missing or deleted.
	Update(ctx context.Context, msg *domain.Message) (bool, error)
}

// Store groups the repositories so that several writes can share a
// transaction.
type Store interface {
	Users() UserRepository
	Conversations() ConversationRepository
	Messages() MessageRepository
	// WithTx runs fn inside a transaction. Returning an error rolls back.
	// Calls nested inside fn reuse the outer transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}
