package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/domain"
	"github.com/vedran77/riffchat/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type MessageService struct {
	store         repository.Store
	conversations *ConversationService
	notifier      Notifier
}

func NewMessageService(store repository.Store, conversations *ConversationService) *MessageService {
	return &MessageService{store: store, conversations: conversations}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

type SendInput struct {
	domain.BodyInput
	ReplyTo *uuid.UUID `json:"replyTo,omitempty"`
}

type SendToUserInput struct {
	ReceiverID uuid.UUID `json:"receiverId"`
	SendInput
}

type MessagePage struct {
	Messages []domain.Message `json:"messages"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	HasMore  bool             `json:"hasMore"`
}

// Send stores a message and records it on the conversation in one
// transaction, then notifies the recipient.
func (s *MessageService) Send(ctx context.Context, conversationID, senderID uuid.UUID, input SendInput) (*domain.Message, error) {
	var (
		msg       *domain.Message
		recipient uuid.UUID
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		conv, err := tx.Conversations().GetByID(ctx, conversationID)
		if err != nil {
			return err
		}
		if conv == nil {
			return ErrConversationNotFound
		}
		if !conv.HasParticipant(senderID) {
			return ErrNotParticipant
		}

		body, err := input.Parse()
		if err != nil {
			return err
		}

		if input.ReplyTo != nil {
			parent, err := tx.Messages().GetByID(ctx, *input.ReplyTo)
			if err != nil {
				return err
			}
			if parent == nil || parent.ConversationID != conversationID {
				return ErrInvalidReply
			}
		}

		msg = &domain.Message{
			ID:             uuid.New(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Body:           body,
			ReplyTo:        input.ReplyTo,
			CreatedAt:      now(),
		}
		if err := tx.Messages().Create(ctx, msg); err != nil {
			return err
		}
		if err := tx.Conversations().RecordNewMessage(ctx, conversationID, msg); err != nil {
			return err
		}
		recipient = conv.OtherParticipant(senderID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NotifyNewMessage(recipient, msg)
	}
	return msg, nil
}

// SendToUser is the first-message path: it finds or creates the conversation
// with the recipient and sends into it.
func (s *MessageService) SendToUser(ctx context.Context, senderID uuid.UUID, input SendToUserInput) (*domain.Message, error) {
	if _, err := input.Parse(); err != nil {
		return nil, err
	}
	conv, err := s.conversations.FindOrCreate(ctx, senderID, input.ReceiverID)
	if err != nil {
		return nil, err
	}
	return s.Send(ctx, conv.ID, senderID, input.SendInput)
}

// List returns one page of undeleted messages, oldest first within the page,
// and marks the conversation read for the requester. Page 1 holds the newest
// messages.
func (s *MessageService) List(ctx context.Context, conversationID, requesterID uuid.UUID, page, limit int) (*MessagePage, error) {
	if _, err := s.conversations.Get(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	messages, err := s.store.Messages().ListByConversation(ctx, conversationID, (page-1)*limit, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[1:]
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	if _, err := s.MarkRead(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}

	return &MessagePage{Messages: messages, Page: page, Limit: limit, HasMore: hasMore}, nil
}

// MarkRead flags every message addressed to userID as read and resets the
// unread counter. It returns the number of messages that changed.
func (s *MessageService) MarkRead(ctx context.Context, conversationID, userID uuid.UUID) (int64, error) {
	conv, err := s.conversations.Get(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}

	readAt := now()
	var marked int64
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Conversations().LockUnread(ctx, conversationID, userID); err != nil {
			return err
		}
		n, err := tx.Messages().MarkRead(ctx, conversationID, userID, readAt)
		if err != nil {
			return err
		}
		marked = n
		return tx.Conversations().ResetUnread(ctx, conversationID, userID)
	})
	if err != nil {
		return 0, err
	}

	if marked > 0 && s.notifier != nil {
		s.notifier.NotifyMessagesRead(conv.OtherParticipant(userID), conversationID, userID, readAt)
	}
	return marked, nil
}

// Delete soft-deletes a message. Only the sender may delete. A message that
// was still unread no longer counts towards the recipient's unread counter.
func (s *MessageService) Delete(ctx context.Context, messageID, requesterID uuid.UUID) error {
	var (
		msg       *domain.Message
		recipient uuid.UUID
		changed   bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		msg, err = tx.Messages().GetByID(ctx, messageID)
		if err != nil {
			return err
		}
		if msg == nil {
			return ErrMessageNotFound
		}
		if msg.SenderID != requesterID {
			return ErrNotMessageOwner
		}
		if msg.IsDeleted {
			return nil
		}

		conv, err := tx.Conversations().GetByID(ctx, msg.ConversationID)
		if err != nil {
			return err
		}
		if conv == nil {
			return ErrConversationNotFound
		}
		recipient = conv.OtherParticipant(requesterID)

		// The read above may be stale. Whether the message is still live and
		// unread is decided by SoftDelete under the counter lock.
		if _, err := tx.Conversations().LockUnread(ctx, conv.ID, recipient); err != nil {
			return err
		}
		deleted, wasUnread, err := tx.Messages().SoftDelete(ctx, messageID, requesterID, now())
		if err != nil || !deleted {
			return err
		}
		if wasUnread {
			if err := tx.Conversations().DecrementUnread(ctx, conv.ID, recipient); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}

	if changed && s.notifier != nil {
		s.notifier.NotifyDeletedMessage(recipient, msg.ConversationID, messageID)
	}
	return nil
}

// Edit replaces the text of a text message. Only the sender may edit.
func (s *MessageService) Edit(ctx context.Context, messageID, requesterID uuid.UUID, text string) (*domain.Message, error) {
	var (
		msg       *domain.Message
		recipient uuid.UUID
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		msg, err = tx.Messages().GetByID(ctx, messageID)
		if err != nil {
			return err
		}
		if msg == nil {
			return ErrMessageNotFound
		}
		if msg.SenderID != requesterID {
			return ErrNotMessageOwner
		}
		if err := msg.Edit(text, now()); err != nil {
			return err
		}
		updated, err := tx.Messages().Update(ctx, msg)
		if err != nil {
			return err
		}
		if !updated {
			return ErrMessageDeleted
		}

		conv, err := tx.Conversations().GetByID(ctx, msg.ConversationID)
		if err != nil {
			return err
		}
		if conv != nil {
			recipient = conv.OtherParticipant(requesterID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if recipient != uuid.Nil && s.notifier != nil {
		s.notifier.NotifyEditedMessage(recipient, msg)
	}
	return msg, nil
}
