package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/apperr"
	"github.com/vedran77/riffchat/internal/domain"
	"github.com/vedran77/riffchat/internal/repository"
)

type ConversationService struct {
	store repository.Store
}

func NewConversationService(store repository.Store) *ConversationService {
	return &ConversationService{store: store}
}

// FindOrCreate returns the conversation between two users, creating it with
// zeroed unread counters on first use. Concurrent callers for the same pair
// get the same conversation.
func (s *ConversationService) FindOrCreate(ctx context.Context, userID, otherUserID uuid.UUID) (*domain.Conversation, error) {
	if userID == otherUserID {
		return nil, ErrCannotMessageSelf
	}

	for _, id := range []uuid.UUID{userID, otherUserID} {
		u, err := s.store.Users().GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, ErrUserNotFound
		}
	}

	u1, u2 := domain.CanonicalPair(userID, otherUserID)
	conv, err := s.store.Conversations().GetByParticipants(ctx, u1, u2)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv = domain.NewConversation(userID, otherUserID, now())
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		_, err := tx.Conversations().Create(ctx, conv)
		return err
	})
	if err != nil && !apperr.Is(err, apperr.Conflict) {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	// Whoever won the insert, the pair now has exactly one row.
	conv, err = s.store.Conversations().GetByParticipants(ctx, u1, u2)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.New(apperr.Internal, "conversation vanished after create")
	}
	return conv, nil
}

// Get returns the conversation if userID participates in it.
func (s *ConversationService) Get(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.store.Conversations().GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

func (s *ConversationService) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	_, err := s.Get(ctx, conversationID, userID)
	switch {
	case err == nil:
		return true, nil
	case apperr.Is(err, apperr.NotFound), apperr.Is(err, apperr.Forbidden):
		return false, nil
	default:
		return false, err
	}
}

// List returns the active conversations of userID, most recent activity first.
func (s *ConversationService) List(ctx context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error) {
	convs, err := s.store.Conversations().ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.ConversationSummary, 0, len(convs))
	for i := range convs {
		sum, err := s.Summarize(ctx, &convs[i], userID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *sum)
	}
	return summaries, nil
}

// Summarize decorates a conversation for one viewer.
func (s *ConversationService) Summarize(ctx context.Context, conv *domain.Conversation, viewerID uuid.UUID) (*domain.ConversationSummary, error) {
	sum := &domain.ConversationSummary{
		ID:            conv.ID,
		Participants:  conv.Participants(),
		LastMessageAt: conv.LastMessageAt,
		UnreadCount:   conv.UnreadFor(viewerID),
		IsActive:      conv.IsActive,
		CreatedAt:     conv.CreatedAt,
	}

	other, err := s.store.Users().GetByID(ctx, conv.OtherParticipant(viewerID))
	if err != nil {
		return nil, err
	}
	if other != nil {
		sum.OtherUser = other.Profile()
	}

	if conv.LastMessageID != nil {
		last, err := s.store.Messages().GetByID(ctx, *conv.LastMessageID)
		if err != nil {
			return nil, err
		}
		sum.LastMessage = last
	}
	return sum, nil
}
