package memory

import (
	"context"
	"maps"
	"sort"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/domain"
)

type ConversationRepo struct {
	s *Store
}

func (r *ConversationRepo) Create(_ context.Context, conv *domain.Conversation) (bool, error) {
	r.s.lock()
	defer r.s.unlock()

	key := [2]uuid.UUID{conv.User1ID, conv.User2ID}
	if _, ok := r.s.data.pairs[key]; ok {
		return false, nil
	}
	stored := *conv
	stored.UnreadCount = map[uuid.UUID]int{conv.User1ID: 0, conv.User2ID: 0}
	r.s.data.conversations[conv.ID] = stored
	r.s.data.pairs[key] = conv.ID
	return true, nil
}

func (r *ConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.s.lock()
	defer r.s.unlock()
	return r.get(id), nil
}

func (r *ConversationRepo) GetByParticipants(_ context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error) {
	r.s.lock()
	defer r.s.unlock()

	id, ok := r.s.data.pairs[[2]uuid.UUID{user1ID, user2ID}]
	if !ok {
		return nil, nil
	}
	return r.get(id), nil
}

func (r *ConversationRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	r.s.lock()
	defer r.s.unlock()

	var convs []domain.Conversation
	for id, c := range r.s.data.conversations {
		if c.IsActive && c.HasParticipant(userID) {
			convs = append(convs, *r.get(id))
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		a, b := convs[i], convs[j]
		switch {
		case a.LastMessageAt != nil && b.LastMessageAt != nil && !a.LastMessageAt.Equal(*b.LastMessageAt):
			return a.LastMessageAt.After(*b.LastMessageAt)
		case a.LastMessageAt != nil && b.LastMessageAt == nil:
			return true
		case a.LastMessageAt == nil && b.LastMessageAt != nil:
			return false
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return convs, nil
}

func (r *ConversationRepo) RecordNewMessage(_ context.Context, conversationID uuid.UUID, msg *domain.Message) error {
	r.s.lock()
	defer r.s.unlock()

	c, ok := r.s.data.conversations[conversationID]
	if !ok {
		return nil
	}
	if c.LastMessageAt == nil || !msg.CreatedAt.Before(*c.LastMessageAt) {
		id, at := msg.ID, msg.CreatedAt
		c.LastMessageID = &id
		c.LastMessageAt = &at
	}
	for _, p := range c.Participants() {
		if p != msg.SenderID {
			c.UnreadCount[p]++
		}
	}
	r.s.data.conversations[conversationID] = c
	return nil
}

func (r *ConversationRepo) LockUnread(_ context.Context, conversationID, userID uuid.UUID) (int, error) {
	r.s.lock()
	defer r.s.unlock()
	return r.s.data.conversations[conversationID].UnreadCount[userID], nil
}

func (r *ConversationRepo) ResetUnread(_ context.Context, conversationID, userID uuid.UUID) error {
	r.s.lock()
	defer r.s.unlock()

	if c, ok := r.s.data.conversations[conversationID]; ok && c.HasParticipant(userID) {
		c.UnreadCount[userID] = 0
	}
	return nil
}

func (r *ConversationRepo) DecrementUnread(_ context.Context, conversationID, userID uuid.UUID) error {
	r.s.lock()
	defer r.s.unlock()

	if c, ok := r.s.data.conversations[conversationID]; ok && c.UnreadCount[userID] > 0 {
		c.UnreadCount[userID]--
	}
	return nil
}

// get returns a copy that callers may mutate freely. Caller holds the lock.
func (r *ConversationRepo) get(id uuid.UUID) *domain.Conversation {
	c, ok := r.s.data.conversations[id]
	if !ok {
		return nil
	}
	c.UnreadCount = maps.Clone(c.UnreadCount)
	return &c
}
