package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/domain"
)

type MessageRepo struct {
	s *Store
}

func (r *MessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.s.lock()
	defer r.s.unlock()

	r.s.data.messages[msg.ID] = *msg
	r.s.data.byConversation[msg.ConversationID] = append(r.s.data.byConversation[msg.ConversationID], msg.ID)
	return nil
}

func (r *MessageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.s.lock()
	defer r.s.unlock()

	m, ok := r.s.data.messages[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *MessageRepo) ListByConversation(_ context.Context, conversationID uuid.UUID, offset, limit int) ([]domain.Message, error) {
	r.s.lock()
	defer r.s.unlock()

	// newest first, then reversed
	var page []domain.Message
	ids := r.s.data.byConversation[conversationID]
	skipped := 0
	for i := len(ids) - 1; i >= 0 && len(page) < limit; i-- {
		m := r.s.data.messages[ids[i]]
		if m.IsDeleted {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		page = append(page, m)
	}
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

func (r *MessageRepo) MarkRead(_ context.Context, conversationID, readerID uuid.UUID, at time.Time) (int64, error) {
	r.s.lock()
	defer r.s.unlock()

	var n int64
	for _, id := range r.s.data.byConversation[conversationID] {
		m := r.s.data.messages[id]
		if m.SenderID == readerID || m.IsRead || m.IsDeleted {
			continue
		}
		readAt := at
		m.IsRead = true
		m.ReadAt = &readAt
		r.s.data.messages[id] = m
		n++
	}
	return n, nil
}

func (r *MessageRepo) SoftDelete(_ context.Context, id, deletedBy uuid.UUID, at time.Time) (bool, bool, error) {
	r.s.lock()
	defer r.s.unlock()

	m, ok := r.s.data.messages[id]
	if !ok || m.IsDeleted {
		return false, false, nil
	}
	by := deletedBy
	m.IsDeleted = true
	m.DeletedAt = &at
	m.DeletedBy = &by
	r.s.data.messages[id] = m
	return true, !m.IsRead, nil
}

func (r *MessageRepo) Update(_ context.Context, msg *domain.Message) (bool, error) {
	r.s.lock()
	defer r.s.unlock()

	m, ok := r.s.data.messages[msg.ID]
	if !ok || m.IsDeleted {
		return false, nil
	}
	m.Body = msg.Body
	m.IsEdited = msg.IsEdited
	m.EditedAt = msg.EditedAt
	m.OriginalMessage = msg.OriginalMessage
	r.s.data.messages[msg.ID] = m
	return true, nil
}
