package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vedran77/riffchat/internal/apperr"
	"github.com/vedran77/riffchat/internal/domain"
)

type ConversationRepo struct {
	q querier
}

const conversationSelect = `
	SELECT c.id, c.user1_id, c.user2_id, c.last_message_id, c.last_message_at, c.is_active, c.created_at,
		COALESCE(p1.unread_count, 0), COALESCE(p2.unread_count, 0)
	FROM conversations c
	LEFT JOIN conversation_participants p1 ON p1.conversation_id = c.id AND p1.user_id = c.user1_id
	LEFT JOIN conversation_participants p2 ON p2.conversation_id = c.id AND p2.user_id = c.user2_id`

func (r *ConversationRepo) Create(ctx context.Context, conv *domain.Conversation) (bool, error) {
	query := `
		INSERT INTO conversations (id, user1_id, user2_id, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user1_id, user2_id) DO NOTHING`
	tag, err := r.q.Exec(ctx, query, conv.ID, conv.User1ID, conv.User2ID, conv.IsActive, conv.CreatedAt)
	if isUniqueViolation(err) {
		return false, apperr.Wrap(apperr.Conflict, "conversation already exists", err)
	}
	if err != nil {
		return false, fmt.Errorf("inserting conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id, unread_count)
		VALUES ($1, $2, 0), ($1, $3, 0)`,
		conv.ID, conv.User1ID, conv.User2ID,
	)
	if err != nil {
		return false, fmt.Errorf("inserting participants: %w", err)
	}
	return true, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	return r.scanOne(ctx, conversationSelect+" WHERE c.id = $1", id)
}

func (r *ConversationRepo) GetByParticipants(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error) {
	return r.scanOne(ctx, conversationSelect+" WHERE c.user1_id = $1 AND c.user2_id = $2", user1ID, user2ID)
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	query := conversationSelect + `
		WHERE (c.user1_id = $1 OR c.user2_id = $1) AND c.is_active
		ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

func (r *ConversationRepo) RecordNewMessage(ctx context.Context, conversationID uuid.UUID, msg *domain.Message) error {
	_, err := r.q.Exec(ctx, `
		UPDATE conversations
		SET last_message_id = $2, last_message_at = $3
		WHERE id = $1 AND (last_message_at IS NULL OR last_message_at <= $3)`,
		conversationID, msg.ID, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating last message: %w", err)
	}

	_, err = r.q.Exec(ctx, `
		UPDATE conversation_participants
		SET unread_count = unread_count + 1
		WHERE conversation_id = $1 AND user_id <> $2`,
		conversationID, msg.SenderID,
	)
	if err != nil {
		return fmt.Errorf("incrementing unread: %w", err)
	}
	return nil
}

func (r *ConversationRepo) LockUnread(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT unread_count FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2
		FOR UPDATE`,
		conversationID, userID,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("locking unread: %w", err)
	}
	return n, nil
}

func (r *ConversationRepo) ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `
		UPDATE conversation_participants SET unread_count = 0
		WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("resetting unread: %w", err)
	}
	return nil
}

func (r *ConversationRepo) DecrementUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `
		UPDATE conversation_participants SET unread_count = GREATEST(unread_count - 1, 0)
		WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("decrementing unread: %w", err)
	}
	return nil
}

func (r *ConversationRepo) scanOne(ctx context.Context, query string, args ...any) (*domain.Conversation, error) {
	conv, err := scanConversation(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return conv, err
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var c domain.Conversation
	var unread1, unread2 int
	err := row.Scan(
		&c.ID, &c.User1ID, &c.User2ID, &c.LastMessageID, &c.LastMessageAt, &c.IsActive, &c.CreatedAt,
		&unread1, &unread2,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	c.UnreadCount = map[uuid.UUID]int{c.User1ID: unread1, c.User2ID: unread2}
	return &c, nil
}
