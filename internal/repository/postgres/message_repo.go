package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vedran77/riffchat/internal/domain"
)

type MessageRepo struct {
	q querier
}

const messageColumns = `id, conversation_id, sender_id, message_type, content, attachment, listing_id, reply_to,
	is_read, read_at, is_deleted, deleted_at, deleted_by, is_edited, edited_at, original_message, created_at`

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	content, attachment, listingID, err := bodyColumns(msg.Body)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, message_type, content, attachment, listing_id, reply_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.q.Exec(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, string(msg.Type()),
		content, attachment, listingID, msg.ReplyTo, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	msg, err := scanMessage(r.q.QueryRow(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.q.Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// query is newest first, callers want chronological
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE messages SET is_read = TRUE, read_at = $3
		WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read AND NOT is_deleted`,
		conversationID, readerID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id, deletedBy uuid.UUID, at time.Time) (bool, bool, error) {
	var isRead bool
	err := r.q.QueryRow(ctx, `
		UPDATE messages SET is_deleted = TRUE, deleted_at = $2, deleted_by = $3
		WHERE id = $1 AND NOT is_deleted
		RETURNING is_read`,
		id, at, deletedBy,
	).Scan(&isRead)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("deleting message: %w", err)
	}
	return true, !isRead, nil
}

func (r *MessageRepo) Update(ctx context.Context, msg *domain.Message) (bool, error) {
	content, attachment, listingID, err := bodyColumns(msg.Body)
	if err != nil {
		return false, err
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE messages
		SET content = $2, attachment = $3, listing_id = $4,
			is_edited = $5, edited_at = $6, original_message = $7
		WHERE id = $1 AND NOT is_deleted`,
		msg.ID, content, attachment, listingID, msg.IsEdited, msg.EditedAt, msg.OriginalMessage,
	)
	if err != nil {
		return false, fmt.Errorf("updating message: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func bodyColumns(body domain.Body) (*string, []byte, *uuid.UUID, error) {
	switch b := body.(type) {
	case domain.TextBody:
		return &b.Text, nil, nil, nil
	case domain.MediaBody:
		raw, err := json.Marshal(b.Attachment)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encoding attachment: %w", err)
		}
		return nil, raw, nil, nil
	case domain.ListingBody:
		return nil, nil, &b.ListingID, nil
	}
	return nil, nil, nil, fmt.Errorf("message has no body")
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		m          domain.Message
		msgType    string
		content    *string
		attachment []byte
		listingID  *uuid.UUID
	)
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &msgType, &content, &attachment, &listingID, &m.ReplyTo,
		&m.IsRead, &m.ReadAt, &m.IsDeleted, &m.DeletedAt, &m.DeletedBy,
		&m.IsEdited, &m.EditedAt, &m.OriginalMessage, &m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	var att *domain.Attachment
	if attachment != nil {
		att = new(domain.Attachment)
		if err := json.Unmarshal(attachment, att); err != nil {
			return nil, fmt.Errorf("decoding attachment: %w", err)
		}
	}
	m.Body, err = domain.BodyFromParts(domain.MessageType(msgType), content, att, listingID)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
