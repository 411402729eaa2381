package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/riffchat/internal/apperr"
	"github.com/vedran77/riffchat/internal/domain"
)

func TestTwoMessagesThenRead(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "alice"), f.user(t, "bob")
	ctx := context.Background()

	first, err := f.messages.SendToUser(ctx, a, SendToUserInput{ReceiverID: b, SendInput: text("hi")})
	require.NoError(t, err)
	second, err := f.messages.SendToUser(ctx, a, SendToUserInput{ReceiverID: b, SendInput: text("there")})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	conv, err := f.store.Conversations().GetByID(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.UnreadFor(b))
	assert.Equal(t, 0, conv.UnreadFor(a))
	assert.Equal(t, second.ID, *conv.LastMessageID)

	page, err := f.messages.List(ctx, conv.ID, b, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "hi", page.Messages[0].Text())
	assert.Equal(t, "there", page.Messages[1].Text())
	assert.Equal(t, 50, page.Limit)
	assert.False(t, page.HasMore)

	conv, err = f.store.Conversations().GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadFor(b))
	unreadMatches(t, f.store, conv.ID, b)

	assert.Equal(t, []string{"new_message", "new_message", "messages_read"}, f.notifier.kinds())
	assert.Equal(t, b, f.notifier.events[0].recipientID)
	assert.Equal(t, a, f.notifier.events[2].recipientID)
}

func TestEmptyTextIsRejectedWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "alice"), f.user(t, "bob")
	ctx := context.Background()
	conv, err := f.conversations.FindOrCreate(ctx, a, b)
	require.NoError(t, err)

	_, err = f.messages.Send(ctx, conv.ID, a, text("   "))
	assert.True(t, apperr.Is(err, apperr.InvalidInput))

	stored, err := f.store.Conversations().GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UnreadFor(b))
	assert.Nil(t, stored.LastMessageID)
	msgs, err := f.store.Messages().ListByConversation(ctx, conv.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, f.notifier.kinds())

	_, err = f.messages.SendToUser(ctx, a, SendToUserInput{ReceiverID: f.user(t, "carol"), SendInput: text("")})
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
	list, err := f.conversations.List(ctx, a)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSendChecksConversation(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	ctx := context.Background()
	conv, err := f.conversations.FindOrCreate(ctx, a, b)
	require.NoError(t, err)

	_, err = f.messages.Send(ctx, conv.ID, c, text("hi"))
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.messages.Send(ctx, uuid.New(), a, text("hi"))
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = f.messages.List(ctx, conv.ID, c, 1, 10)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestSendVariants(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "alice"), f.user(t, "bob")
	ctx := context.Background()
	conv, err := f.conversations.FindOrCreate(ctx, a, b)
	require.NoError(t, err)

	listingID := uuid.New()
	listing, err := f.messages.Send(ctx, conv.ID, a, SendInput{BodyInput: domain.BodyInput{MessageType: domain.MessageTypeListing, ListingID: &listingID}})
	require.NoError(t, err)
	assert.Equal(t, domain.ListingBody{ListingID: listingID}, listing.Body)

	att := &domain.Attachment{Filename: "cover.jpg", MimeType: "image/jpeg", Size: 1024, URL: "https://cdn/cover.jpg"}
	image, err := f.messages.Send(ctx, conv.ID, b, SendInput{
		BodyInput: domain.BodyInput{MessageType: domain.MessageTypeImage, Attachment: att},
		ReplyTo:   &listing.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeImage, image.Type())
	assert.Equal(t, listing.ID, *image.ReplyTo)

	other, err := f.conversations.FindOrCreate(ctx, a, f.user(t, "carol"))
	require.NoError(t, err)
	_, err = f.messages.Send(ctx, other.ID, a, SendInput{BodyInput: text("x").BodyInput, ReplyTo: &listing.ID})
	assert.ErrorIs(t, err, ErrInvalidReply)
}

func TestDeleteRules(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "alice"), f.user(t, "bob")
	ctx := context.Background()

	m1, err := f.messages.SendToUser(ctx, a, SendToUserInput{ReceiverID: b, SendInput: text("one")})
	require.NoError(t, err)
	m2, err := f.messages.SendToUser(ctx, a, SendToUserInput{ReceiverID: b, SendInput: text("two")})
	require.NoError(t, err)
	convID := m1.ConversationID

	err = f.messages.Delete(ctx, m1.ID, b)
	assert.ErrorIs(t, err, ErrNotMessageOwner)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	require.NoError(t, f.messages.Delete(ctx, m1.ID, a))
	unreadMatches(t, f.store, convID, b)
	require.NoError(t, f.messages.Delete(ctx, m1.ID, a))
	unreadMatches(t, f.store, convID, b)

	conv, err := f.store.Conversations().GetByID(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadFor(b))

	page, err := f.messages.List(ctx, convID, b, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, m2.ID, page.Messages[0].ID)

	// read messages do not move the counter when deleted
	require.NoError(t, f.messages.Delete(ctx, m2.ID, a))
	unreadMatches(t, f.store, convID, b)

	stored, err := f.store.Messages().GetByID(ctx, m1.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
	assert.Equal(t, a, *stored.DeletedBy)

	assert.ErrorIs(t, f.messages.Delete(ctx, uuid.New(), a), ErrMessageNotFound)
	assert.Equal(t, 2, countKind(f.notifier.kinds(), "message_deleted"))
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "alice"), f.user(t, "bob")
	ctx := context.Background()

	msg, err := f.messages.SendToUser(ctx, a, SendToUserInput{ReceiverID: b, SendInput: text("hi")})
	require.NoError(t, err)

	n, err := f.messages.MarkRead(ctx, msg.ConversationID, b)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = f.messages.MarkRead(ctx, msg.ConversationID, b)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	// the sender's own messages stay unread for the sender's view
	n, err = f.messages.MarkRead(ctx, msg.ConversationID, a)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	stored, err := f.store.Messages().GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRead)
	assert.NotNil(t, stored.ReadAt)
	unreadMatches(t, f.store, msg.ConversationID, b)
	assert.Equal(t, 1, countKind(f.notifier.kinds(), "messages_read"))
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "alice"), f.user(t, "bob")
	ctx := context.Background()

	msg, err := f.messages.SendToUser(ctx, a, SendToUserInput{ReceiverID: b, SendInput: text("helo")})
	require.NoError(t, err)

	_, err = f.messages.Edit(ctx, msg.ID, b, "hijack")
	assert.ErrorIs(t, err, ErrNotMessageOwner)

	edited, err := f.messages.Edit(ctx, msg.ID, a, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Text())
	assert.Equal(t, "helo", *edited.OriginalMessage)
	assert.True(t, edited.IsEdited)

	_, err = f.messages.Edit(ctx, msg.ID, a, " ")
	assert.True(t, apperr.Is(err, apperr.InvalidInput))

	stored, err := f.store.Messages().GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Text())
	assert.Equal(t, 1, countKind(f.notifier.kinds(), "message_edited"))
}

func TestListPaging(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "alice"), f.user(t, "bob")
	ctx := context.Background()

	var convID uuid.UUID
	for i := 0; i < 5; i++ {
		msg, err := f.messages.SendToUser(ctx, a, SendToUserInput{ReceiverID: b, SendInput: text(string(rune('a' + i)))})
		require.NoError(t, err)
		convID = msg.ConversationID
	}

	page, err := f.messages.List(ctx, convID, b, 1, 2)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "d", page.Messages[0].Text())
	assert.Equal(t, "e", page.Messages[1].Text())

	page, err = f.messages.List(ctx, convID, b, 3, 2)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "a", page.Messages[0].Text())

	page, err = f.messages.List(ctx, convID, b, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.Limit)
}

func TestUnreadCountMatchesUnreadMessages(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "alice"), f.user(t, "bob")
	ctx := context.Background()
	conv, err := f.conversations.FindOrCreate(ctx, a, b)
	require.NoError(t, err)

	var sent []uuid.UUID
	for i := 0; i < 6; i++ {
		from := a
		if i%3 == 2 {
			from = b
		}
		msg, err := f.messages.Send(ctx, conv.ID, from, text("m"))
		require.NoError(t, err)
		sent = append(sent, msg.ID)
		unreadMatches(t, f.store, conv.ID, a)
		unreadMatches(t, f.store, conv.ID, b)
	}

	require.NoError(t, f.messages.Delete(ctx, sent[0], a))
	require.NoError(t, f.messages.Delete(ctx, sent[2], b))
	unreadMatches(t, f.store, conv.ID, a)
	unreadMatches(t, f.store, conv.ID, b)

	_, err = f.messages.MarkRead(ctx, conv.ID, a)
	require.NoError(t, err)
	require.NoError(t, f.messages.Delete(ctx, sent[5], b))
	unreadMatches(t, f.store, conv.ID, a)
	unreadMatches(t, f.store, conv.ID, b)
}

func countKind(kinds []string, kind string) int {
	n := 0
	for _, k := range kinds {
		if k == kind {
			n++
		}
	}
	return n
}

