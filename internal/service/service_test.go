package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/riffchat/internal/domain"
	"github.com/vedran77/riffchat/internal/repository"
	"github.com/vedran77/riffchat/internal/repository/memory"
)

type notification struct {
	kind           string
	recipientID    uuid.UUID
	conversationID uuid.UUID
	messageID      uuid.UUID
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) add(e notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) NotifyNewMessage(recipientID uuid.UUID, msg *domain.Message) {
	n.add(notification{"new_message", recipientID, msg.ConversationID, msg.ID})
}

func (n *recordingNotifier) NotifyEditedMessage(recipientID uuid.UUID, msg *domain.Message) {
	n.add(notification{"message_edited", recipientID, msg.ConversationID, msg.ID})
}

func (n *recordingNotifier) NotifyDeletedMessage(recipientID, conversationID, messageID uuid.UUID) {
	n.add(notification{"message_deleted", recipientID, conversationID, messageID})
}

func (n *recordingNotifier) NotifyMessagesRead(recipientID, conversationID, _ uuid.UUID, _ time.Time) {
	n.add(notification{"messages_read", recipientID, conversationID, uuid.Nil})
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		out = append(out, e.kind)
	}
	return out
}

type fixture struct {
	store         *memory.Store
	conversations *ConversationService
	messages      *MessageService
	notifier      *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	conversations := NewConversationService(store)
	messages := NewMessageService(store, conversations)
	notifier := &recordingNotifier{}
	messages.SetNotifier(notifier)
	return &fixture{store: store, conversations: conversations, messages: messages, notifier: notifier}
}

func (f *fixture) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	u := &domain.User{
		ID:          uuid.New(),
		Email:       name + "@example.com",
		Username:    name,
		DisplayName: name,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	return u.ID
}

func text(s string) SendInput {
	return SendInput{BodyInput: domain.BodyInput{MessageType: domain.MessageTypeText, Content: &s}}
}

// unreadMatches checks that the stored counter equals the number of undeleted
// unread messages addressed to userID.
func unreadMatches(t *testing.T, store repository.Store, conversationID, userID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	conv, err := store.Conversations().GetByID(ctx, conversationID)
	require.NoError(t, err)
	all, err := store.Messages().ListByConversation(ctx, conversationID, 0, 10000)
	require.NoError(t, err)

	want := 0
	for _, m := range all {
		if m.SenderID != userID && !m.IsRead && !m.IsDeleted {
			want++
		}
	}
	require.Equal(t, want, conv.UnreadFor(userID))
}

// statementStore makes each storage call atomic but lets transactions
// interleave, like READ COMMITTED. pause, when set, runs once right after the
// next message lookup so a test can slip another operation in.
type statementStore struct {
	*memory.Store
	mu    sync.Mutex
	pause func()
}

func (s *statementStore) Messages() repository.MessageRepository {
	return pausingMessages{MessageRepository: s.Store.Messages(), s: s}
}

func (s *statementStore) WithTx(_ context.Context, fn func(repository.Store) error) error {
	return fn(s)
}

func (s *statementStore) pauseOnce(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pause = fn
}

func (s *statementStore) takePause() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn := s.pause
	s.pause = nil
	return fn
}

type pausingMessages struct {
	repository.MessageRepository
	s *statementStore
}

func (m pausingMessages) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	msg, err := m.MessageRepository.GetByID(ctx, id)
	if fn := m.s.takePause(); fn != nil {
		fn()
	}
	return msg, err
}

// newInterleavedFixture runs the services on a statementStore. Assertions
// read through f.store, which shares its data.
func newInterleavedFixture(t *testing.T) (*fixture, *statementStore) {
	t.Helper()
	inner := memory.NewStore()
	store := &statementStore{Store: inner}
	conversations := NewConversationService(store)
	messages := NewMessageService(store, conversations)
	notifier := &recordingNotifier{}
	messages.SetNotifier(notifier)
	return &fixture{store: inner, conversations: conversations, messages: messages, notifier: notifier}, store
}
