// Package memory is an in-process implementation of the repository
// interfaces. One mutex serialises every operation, and WithTx holds it for
// the whole callback and restores a snapshot when the callback fails.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/domain"
	"github.com/vedran77/riffchat/internal/repository"
)

type state struct {
	users         map[uuid.UUID]domain.User
	conversations map[uuid.UUID]domain.Conversation
	pairs         map[[2]uuid.UUID]uuid.UUID
	messages      map[uuid.UUID]domain.Message
	// byConversation keeps message ids in insertion order.
	byConversation map[uuid.UUID][]uuid.UUID
}

func newState() *state {
	return &state{
		users:          make(map[uuid.UUID]domain.User),
		conversations:  make(map[uuid.UUID]domain.Conversation),
		pairs:          make(map[[2]uuid.UUID]uuid.UUID),
		messages:       make(map[uuid.UUID]domain.Message),
		byConversation: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:          maps.Clone(s.users),
		conversations:  make(map[uuid.UUID]domain.Conversation, len(s.conversations)),
		pairs:          maps.Clone(s.pairs),
		messages:       maps.Clone(s.messages),
		byConversation: make(map[uuid.UUID][]uuid.UUID, len(s.byConversation)),
	}
	for id, conv := range s.conversations {
		conv.UnreadCount = maps.Clone(conv.UnreadCount)
		c.conversations[id] = conv
	}
	for id, ids := range s.byConversation {
		c.byConversation[id] = slices.Clone(ids)
	}
	return c
}

type Store struct {
	mu   *sync.Mutex
	data *state
	inTx bool
}

func NewStore() *Store {
	return &Store{mu: &sync.Mutex{}, data: newState()}
}

func (s *Store) lock() {
	if !s.inTx {
		s.mu.Lock()
	}
}

func (s *Store) unlock() {
	if !s.inTx {
		s.mu.Unlock()
	}
}

func (s *Store) Users() repository.UserRepository {
	return &UserRepo{s: s}
}

func (s *Store) Conversations() repository.ConversationRepository {
	return &ConversationRepo{s: s}
}

func (s *Store) Messages() repository.MessageRepository {
	return &MessageRepo{s: s}
}

func (s *Store) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.data.clone()
	if err := fn(&Store{mu: s.mu, data: s.data, inTx: true}); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}
