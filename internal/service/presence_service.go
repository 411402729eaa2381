package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/domain"
	"github.com/vedran77/riffchat/internal/repository"
)

// SessionCounter counts a user's live realtime sessions.
type SessionCounter interface {
	Incr(ctx context.Context, userID uuid.UUID) (int64, error)
	Decr(ctx context.Context, userID uuid.UUID) (int64, error)
}

type LocalSessionCounter struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int64
}

func NewLocalSessionCounter() *LocalSessionCounter {
	return &LocalSessionCounter{counts: make(map[uuid.UUID]int64)}
}

func (c *LocalSessionCounter) Incr(_ context.Context, userID uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[userID]++
	return c.counts[userID], nil
}

func (c *LocalSessionCounter) Decr(_ context.Context, userID uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.counts[userID] - 1
	if n <= 0 {
		delete(c.counts, userID)
		return 0, nil
	}
	c.counts[userID] = n
	return n, nil
}

// RedisSessionCounter shares session counts between server processes.
type RedisSessionCounter struct {
	client *redis.Client
}

func NewRedisSessionCounter(client *redis.Client) *RedisSessionCounter {
	return &RedisSessionCounter{client: client}
}

func sessionKey(userID uuid.UUID) string {
	return "presence:sessions:" + userID.String()
}

func (c *RedisSessionCounter) Incr(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := c.client.Incr(ctx, sessionKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing sessions: %w", err)
	}
	return n, nil
}

func (c *RedisSessionCounter) Decr(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := c.client.Decr(ctx, sessionKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("decrementing sessions: %w", err)
	}
	if n < 0 {
		// a counter lost across a redis flush; clamp instead of going negative
		if err := c.client.Set(ctx, sessionKey(userID), 0, 0).Err(); err != nil {
			return 0, fmt.Errorf("resetting sessions: %w", err)
		}
		n = 0
	}
	return n, nil
}

// PresenceService is the only writer of users.is_online and users.last_seen.
type PresenceService struct {
	users    repository.UserRepository
	sessions SessionCounter
}

func NewPresenceService(users repository.UserRepository, sessions SessionCounter) *PresenceService {
	return &PresenceService{users: users, sessions: sessions}
}

// Connected counts a new session and marks the user online. When it returns
// an error the session is not counted.
func (s *PresenceService) Connected(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.sessions.Incr(ctx, userID); err != nil {
		return err
	}
	if err := s.users.SetPresence(ctx, userID, true, nil); err != nil {
		if _, derr := s.sessions.Decr(ctx, userID); derr != nil {
			return errors.Join(err, derr)
		}
		return err
	}
	return nil
}

// Disconnected marks the user offline once their last session is gone.
func (s *PresenceService) Disconnected(ctx context.Context, userID uuid.UUID) error {
	remaining, err := s.sessions.Decr(ctx, userID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	lastSeen := now()
	return s.users.SetPresence(ctx, userID, false, &lastSeen)
}

func (s *PresenceService) Get(ctx context.Context, userID uuid.UUID) (*domain.Presence, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return &domain.Presence{UserID: u.ID, IsOnline: u.IsOnline, LastSeen: u.LastSeen}, nil
}
