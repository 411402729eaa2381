package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/apperr"
	"github.com/vedran77/riffchat/internal/domain"
)

type UserRepo struct {
	s *Store
}

func (r *UserRepo) Create(_ context.Context, user *domain.User) error {
	r.s.lock()
	defer r.s.unlock()

	for _, u := range r.s.data.users {
		if u.ID == user.ID || strings.EqualFold(u.Email, user.Email) || u.Username == user.Username {
			return apperr.New(apperr.Conflict, "email or username already taken")
		}
	}
	r.s.data.users[user.ID] = *user
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.lock()
	defer r.s.unlock()

	u, ok := r.s.data.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Username == username })
}

func (r *UserRepo) SetPresence(_ context.Context, id uuid.UUID, online bool, lastSeen *time.Time) error {
	r.s.lock()
	defer r.s.unlock()

	u, ok := r.s.data.users[id]
	if !ok {
		return nil
	}
	u.IsOnline = online
	if lastSeen != nil {
		ls := *lastSeen
		u.LastSeen = &ls
	}
	u.UpdatedAt = time.Now()
	r.s.data.users[id] = u
	return nil
}

func (r *UserRepo) find(match func(*domain.User) bool) (*domain.User, error) {
	r.s.lock()
	defer r.s.unlock()

	for _, u := range r.s.data.users {
		if match(&u) {
			return &u, nil
		}
	}
	return nil, nil
}
