package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/iliyamo/rental-markup/internal/model"
)

// UserRepo reads accounts from the 'users' table. Registration and
// credentials are handled elsewhere; the pricing engine only needs roles.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,role,is_active,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Email, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// CanAddMarkup reports whether id refers to an active host-type account.
// Unknown users are not an error; they simply lack the capability.
func (r *UserRepo) CanAddMarkup(ctx context.Context, id uint64) (bool, error) {
	u, err := r.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.CanAddMarkup(), nil
}

// MemoryUserRepo is an in-process user directory used by the memory store
// mode and tests.
type MemoryUserRepo struct {
	mu    sync.RWMutex
	users map[uint64]model.User
}

func NewMemoryUserRepo(users ...model.User) *MemoryUserRepo {
	r := &MemoryUserRepo{users: make(map[uint64]model.User, len(users))}
	for _, u := range users {
		r.Put(u)
	}
	return r
}

// Put inserts or replaces u.
func (r *MemoryUserRepo) Put(u model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id uint64) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryUserRepo) CanAddMarkup(ctx context.Context, id uint64) (bool, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return false, nil
	}
	return u.CanAddMarkup(), nil
}
