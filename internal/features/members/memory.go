// Package members — memory.go содержит хранилище профилей в памяти процесса.
// Используется в dev-режиме и в тестах.
package members

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/skillbarter/barter-engine/internal/common"
)

// MemoryRepository — хранилище профилей в памяти процесса.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]*User)}
}

func (r *MemoryRepository) Upsert(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := u.clone()
	if prev, ok := r.users[u.ID]; ok {
		next.CreatedAt = prev.CreatedAt
		if next.TokenHash == "" {
			next.TokenHash = prev.TokenHash
		}
	} else if next.CreatedAt.IsZero() {
		next.CreatedAt = next.UpdatedAt
	}
	r.users[u.ID] = next
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("участник %s: %w", id, common.ErrUnknownUser)
	}
	return u.clone(), nil
}

func (r *MemoryRepository) Exists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[id]
	return ok, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
