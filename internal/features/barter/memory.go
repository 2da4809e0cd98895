package barter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/skillbarter/barter-engine/internal/common"
	"github.com/skillbarter/barter-engine/internal/features/ledger"
)

// MemoryRepository хранит сессии в памяти процесса. Проводки при
// завершении пишутся в переданный ledger.Store под блокировкой сессии.
type MemoryRepository struct {
	ledger ledger.Store
	locks  common.KeyLock // переходы одной сессии

	mu        sync.RWMutex
	sessions  map[string]*Session
	openPairs map[string]string // pair key -> id открытой сессии
}

func NewMemoryRepository(store ledger.Store) *MemoryRepository {
	return &MemoryRepository{
		ledger:    store,
		sessions:  make(map[string]*Session),
		openPairs: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, busy := r.openPairs[s.PairKey]; busy {
		return fmt.Errorf("пара %s занята сессией %s: %w", s.PairKey, id, common.ErrPairBusy)
	}
	r.sessions[s.ID] = s.clone()
	r.openPairs[s.PairKey] = s.ID
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("сессия %s: %w", id, common.ErrUnknownSession)
	}
	return s.clone(), nil
}

func (r *MemoryRepository) Transition(ctx context.Context, id string, ev Event, at time.Time, expect ...State) (*Session, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := Next(s.State, ev)
	if err != nil {
		return nil, err
	}
	if err := guard(s.State, ev, expect); err != nil {
		return nil, err
	}
	s.apply(next, at)
	r.store(s)
	return s, nil
}

func (r *MemoryRepository) Complete(ctx context.Context, id string, awarded int64, entries []*ledger.Entry, at time.Time) (*Session, []*ledger.Entry, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	next, err := Next(s.State, EventComplete)
	if err != nil {
		return nil, nil, err
	}
	stored, err := r.ledger.Append(ctx, entries)
	if err != nil {
		return nil, nil, err
	}
	s.AwardedPoints = awarded
	s.apply(next, at)
	r.store(s)
	return s, stored, nil
}

func (r *MemoryRepository) store(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s.clone()
	if s.State.Terminal() && r.openPairs[s.PairKey] == s.ID {
		delete(r.openPairs, s.PairKey)
	}
}

func (r *MemoryRepository) ListStale(_ context.Context, states []State, before time.Time) ([]*Session, error) {
	want := make(map[State]bool, len(states))
	for _, st := range states {
		want[st] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, s := range r.sessions {
		if want[s.State] && s.UpdatedAt.Before(before) {
			out = append(out, s.clone())
		}
	}
	sortSessions(out)
	return out, nil
}

func (r *MemoryRepository) ListForUser(_ context.Context, userID string) ([]*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*Session{}
	for _, s := range r.sessions {
		if s.IsParticipant(userID) {
			out = append(out, s.clone())
		}
	}
	sortSessions(out)
	return out, nil
}

func sortSessions(list []*Session) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
