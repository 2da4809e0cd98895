// Package ledger — memory.go хранит леджер в памяти процесса.
// Проводки одного пользователя сериализуются, разных — идут параллельно.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/skillbarter/barter-engine/internal/common"
)

type account struct {
	balance int64
	entries []*Entry
}

// MemoryStore — реализация Store в памяти.
type MemoryStore struct {
	userLocks common.KeyLock // баланс и журнал пользователя
	keyLocks  common.KeyLock // индекс идемпотентности

	accounts sync.Map // userID -> *account
	index    sync.Map // IdempotencyKey -> *Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) account(userID string) *account {
	acc, _ := s.accounts.LoadOrStore(userID, &account{})
	return acc.(*account)
}

func (s *MemoryStore) Append(_ context.Context, entries []*Entry) ([]*Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	users := make([]string, 0, len(entries))
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		users = append(users, e.UserID)
		keys = append(keys, e.IdempotencyKey())
	}

	// Порядок захвата всегда один: пользователи, затем ключи.
	unlockUsers := s.userLocks.LockMany(users...)
	defer unlockUsers()
	unlockKeys := s.keyLocks.LockMany(keys...)
	defer unlockKeys()

	out := make([]*Entry, len(entries))
	var pending []int
	net := make(map[string]int64)
	for i, e := range entries {
		if existing, ok := s.index.Load(e.IdempotencyKey()); ok {
			out[i] = existing.(*Entry).clone()
			continue
		}
		pending = append(pending, i)
		net[e.UserID] += e.Delta
	}

	for userID, delta := range net {
		acc := s.account(userID)
		if acc.balance+delta < 0 {
			return nil, fmt.Errorf("нужно %d, есть %d (user_id=%s): %w", -delta, acc.balance, userID, common.ErrInsufficientBalance)
		}
	}

	for _, i := range pending {
		e := entries[i].clone()
		acc := s.account(e.UserID)
		acc.balance += e.Delta
		e.BalanceAfter = acc.balance
		acc.entries = append(acc.entries, e)
		s.index.Store(e.IdempotencyKey(), e)
		out[i] = e.clone()
	}
	return out, nil
}

func (s *MemoryStore) Balance(_ context.Context, userID string) (int64, error) {
	unlock := s.userLocks.Lock(userID)
	defer unlock()
	acc, ok := s.accounts.Load(userID)
	if !ok {
		return 0, nil
	}
	return acc.(*account).balance, nil
}

func (s *MemoryStore) Balances(ctx context.Context, userIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(userIDs))
	for _, id := range userIDs {
		b, err := s.Balance(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = b
	}
	return out, nil
}

func (s *MemoryStore) Entries(_ context.Context, userID string, limit int) ([]*Entry, error) {
	unlock := s.userLocks.Lock(userID)
	defer unlock()

	v, ok := s.accounts.Load(userID)
	if !ok {
		return []*Entry{}, nil
	}
	src := v.(*account).entries
	n := len(src)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*Entry, 0, n)
	for i := len(src) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, src[i].clone())
	}
	return out, nil
}

func (s *MemoryStore) Top(ctx context.Context, limit int) ([]BalanceRow, error) {
	var ids []string
	s.accounts.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	balances, err := s.Balances(ctx, ids)
	if err != nil {
		return nil, err
	}
	rows := make([]BalanceRow, 0, len(balances))
	for id, b := range balances {
		rows = append(rows, BalanceRow{UserID: id, Balance: b})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Balance != rows[j].Balance {
			return rows[i].Balance > rows[j].Balance
		}
		return rows[i].UserID < rows[j].UserID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
