package presence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// pruned помечает ячейку, удалённую Prune.
const pruned = -1

// MemoryStore держит heartbeat'ы в памяти процесса: по атомарной ячейке
// на пользователя, поэтому heartbeat'ы разных пользователей не блокируют друг друга.
type MemoryStore struct {
	seen sync.Map // userID -> *atomic.Int64 (unix nano)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Touch(_ context.Context, userID string, at time.Time) error {
	ts := at.UnixNano()
	for {
		v, _ := s.seen.LoadOrStore(userID, new(atomic.Int64))
		cell := v.(*atomic.Int64)
		if storeMax(cell, ts) {
			return nil
		}
		// Ячейку уже закрыл Prune: убираем её и берём новую.
		s.seen.CompareAndDelete(userID, v)
	}
}

// storeMax записывает ts, если он новее. false — ячейка закрыта Prune.
func storeMax(cell *atomic.Int64, ts int64) bool {
	for {
		cur := cell.Load()
		if cur == pruned {
			return false
		}
		if cur >= ts || cell.CompareAndSwap(cur, ts) {
			return true
		}
	}
}

func (s *MemoryStore) LastSeen(_ context.Context, userIDs []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(userIDs))
	for _, id := range userIDs {
		v, ok := s.seen.Load(id)
		if !ok {
			continue
		}
		if ts := v.(*atomic.Int64).Load(); ts > 0 {
			out[id] = time.Unix(0, ts).UTC()
		}
	}
	return out, nil
}

func (s *MemoryStore) All(_ context.Context) ([]Record, error) {
	var out []Record
	s.seen.Range(func(k, v any) bool {
		if ts := v.(*atomic.Int64).Load(); ts > 0 {
			out = append(out, Record{UserID: k.(string), LastSeen: time.Unix(0, ts).UTC()})
		}
		return true
	})
	return out, nil
}

func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	cutoff := before.UnixNano()
	removed := 0
	s.seen.Range(func(k, v any) bool {
		cell := v.(*atomic.Int64)
		ts := cell.Load()
		// Закрытую ячейку Touch уже не обновит, поэтому её можно удалять.
		if ts > 0 && ts < cutoff && cell.CompareAndSwap(ts, pruned) {
			s.seen.CompareAndDelete(k, v)
			removed++
		}
		return true
	})
	return removed, nil
}
