package barter

import (
	"context"
	"time"

	"github.com/skillbarter/barter-engine/internal/features/ledger"
)

// Repository хранит сессии.
//
// Create проверяет занятость пары и вставляет сессию атомарно.
// Transition и Complete проверяют переход по таблице и записывают его
// как одну операцию над сессией. Непустой expect дополнительно требует,
// чтобы сессия была в одном из этих состояний. Complete к тому же пишет проводки
// леджера: либо проводки и completed, либо ничего.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Transition(ctx context.Context, id string, ev Event, at time.Time, expect ...State) (*Session, error)
	Complete(ctx context.Context, id string, awarded int64, entries []*ledger.Entry, at time.Time) (*Session, []*ledger.Entry, error)
	// ListStale возвращает сессии в states, не менявшиеся с before.
	ListStale(ctx context.Context, states []State, before time.Time) ([]*Session, error)
	ListForUser(ctx context.Context, userID string) ([]*Session, error)
}
