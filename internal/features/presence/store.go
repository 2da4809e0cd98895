package presence

import (
	"context"
	"time"
)

// Store хранит время последнего heartbeat. Записи разных пользователей
// не должны конкурировать друг с другом.
type Store interface {
	// Touch записывает heartbeat. Более раннее время не затирает более позднее.
	Touch(ctx context.Context, userID string, at time.Time) error
	// LastSeen возвращает время heartbeat для найденных пользователей.
	LastSeen(ctx context.Context, userIDs []string) (map[string]time.Time, error)
	// All возвращает все известные записи.
	All(ctx context.Context) ([]Record, error)
	// Prune удаляет записи старше before и возвращает их количество.
	Prune(ctx context.Context, before time.Time) (int, error)
}
