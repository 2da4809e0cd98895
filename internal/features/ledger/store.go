// Package ledger — store.go описывает контракт хранилища проводок.
package ledger

import "context"

// Store — хранилище проводок и кэша балансов.
//
// Append атомарен: либо записываются все новые проводки пакета, либо ни одной.
// Проводки, чей IdempotencyKey уже записан, не пишутся повторно, вместо них
// возвращается сохранённая запись. Проверка повтора, проверка баланса и запись
// выполняются как одна операция для каждого затронутого пользователя.
type Store interface {
	Append(ctx context.Context, entries []*Entry) ([]*Entry, error)
	Balance(ctx context.Context, userID string) (int64, error)
	Balances(ctx context.Context, userIDs []string) (map[string]int64, error)
	// Entries возвращает проводки пользователя, новые первыми. limit <= 0 — все.
	Entries(ctx context.Context, userID string, limit int) ([]*Entry, error)
	// Top возвращает лидеров по балансу, при равенстве — по user id.
	Top(ctx context.Context, limit int) ([]BalanceRow, error)
}
