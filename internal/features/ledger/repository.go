// Package ledger — repository.go выполняет все операции с таблицами balances
// и ledger_entries. Все денежные операции выполняются в транзакциях БД.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillbarter/barter-engine/internal/common"
)

// SQLSTATE check_violation — сработал CHECK (balance >= 0).
const pgCheckViolation = "23514"

// PostgresStore предоставляет методы для работы с балансами и проводками.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore создаёт новый репозиторий леджера.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append записывает пакет проводок в отдельной транзакции.
func (r *PostgresStore) Append(ctx context.Context, entries []*Entry) ([]*Entry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	out, err := AppendTx(ctx, tx, entries)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapBalanceError(fmt.Errorf("ошибка фиксации проводок: %w", err))
	}
	return out, nil
}

// AppendTx записывает пакет проводок внутри чужой транзакции.
// Нужен координатору сессий: проводки и смена состояния сессии фиксируются
// одним COMMIT.
//
// Алгоритм:
//  1. Гарантируем строки balances и блокируем их FOR UPDATE (в порядке user_id)
//  2. Отделяем повторы по (correlation_id, reason)
//  3. Проверяем, что итоговый баланс каждого пользователя не уходит в минус
//  4. Вставляем проводки и записываем новые балансы
func AppendTx(ctx context.Context, tx pgx.Tx, entries []*Entry) ([]*Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	users := distinctUsers(entries)
	for _, u := range users {
		if _, err := tx.Exec(ctx, `
			INSERT INTO balances (user_id, balance) VALUES ($1, 0)
			ON CONFLICT (user_id) DO NOTHING
		`, u); err != nil {
			return nil, fmt.Errorf("ошибка создания баланса: %w", err)
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT user_id, balance FROM balances
		WHERE user_id = ANY($1)
		ORDER BY user_id
		FOR UPDATE
	`, users)
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки балансов: %w", err)
	}
	current := make(map[string]int64, len(users))
	for rows.Next() {
		var id string
		var balance int64
		if err := rows.Scan(&id, &balance); err != nil {
			rows.Close()
			return nil, fmt.Errorf("ошибка сканирования баланса: %w", err)
		}
		current[id] = balance
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения балансов: %w", err)
	}

	out := make([]*Entry, len(entries))
	var pending []int
	net := make(map[string]int64)
	for i, e := range entries {
		existing, err := findByKey(ctx, tx, e.CorrelationID, e.Reason)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			out[i] = existing
			continue
		}
		pending = append(pending, i)
		net[e.UserID] += e.Delta
	}

	for userID, delta := range net {
		if current[userID]+delta < 0 {
			return nil, fmt.Errorf("нужно %d, есть %d (user_id=%s): %w", -delta, current[userID], userID, common.ErrInsufficientBalance)
		}
	}

	changed := make(map[string]bool)
	for _, i := range pending {
		e := entries[i].clone()
		e.BalanceAfter = current[e.UserID] + e.Delta

		tag, err := tx.Exec(ctx, `
			INSERT INTO ledger_entries (id, user_id, delta, reason, correlation_id, balance_after, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (correlation_id, reason) DO NOTHING
		`, e.ID, e.UserID, e.Delta, string(e.Reason), e.CorrelationID, e.BalanceAfter, e.CreatedAt.UTC())
		if err != nil {
			return nil, fmt.Errorf("ошибка записи проводки: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Параллельный повтор с тем же ключом успел раньше, отдаём его запись.
			existing, err := findByKey(ctx, tx, e.CorrelationID, e.Reason)
			if err != nil {
				return nil, err
			}
			out[i] = existing
			continue
		}
		current[e.UserID] = e.BalanceAfter
		changed[e.UserID] = true
		out[i] = e
	}

	for userID := range changed {
		if _, err := tx.Exec(ctx, `
			UPDATE balances SET balance = $2, updated_at = NOW() WHERE user_id = $1
		`, userID, current[userID]); err != nil {
			return nil, mapBalanceError(fmt.Errorf("ошибка обновления баланса: %w", err))
		}
	}
	return out, nil
}

func findByKey(ctx context.Context, tx pgx.Tx, correlationID string, reason Reason) (*Entry, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, user_id, delta, reason, correlation_id, balance_after, created_at
		FROM ledger_entries
		WHERE correlation_id = $1 AND reason = $2
	`, correlationID, string(reason))
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка поиска проводки: %w", err)
	}
	return e, nil
}

// Balance возвращает текущий баланс пользователя (0, если проводок не было).
func (r *PostgresStore) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM balances WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return balance, nil
}

func (r *PostgresStore) Balances(ctx context.Context, userIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(userIDs))
	for _, id := range userIDs {
		out[id] = 0
	}
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT user_id, balance FROM balances WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения балансов: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var balance int64
		if err := rows.Scan(&id, &balance); err != nil {
			return nil, fmt.Errorf("ошибка сканирования баланса: %w", err)
		}
		out[id] = balance
	}
	return out, rows.Err()
}

// Entries возвращает последние проводки пользователя.
func (r *PostgresStore) Entries(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	query := `
		SELECT id, user_id, delta, reason, correlation_id, balance_after, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, balance_after DESC, id DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения проводок: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования проводки: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PostgresStore) Top(ctx context.Context, limit int) ([]BalanceRow, error) {
	query := `SELECT user_id, balance FROM balances ORDER BY balance DESC, user_id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения таблицы лидеров: %w", err)
	}
	defer rows.Close()

	var out []BalanceRow
	for rows.Next() {
		var row BalanceRow
		if err := rows.Scan(&row.UserID, &row.Balance); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var reason string
	if err := row.Scan(&e.ID, &e.UserID, &e.Delta, &reason, &e.CorrelationID, &e.BalanceAfter, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Reason = Reason(reason)
	return &e, nil
}

func distinctUsers(entries []*Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.UserID]; ok {
			continue
		}
		seen[e.UserID] = struct{}{}
		out = append(out, e.UserID)
	}
	sort.Strings(out)
	return out
}

// mapBalanceError превращает нарушение CHECK (balance >= 0) в ErrInsufficientBalance.
func mapBalanceError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
		return fmt.Errorf("%v: %w", err, common.ErrInsufficientBalance)
	}
	return err
}
