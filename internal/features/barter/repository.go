// Package barter — repository.go хранит сессии в таблице barter_sessions.
// Переходы выполняются в транзакции с SELECT ... FOR UPDATE, завершение
// пишет проводки леджера в той же транзакции.
package barter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillbarter/barter-engine/internal/common"
	"github.com/skillbarter/barter-engine/internal/features/ledger"
)

const (
	pgUniqueViolation = "23505"
	openPairIndex     = "ux_barter_sessions_open_pair"
)

const sessionColumns = `id, learner_id, teacher_id, pair_key, skills, state, awarded_points, created_at, updated_at, closed_at`

// PostgresRepository — сессии в PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create вставляет сессию. Уникальный частичный индекс по pair_key
// не даёт паре иметь две открытые сессии даже при гонке двух Create.
func (r *PostgresRepository) Create(ctx context.Context, s *Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO barter_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.ID, s.LearnerID, s.TeacherID, s.PairKey, s.Skills, string(s.State),
		s.AwardedPoints, s.CreatedAt.UTC(), s.UpdatedAt.UTC(), s.ClosedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == openPairIndex {
			return fmt.Errorf("пара %s: %w", s.PairKey, common.ErrPairBusy)
		}
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM barter_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("сессия %s: %w", id, common.ErrUnknownSession)
		}
		return nil, fmt.Errorf("ошибка получения сессии: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Transition(ctx context.Context, id string, ev Event, at time.Time, expect ...State) (*Session, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	s, err := lockSession(ctx, tx, id)
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
	if err := updateSession(ctx, tx, s); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации перехода: %w", err)
	}
	return s, nil
}

// Complete выполняет переход в completed и записывает проводки одним COMMIT.
func (r *PostgresRepository) Complete(ctx context.Context, id string, awarded int64, entries []*ledger.Entry, at time.Time) (*Session, []*ledger.Entry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	s, err := lockSession(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	next, err := Next(s.State, EventComplete)
	if err != nil {
		return nil, nil, err
	}
	stored, err := ledger.AppendTx(ctx, tx, entries)
	if err != nil {
		return nil, nil, err
	}
	s.AwardedPoints = awarded
	s.apply(next, at)
	if err := updateSession(ctx, tx, s); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("ошибка фиксации завершения: %w", err)
	}
	return s, stored, nil
}

func lockSession(ctx context.Context, tx pgx.Tx, id string) (*Session, error) {
	s, err := scanSession(tx.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM barter_sessions WHERE id = $1 FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("сессия %s: %w", id, common.ErrUnknownSession)
		}
		return nil, fmt.Errorf("ошибка блокировки сессии: %w", err)
	}
	return s, nil
}

func updateSession(ctx context.Context, tx pgx.Tx, s *Session) error {
	_, err := tx.Exec(ctx, `
		UPDATE barter_sessions
		SET state = $2, awarded_points = $3, updated_at = $4, closed_at = $5
		WHERE id = $1
	`, s.ID, string(s.State), s.AwardedPoints, s.UpdatedAt.UTC(), s.ClosedAt)
	if err != nil {
		return fmt.Errorf("ошибка обновления сессии: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListStale(ctx context.Context, states []State, before time.Time) ([]*Session, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}
	return r.list(ctx, `
		SELECT `+sessionColumns+` FROM barter_sessions
		WHERE state = ANY($1) AND updated_at < $2
		ORDER BY created_at, id
	`, names, before.UTC())
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	return r.list(ctx, `
		SELECT `+sessionColumns+` FROM barter_sessions
		WHERE learner_id = $1 OR teacher_id = $1
		ORDER BY created_at, id
	`, userID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*Session, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сессий: %w", err)
	}
	defer rows.Close()

	out := []*Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования сессии: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var state string
	err := row.Scan(&s.ID, &s.LearnerID, &s.TeacherID, &s.PairKey, &s.Skills, &state,
		&s.AwardedPoints, &s.CreatedAt, &s.UpdatedAt, &s.ClosedAt)
	if err != nil {
		return nil, err
	}
	s.State = State(state)
	return &s, nil
}
