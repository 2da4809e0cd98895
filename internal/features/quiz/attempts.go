package quiz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptStore хранит оценённые попытки.
type AttemptStore interface {
	// Save сохраняет попытку. Если попытка с таким id уже есть,
	// возвращает сохранённую и ничего не пишет.
	Save(ctx context.Context, a *Attempt) (*Attempt, error)
	// Get возвращает попытку или nil, если её нет.
	Get(ctx context.Context, id string) (*Attempt, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Attempt, error)
}

// MemoryAttempts — попытки в памяти процесса.
type MemoryAttempts struct {
	mu       sync.RWMutex
	attempts map[string]*Attempt
}

func NewMemoryAttempts() *MemoryAttempts {
	return &MemoryAttempts{attempts: make(map[string]*Attempt)}
}

func (m *MemoryAttempts) Save(_ context.Context, a *Attempt) (*Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.attempts[a.ID]; ok {
		return existing.clone(), nil
	}
	m.attempts[a.ID] = a.clone()
	return a.clone(), nil
}

func (m *MemoryAttempts) Get(_ context.Context, id string) (*Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.attempts[id]; ok {
		return a.clone(), nil
	}
	return nil, nil
}

func (m *MemoryAttempts) ListByUser(_ context.Context, userID string, limit int) ([]*Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Attempt{}
	for _, a := range m.attempts {
		if a.UserID == userID {
			out = append(out, a.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GradedAt.Equal(out[j].GradedAt) {
			return out[i].GradedAt.After(out[j].GradedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PostgresAttempts — попытки в таблице quiz_attempts.
type PostgresAttempts struct {
	db *pgxpool.Pool
}

func NewPostgresAttempts(db *pgxpool.Pool) *PostgresAttempts {
	return &PostgresAttempts{db: db}
}

const attemptColumns = `id, quiz_id, user_id, answers, score, total_questions, points, feedback, state, ledger_entry_id, created_at, graded_at`

func (r *PostgresAttempts) Save(ctx context.Context, a *Attempt) (*Attempt, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO quiz_attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, a.ID, a.QuizID, a.UserID, a.Answers, a.Score, a.TotalQuestions, a.Points, a.Feedback,
		string(a.State), a.LedgerEntryID, a.CreatedAt.UTC(), a.GradedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения попытки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.Get(ctx, a.ID)
	}
	return a.clone(), nil
}

func (r *PostgresAttempts) Get(ctx context.Context, id string) (*Attempt, error) {
	a, err := scanAttempt(r.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения попытки: %w", err)
	}
	return a, nil
}

func (r *PostgresAttempts) ListByUser(ctx context.Context, userID string, limit int) ([]*Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM quiz_attempts WHERE user_id = $1 ORDER BY graded_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения попыток: %w", err)
	}
	defer rows.Close()

	out := []*Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования попытки: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(row pgx.Row) (*Attempt, error) {
	var a Attempt
	var state string
	err := row.Scan(&a.ID, &a.QuizID, &a.UserID, &a.Answers, &a.Score, &a.TotalQuestions,
		&a.Points, &a.Feedback, &state, &a.LedgerEntryID, &a.CreatedAt, &a.GradedAt)
	if err != nil {
		return nil, err
	}
	a.State = State(state)
	return &a, nil
}
