// Package members — repository.go описывает хранилище профилей и его
// реализацию на PostgreSQL. Каждая функция выполняет один SQL-запрос.
package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillbarter/barter-engine/internal/common"
)

// Repository — контракт хранилища профилей.
type Repository interface {
	// Upsert создаёт профиль или обновляет существующий.
	Upsert(ctx context.Context, u *User) error
	// GetByID возвращает профиль; если не найден — ошибка с common.ErrUnknownUser.
	GetByID(ctx context.Context, id string) (*User, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]*User, error)
}

// PostgresRepository хранит профили в таблице members.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert добавляет участника. На конфликте по id обновляет профиль;
// хеш токена перезаписывается только если передан новый.
func (r *PostgresRepository) Upsert(ctx context.Context, u *User) error {
	query := `
		INSERT INTO members (id, display_name, teach_skills, learn_skills, profile_completed,
		                     notify_chat_id, token_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    teach_skills = EXCLUDED.teach_skills,
		    learn_skills = EXCLUDED.learn_skills,
		    profile_completed = EXCLUDED.profile_completed,
		    notify_chat_id = EXCLUDED.notify_chat_id,
		    token_hash = CASE WHEN EXCLUDED.token_hash = '' THEN members.token_hash ELSE EXCLUDED.token_hash END,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query,
		u.ID, u.DisplayName, u.TeachSkills, u.LearnSkills, u.ProfileCompleted,
		u.NotifyChatID, u.TokenHash, u.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("ошибка создания/обновления участника: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, display_name, teach_skills, learn_skills, profile_completed,
		       notify_chat_id, token_hash, created_at, updated_at
		FROM members
		WHERE id = $1
	`
	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("участник %s: %w", id, common.ErrUnknownUser)
		}
		return nil, fmt.Errorf("ошибка чтения участника (id=%s): %w", id, err)
	}
	return u, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM members WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки существования: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*User, error) {
	query := `
		SELECT id, display_name, teach_skills, learn_skills, profile_completed,
		       notify_chat_id, token_hash, created_at, updated_at
		FROM members
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса участников: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.DisplayName, &u.TeachSkills, &u.LearnSkills, &u.ProfileCompleted,
		&u.NotifyChatID, &u.TokenHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
