// Package ledger — service.go содержит бизнес-логику леджера.
// Это единственная точка изменения балансов: сессии и квизы пишут сюда.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/skillbarter/barter-engine/internal/common"
)

// Directory подтверждает, что пользователь зарегистрирован.
type Directory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Service управляет очками участников.
type Service struct {
	store Store
	dir   Directory
	now   func() time.Time
	newID func() string
}

// NewService создаёт сервис леджера.
func NewService(store Store, dir Directory, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store: store,
		dir:   dir,
		now:   now,
		newID: uuid.NewString,
	}
}

// Store отдаёт хранилище: координатор сессий пишет проводки в своей транзакции.
func (s *Service) Store() Store {
	return s.store
}

// Post записывает одну проводку. Повтор с той же парой
// (correlationID, reason) возвращает уже сохранённую запись.
func (s *Service) Post(ctx context.Context, userID string, delta int64, reason Reason, correlationID string) (*Entry, error) {
	entries, err := s.PostBatch(ctx, []Posting{{
		UserID:        userID,
		Delta:         delta,
		Reason:        reason,
		CorrelationID: correlationID,
	}})
	if err != nil {
		return nil, err
	}
	return entries[0], nil
}

// PostBatch записывает пакет проводок по принципу «всё или ничего».
func (s *Service) PostBatch(ctx context.Context, postings []Posting) ([]*Entry, error) {
	entries, err := s.Prepare(ctx, postings)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.Append(ctx, entries)
	if err != nil {
		log.WithError(err).WithField("postings", len(postings)).Warn("Проводки отклонены")
		return nil, err
	}
	s.LogStored(entries, stored)
	return stored, nil
}

// Prepare проверяет проводки и превращает их в записи с id и временем.
//
// Правила:
//   - причина известна, correlation id не пустой
//   - начисления (credit) имеют дельту ≥ 0, списания (debit) ≤ 0
//   - пользователь зарегистрирован
//   - в одном пакете ключ (correlation id, reason) не повторяется
func (s *Service) Prepare(ctx context.Context, postings []Posting) ([]*Entry, error) {
	if len(postings) == 0 {
		return nil, fmt.Errorf("пустой пакет проводок: %w", common.ErrInvalidAmount)
	}
	now := s.now().UTC()
	keys := make(map[string]struct{}, len(postings))
	entries := make([]*Entry, 0, len(postings))

	for _, p := range postings {
		if !p.Reason.Valid() {
			return nil, fmt.Errorf("%q: %w", p.Reason, common.ErrInvalidReason)
		}
		corr := strings.TrimSpace(p.CorrelationID)
		if corr == "" {
			return nil, fmt.Errorf("пустой correlation id: %w", common.ErrInvalidReason)
		}
		if p.Reason.IsDebit() && p.Delta > 0 {
			return nil, fmt.Errorf("списание %d > 0: %w", p.Delta, common.ErrInvalidAmount)
		}
		if !p.Reason.IsDebit() && p.Delta < 0 {
			return nil, fmt.Errorf("начисление %d < 0: %w", p.Delta, common.ErrInvalidAmount)
		}
		if err := s.ensureUser(ctx, p.UserID); err != nil {
			return nil, err
		}

		e := &Entry{
			ID:            s.newID(),
			UserID:        p.UserID,
			Delta:         p.Delta,
			Reason:        p.Reason,
			CorrelationID: corr,
			CreatedAt:     now,
		}
		if _, dup := keys[e.IdempotencyKey()]; dup {
			return nil, fmt.Errorf("ключ %s/%s повторяется в пакете: %w", corr, p.Reason, common.ErrInvalidReason)
		}
		keys[e.IdempotencyKey()] = struct{}{}
		entries = append(entries, e)
	}
	return entries, nil
}

// LogStored пишет в лог новые проводки и повторы.
func (s *Service) LogStored(prepared, stored []*Entry) {
	for i, e := range stored {
		fields := log.Fields{
			"user_id":        e.UserID,
			"delta":          e.Delta,
			"reason":         e.Reason,
			"correlation_id": e.CorrelationID,
			"balance_after":  e.BalanceAfter,
		}
		if i < len(prepared) && prepared[i].ID != e.ID {
			if prepared[i].Delta != e.Delta || prepared[i].UserID != e.UserID {
				log.WithFields(fields).WithField("requested_delta", prepared[i].Delta).
					Warn("Повтор проводки с другими параметрами, возвращена исходная")
				continue
			}
			log.WithFields(fields).Debug("Повтор проводки, возвращена исходная")
			continue
		}
		log.WithFields(fields).Info("Проводка записана")
	}
}

// BalanceOf возвращает баланс пользователя. Никогда не отрицателен.
func (s *Service) BalanceOf(ctx context.Context, userID string) (int64, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return 0, err
	}
	return s.store.Balance(ctx, userID)
}

// Balances возвращает балансы нескольких пользователей одним вызовом.
func (s *Service) Balances(ctx context.Context, userIDs []string) (map[string]int64, error) {
	return s.store.Balances(ctx, userIDs)
}

// History возвращает последние проводки пользователя (новые первыми).
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.Entries(ctx, userID, limit)
}

// Leaderboard возвращает топ пользователей по балансу.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]BalanceRow, error) {
	return s.store.Top(ctx, limit)
}

func (s *Service) ensureUser(ctx context.Context, userID string) error {
	if s.dir == nil {
		return nil
	}
	ok, err := s.dir.Exists(ctx, userID)
	if err != nil {
		return fmt.Errorf("ошибка проверки пользователя: %w", err)
	}
	if !ok {
		return fmt.Errorf("пользователь %s: %w", userID, common.ErrUnknownUser)
	}
	return nil
}
