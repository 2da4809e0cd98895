package presence

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/skillbarter/barter-engine/internal/common"
)

// DefaultTTL — 2.5 интервала heartbeat по 30 секунд.
const DefaultTTL = 75 * time.Second

// Directory подтверждает, что пользователь зарегистрирован.
type Directory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Service — трекер присутствия.
type Service struct {
	store Store
	dir   Directory
	ttl   time.Duration
	now   func() time.Time
}

// NewService создаёт трекер. ttl <= 0 заменяется на DefaultTTL.
func NewService(store Store, dir Directory, ttl time.Duration, now func() time.Time) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, dir: dir, ttl: ttl, now: now}
}

// TTL возвращает окно, в течение которого пользователь считается онлайн.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Heartbeat отмечает пользователя как активного сейчас.
func (s *Service) Heartbeat(ctx context.Context, userID string) error {
	ok, err := s.dir.Exists(ctx, userID)
	if err != nil {
		return fmt.Errorf("ошибка проверки пользователя: %w", err)
	}
	if !ok {
		return fmt.Errorf("heartbeat от %s: %w", userID, common.ErrUnknownUser)
	}
	return s.store.Touch(ctx, userID, s.now().UTC())
}

// IsOnline сообщает, был ли heartbeat пользователя в пределах TTL.
// Неизвестный пользователь просто не в сети.
func (s *Service) IsOnline(ctx context.Context, userID string) (bool, error) {
	seen, err := s.store.LastSeen(ctx, []string{userID})
	if err != nil {
		return false, err
	}
	return isFresh(seen[userID], s.now(), s.ttl), nil
}

// ListOnline оставляет из кандидатов только тех, кто в сети, за один проход.
func (s *Service) ListOnline(ctx context.Context, userIDs []string) (map[string]struct{}, error) {
	seen, err := s.store.LastSeen(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	now := s.now()
	online := make(map[string]struct{}, len(seen))
	for id, at := range seen {
		if isFresh(at, now, s.ttl) {
			online[id] = struct{}{}
		}
	}
	return online, nil
}

// OnlineCount считает пользователей в сети. Нужен для логов housekeeping.
func (s *Service) OnlineCount(ctx context.Context) (int, error) {
	records, err := s.store.All(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	n := 0
	for _, r := range records {
		if r.Online(now, s.ttl) {
			n++
		}
	}
	return n, nil
}

// Prune удаляет записи, не обновлявшиеся дольше retention.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int, error) {
	if retention < s.ttl {
		retention = s.ttl
	}
	n, err := s.store.Prune(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.WithField("removed", n).Debug("Устаревшие записи присутствия удалены")
	}
	return n, nil
}
