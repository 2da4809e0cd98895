// Package members — service.go содержит бизнес-логику профилей:
// регистрацию, обновление навыков и оповещение индекса навыков.
package members

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/skillbarter/barter-engine/internal/common"
)

// SkillListener получает новый набор навыков, которым учит пользователь.
// Вызывается синхронно после записи в хранилище, в порядке записей.
type SkillListener interface {
	TeachSkillsChanged(userID string, teachSkills []string)
}

// Service управляет профилями участников.
type Service struct {
	repo  Repository
	now   func() time.Time
	locks common.KeyLock // сериализует обновления одного профиля

	listenersMu sync.RWMutex
	listeners   []SkillListener
}

// NewService создаёт сервис профилей.
func NewService(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

// Subscribe добавляет слушателя изменений навыков.
func (s *Service) Subscribe(l SkillListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Register создаёт или перезаписывает профиль участника.
func (s *Service) Register(ctx context.Context, p Profile) (*User, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return nil, fmt.Errorf("пустой id участника: %w", common.ErrUnknownUser)
	}
	teach, err := common.NormalizeSkills(p.TeachSkills)
	if err != nil {
		return nil, err
	}
	learn, err := common.NormalizeSkills(p.LearnSkills)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	now := s.now().UTC()
	u := &User{
		ID:               id,
		DisplayName:      strings.TrimSpace(p.DisplayName),
		TeachSkills:      teach,
		LearnSkills:      learn,
		ProfileCompleted: len(teach)+len(learn) > 0,
		NotifyChatID:     p.NotifyChatID,
		TokenHash:        p.TokenHash,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Upsert(ctx, u); err != nil {
		return nil, err
	}
	s.notify(id, teach)

	log.WithFields(log.Fields{
		"user_id": id,
		"teach":   teach,
		"learn":   learn,
	}).Info("Профиль участника сохранён")

	return s.repo.GetByID(ctx, id)
}

// UpdateSkills заменяет наборы навыков участника.
func (s *Service) UpdateSkills(ctx context.Context, id string, teachRaw, learnRaw []string) (*User, error) {
	teach, err := common.NormalizeSkills(teachRaw)
	if err != nil {
		return nil, err
	}
	learn, err := common.NormalizeSkills(learnRaw)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.TeachSkills = teach
	u.LearnSkills = learn
	u.ProfileCompleted = len(teach)+len(learn) > 0
	u.UpdatedAt = s.now().UTC()
	u.TokenHash = "" // пустой хеш — оставить прежний
	if err := s.repo.Upsert(ctx, u); err != nil {
		return nil, err
	}
	s.notify(id, teach)

	log.WithFields(log.Fields{"user_id": id, "teach": teach}).Debug("Навыки участника обновлены")
	return s.repo.GetByID(ctx, id)
}

// Get возвращает профиль участника.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// Exists проверяет, зарегистрирован ли участник.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// List возвращает всех участников, упорядоченных по id.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}

// TokenHash возвращает сохранённый хеш токена доступа участника.
func (s *Service) TokenHash(ctx context.Context, id string) (string, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.TokenHash, nil
}

// ChatID возвращает Telegram chat участника, если он подписан на уведомления.
func (s *Service) ChatID(ctx context.Context, id string) (int64, bool, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return 0, false, err
	}
	if u.NotifyChatID == nil {
		return 0, false, nil
	}
	return *u.NotifyChatID, true, nil
}

func (s *Service) notify(id string, teach []string) {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	for _, l := range s.listeners {
		l.TeachSkillsChanged(id, append([]string(nil), teach...))
	}
}
