package matching

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/skillbarter/barter-engine/internal/common"
)

// Directory подтверждает, что пользователь зарегистрирован.
type Directory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Presence фильтрует кандидатов по онлайну.
type Presence interface {
	ListOnline(ctx context.Context, userIDs []string) (map[string]struct{}, error)
}

// Balances отдаёт балансы пачкой.
type Balances interface {
	Balances(ctx context.Context, userIDs []string) (map[string]int64, error)
}

// Service — движок подбора.
type Service struct {
	index        *SkillIndex
	dir          Directory
	presence     Presence
	balances     Balances
	defaultLimit int
}

// NewService создаёт движок подбора. defaultLimit 0 — без ограничения.
func NewService(index *SkillIndex, dir Directory, presence Presence, balances Balances, defaultLimit int) *Service {
	return &Service{
		index:        index,
		dir:          dir,
		presence:     presence,
		balances:     balances,
		defaultLimit: defaultLimit,
	}
}

// FindMatches ранжирует учителей под запрошенные навыки.
//
// Пустой набор навыков означает «все учителя из индекса» с нулевым
// пересечением. Сам ученик в выдачу не попадает. limit <= 0 — лимит
// по умолчанию.
func (s *Service) FindMatches(ctx context.Context, learnerID string, skills []string, limit int) ([]Candidate, error) {
	ok, err := s.dir.Exists(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки ученика: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("ученик %s: %w", learnerID, common.ErrUnknownUser)
	}
	requested, err := common.NormalizeSkills(skills)
	if err != nil {
		return nil, err
	}

	snap := s.index.load()
	byID := make(map[string]*Candidate)
	if len(requested) == 0 {
		for userID := range snap.byUser {
			byID[userID] = &Candidate{UserID: userID, Skills: []string{}}
		}
	} else {
		for _, skill := range requested {
			for _, userID := range snap.bySkill[skill] {
				c, ok := byID[userID]
				if !ok {
					c = &Candidate{UserID: userID}
					byID[userID] = c
				}
				c.Overlap++
				c.Skills = append(c.Skills, skill)
			}
		}
	}
	delete(byID, learnerID)

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return []Candidate{}, nil
	}

	online, err := s.presence.ListOnline(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения присутствия: %w", err)
	}
	balances, err := s.balances.Balances(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения балансов: %w", err)
	}

	out := make([]Candidate, 0, len(byID))
	for id, c := range byID {
		_, c.Online = online[id]
		c.Balance = balances[id]
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })

	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	log.WithFields(log.Fields{
		"learner_id": learnerID,
		"skills":     requested,
		"found":      len(out),
	}).Debug("Подбор учителей выполнен")
	return out, nil
}
