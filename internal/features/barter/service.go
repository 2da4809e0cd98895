package barter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/skillbarter/barter-engine/internal/common"
	"github.com/skillbarter/barter-engine/internal/features/ledger"
)

// Directory подтверждает, что пользователь зарегистрирован.
type Directory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Presence сообщает, в сети ли учитель.
type Presence interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// Ledger готовит проводки к записи. Записывает их репозиторий сессий,
// вместе со сменой состояния.
type Ledger interface {
	Prepare(ctx context.Context, postings []ledger.Posting) ([]*ledger.Entry, error)
	LogStored(prepared, stored []*ledger.Entry)
}

// Notifier получает события сессий. Вызывается после фиксации перехода
// и не должен блокировать вызывающего.
type Notifier interface {
	SessionChanged(s *Session, ev Event)
}

// NopNotifier ничего не делает.
type NopNotifier struct{}

func (NopNotifier) SessionChanged(*Session, Event) {}

// Coordinator управляет жизненным циклом бартер-сессий.
type Coordinator struct {
	repo     Repository
	dir      Directory
	presence Presence
	ledger   Ledger
	notifier Notifier
	now      func() time.Time
	newID    func() string
}

// NewCoordinator создаёт координатор. notifier может быть nil.
func NewCoordinator(repo Repository, dir Directory, presence Presence, l Ledger, notifier Notifier, now func() time.Time) *Coordinator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		repo:     repo,
		dir:      dir,
		presence: presence,
		ledger:   l,
		notifier: notifier,
		now:      now,
		newID:    uuid.NewString,
	}
}

// Open открывает сессию в состоянии requested.
//
// Ошибки: ErrSelfSession, ErrUnknownUser, ErrInvalidSkillSet,
// ErrTeacherOffline, ErrPairBusy.
func (c *Coordinator) Open(ctx context.Context, learnerID, teacherID string, skills []string) (*Session, error) {
	learnerID = strings.TrimSpace(learnerID)
	teacherID = strings.TrimSpace(teacherID)
	if learnerID == teacherID {
		return nil, common.ErrSelfSession
	}
	for _, id := range []string{learnerID, teacherID} {
		ok, err := c.dir.Exists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("ошибка проверки пользователя: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("участник %s: %w", id, common.ErrUnknownUser)
		}
	}
	normalized, err := common.NormalizeSkills(skills)
	if err != nil {
		return nil, err
	}
	online, err := c.presence.IsOnline(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки присутствия: %w", err)
	}
	if !online {
		return nil, fmt.Errorf("учитель %s: %w", teacherID, common.ErrTeacherOffline)
	}

	now := c.now().UTC()
	s := &Session{
		ID:        c.newID(),
		LearnerID: learnerID,
		TeacherID: teacherID,
		PairKey:   common.PairKey(learnerID, teacherID),
		Skills:    normalized,
		State:     StateRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.repo.Create(ctx, s); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"session_id": s.ID,
		"learner_id": learnerID,
		"teacher_id": teacherID,
		"skills":     normalized,
	}).Info("Сессия открыта")
	c.notifier.SessionChanged(s.clone(), EventOpen)
	return s, nil
}

// Accept — учитель принимает запрос.
func (c *Coordinator) Accept(ctx context.Context, sessionID string) (*Session, error) {
	return c.transition(ctx, sessionID, EventAccept)
}

// Decline — учитель отклоняет запрос.
func (c *Coordinator) Decline(ctx context.Context, sessionID string) (*Session, error) {
	return c.transition(ctx, sessionID, EventDecline)
}

// Activate начинает принятую сессию.
func (c *Coordinator) Activate(ctx context.Context, sessionID string) (*Session, error) {
	return c.transition(ctx, sessionID, EventActivate)
}

// Cancel отменяет незавершённую сессию. На леджер не влияет.
func (c *Coordinator) Cancel(ctx context.Context, sessionID string) (*Session, error) {
	return c.transition(ctx, sessionID, EventCancel)
}

func (c *Coordinator) transition(ctx context.Context, sessionID string, ev Event, expect ...State) (*Session, error) {
	s, err := c.repo.Transition(ctx, sessionID, ev, c.now().UTC(), expect...)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"session_id": s.ID,
		"event":      ev,
		"state":      s.State,
	}).Info("Переход сессии")
	c.notifier.SessionChanged(s.clone(), ev)
	return s, nil
}

// Complete завершает активную сессию: учитель получает awarded очков,
// ученик платит столько же. Обе проводки и переход в completed
// фиксируются вместе. Если у ученика не хватает очков — ErrInsufficientBalance,
// сессия остаётся active и проводок нет.
func (c *Coordinator) Complete(ctx context.Context, sessionID string, awarded int64) (*Session, error) {
	if awarded < 0 {
		return nil, fmt.Errorf("награда %d < 0: %w", awarded, common.ErrInvalidAmount)
	}
	s, err := c.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// Ранняя проверка: повтор завершения не доходит до леджера.
	if _, err := Next(s.State, EventComplete); err != nil {
		return nil, err
	}

	prepared, err := c.ledger.Prepare(ctx, []ledger.Posting{
		{UserID: s.TeacherID, Delta: awarded, Reason: ledger.ReasonTeachCredit, CorrelationID: s.ID},
		{UserID: s.LearnerID, Delta: -awarded, Reason: ledger.ReasonLearnDebit, CorrelationID: s.ID},
	})
	if err != nil {
		return nil, err
	}

	done, stored, err := c.repo.Complete(ctx, sessionID, awarded, prepared, c.now().UTC())
	if err != nil {
		log.WithError(err).WithField("session_id", sessionID).Warn("Завершение сессии отклонено")
		return nil, err
	}
	c.ledger.LogStored(prepared, stored)

	log.WithFields(log.Fields{
		"session_id": done.ID,
		"teacher_id": done.TeacherID,
		"learner_id": done.LearnerID,
		"awarded":    awarded,
	}).Info("Сессия завершена")
	c.notifier.SessionChanged(done.clone(), EventComplete)
	return done, nil
}

// Get возвращает сессию.
func (c *Coordinator) Get(ctx context.Context, sessionID string) (*Session, error) {
	return c.repo.Get(ctx, sessionID)
}

// ListForUser возвращает сессии пользователя в порядке создания.
func (c *Coordinator) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	return c.repo.ListForUser(ctx, userID)
}

// SweepStale отменяет сессии, застрявшие в requested/accepted дольше olderThan.
// Отмена идёт обычным переходом cancel; сессии, успевшие сменить состояние
// между выборкой и отменой, пропускаются.
func (c *Coordinator) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := c.now().Add(-olderThan)
	sweepable := []State{StateRequested, StateAccepted}
	stale, err := c.repo.ListStale(ctx, sweepable, cutoff)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, s := range stale {
		if err := ctx.Err(); err != nil {
			return cancelled, err
		}
		// Только из выбранного состояния: любой переход после выборки
		// обновил updated_at, и сессия уже не зависшая.
		if _, err := c.transition(ctx, s.ID, EventCancel, s.State); err != nil {
			log.WithError(err).WithField("session_id", s.ID).Debug("Сессия не отменена при очистке")
			continue
		}
		cancelled++
	}
	if cancelled > 0 {
		log.WithFields(log.Fields{
			"cancelled": cancelled,
			"cutoff":    cutoff.Format(time.RFC3339),
		}).Info("Зависшие сессии отменены")
	}
	return cancelled, nil
}
