// Package engine — входная граница движка бартера. Каждая изменяющая
// операция сначала подтверждает вызывающего, затем проверяет лимит
// запросов и права на сессию, и только потом передаёт вызов сервису.
package engine

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/skillbarter/barter-engine/internal/common"
	"github.com/skillbarter/barter-engine/internal/features/barter"
	"github.com/skillbarter/barter-engine/internal/features/identity"
	"github.com/skillbarter/barter-engine/internal/features/ledger"
	"github.com/skillbarter/barter-engine/internal/features/matching"
	"github.com/skillbarter/barter-engine/internal/features/members"
	"github.com/skillbarter/barter-engine/internal/features/presence"
	"github.com/skillbarter/barter-engine/internal/features/quiz"
)

// Caller — вызывающий пользователь и его токен.
type Caller = identity.Caller

// Verifier подтверждает вызывающего.
type Verifier interface {
	Verify(ctx context.Context, c Caller) error
}

// Limiter ограничивает частоту запросов пользователя.
type Limiter interface {
	Allow(userID string) bool
}

// Deps — собранные сервисы.
type Deps struct {
	Members  *members.Service
	Presence *presence.Service
	Matching *matching.Service
	Ledger   *ledger.Service
	Quiz     *quiz.Service
	Sessions *barter.Coordinator
	Verifier Verifier
	Limiter  Limiter
}

// Engine — фасад над сервисами.
type Engine struct {
	members  *members.Service
	presence *presence.Service
	matching *matching.Service
	ledger   *ledger.Service
	quiz     *quiz.Service
	sessions *barter.Coordinator
	verifier Verifier
	limiter  Limiter
}

func New(d Deps) *Engine {
	return &Engine{
		members:  d.Members,
		presence: d.Presence,
		matching: d.Matching,
		ledger:   d.Ledger,
		quiz:     d.Quiz,
		sessions: d.Sessions,
		verifier: d.Verifier,
		limiter:  d.Limiter,
	}
}

func (e *Engine) authorize(ctx context.Context, c Caller) error {
	if err := e.verifier.Verify(ctx, c); err != nil {
		return err
	}
	if e.limiter != nil && !e.limiter.Allow(c.UserID) {
		log.WithField("user_id", c.UserID).Debug("Превышен лимит запросов")
		return common.ErrRateLimited
	}
	return nil
}

// --- Профили ---

// Register сохраняет профиль. Вызывается хранилищем профилей,
// которое само отвечает за выдачу токенов.
func (e *Engine) Register(ctx context.Context, p members.Profile) (*members.User, error) {
	return e.members.Register(ctx, p)
}

// UpdateSkills меняет навыки вызывающего.
func (e *Engine) UpdateSkills(ctx context.Context, c Caller, teach, learn []string) (*members.User, error) {
	if err := e.authorize(ctx, c); err != nil {
		return nil, err
	}
	return e.members.UpdateSkills(ctx, c.UserID, teach, learn)
}

// --- Присутствие ---

// Heartbeat отмечает вызывающего как находящегося в сети.
// Лимит запросов к heartbeat не применяется: клиенты шлют его по таймеру.
func (e *Engine) Heartbeat(ctx context.Context, c Caller) error {
	if err := e.verifier.Verify(ctx, c); err != nil {
		return err
	}
	return e.presence.Heartbeat(ctx, c.UserID)
}

func (e *Engine) IsOnline(ctx context.Context, userID string) (bool, error) {
	return e.presence.IsOnline(ctx, userID)
}

// --- Подбор ---

// FindMatches ищет учителей для ученика. Только чтение.
func (e *Engine) FindMatches(ctx context.Context, learnerID string, skills []string, limit int) ([]matching.Candidate, error) {
	return e.matching.FindMatches(ctx, learnerID, skills, limit)
}

// --- Сессии ---

// OpenSession открывает сессию: вызывающий — ученик.
func (e *Engine) OpenSession(ctx context.Context, c Caller, teacherID string, skills []string) (*barter.Session, error) {
	if err := e.authorize(ctx, c); err != nil {
		return nil, err
	}
	return e.sessions.Open(ctx, c.UserID, teacherID, skills)
}

// AcceptSession — только учитель.
func (e *Engine) AcceptSession(ctx context.Context, c Caller, sessionID string) (*barter.Session, error) {
	if err := e.guard(ctx, c, sessionID, teacherOnly); err != nil {
		return nil, err
	}
	return e.sessions.Accept(ctx, sessionID)
}

// DeclineSession — только учитель.
func (e *Engine) DeclineSession(ctx context.Context, c Caller, sessionID string) (*barter.Session, error) {
	if err := e.guard(ctx, c, sessionID, teacherOnly); err != nil {
		return nil, err
	}
	return e.sessions.Decline(ctx, sessionID)
}

// ActivateSession — любой участник.
func (e *Engine) ActivateSession(ctx context.Context, c Caller, sessionID string) (*barter.Session, error) {
	if err := e.guard(ctx, c, sessionID, anyParticipant); err != nil {
		return nil, err
	}
	return e.sessions.Activate(ctx, sessionID)
}

// CompleteSession — только ученик: он подтверждает, что обучение состоялось,
// и платит awarded очков.
func (e *Engine) CompleteSession(ctx context.Context, c Caller, sessionID string, awarded int64) (*barter.Session, error) {
	if err := e.guard(ctx, c, sessionID, learnerOnly); err != nil {
		return nil, err
	}
	return e.sessions.Complete(ctx, sessionID, awarded)
}

// CancelSession — любой участник.
func (e *Engine) CancelSession(ctx context.Context, c Caller, sessionID string) (*barter.Session, error) {
	if err := e.guard(ctx, c, sessionID, anyParticipant); err != nil {
		return nil, err
	}
	return e.sessions.Cancel(ctx, sessionID)
}

func (e *Engine) Session(ctx context.Context, sessionID string) (*barter.Session, error) {
	return e.sessions.Get(ctx, sessionID)
}

func (e *Engine) Sessions(ctx context.Context, userID string) ([]*barter.Session, error) {
	return e.sessions.ListForUser(ctx, userID)
}

type role int

const (
	anyParticipant role = iota
	teacherOnly
	learnerOnly
)

func (e *Engine) guard(ctx context.Context, c Caller, sessionID string, r role) error {
	if err := e.authorize(ctx, c); err != nil {
		return err
	}
	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	ok := false
	switch r {
	case anyParticipant:
		ok = s.IsParticipant(c.UserID)
	case teacherOnly:
		ok = c.UserID == s.TeacherID
	case learnerOnly:
		ok = c.UserID == s.LearnerID
	}
	if !ok {
		return fmt.Errorf("%s в сессии %s: %w", c.UserID, sessionID, common.ErrNotParticipant)
	}
	return nil
}

// --- Квизы ---

// SubmitQuiz оценивает ответы вызывающего.
func (e *Engine) SubmitQuiz(ctx context.Context, c Caller, attemptID, quizID string, answers []*int) (*quiz.Attempt, error) {
	if err := e.authorize(ctx, c); err != nil {
		return nil, err
	}
	return e.quiz.Grade(ctx, quiz.Submission{
		AttemptID: attemptID,
		QuizID:    quizID,
		UserID:    c.UserID,
		Answers:   answers,
	})
}

func (e *Engine) Quizzes() []*quiz.Quiz {
	return e.quiz.Catalog().List()
}

// --- Очки ---

func (e *Engine) BalanceOf(ctx context.Context, userID string) (int64, error) {
	return e.ledger.BalanceOf(ctx, userID)
}

func (e *Engine) History(ctx context.Context, userID string, limit int) ([]*ledger.Entry, error) {
	return e.ledger.History(ctx, userID, limit)
}

func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]ledger.BalanceRow, error) {
	return e.ledger.Leaderboard(ctx, limit)
}
