package quiz

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/skillbarter/barter-engine/internal/common"
	"github.com/skillbarter/barter-engine/internal/features/ledger"
)

// Ledger — куда уходит начисление за квиз.
type Ledger interface {
	Post(ctx context.Context, userID string, delta int64, reason ledger.Reason, correlationID string) (*ledger.Entry, error)
}

// Service оценивает попытки.
type Service struct {
	catalog  *Catalog
	attempts AttemptStore
	ledger   Ledger
	now      func() time.Time
	newID    func() string

	inflight singleflight.Group // одна оценка на attempt id одновременно
}

func NewService(catalog *Catalog, attempts AttemptStore, l Ledger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		catalog:  catalog,
		attempts: attempts,
		ledger:   l,
		now:      now,
		newID:    uuid.NewString,
	}
}

// Catalog возвращает каталог квизов.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Score считает верные ответы, очки и разбор по вопросам.
// Пропущенные и вне диапазона ответы считаются неверными.
func Score(q *Quiz, answers []*int) (score int, points int64, feedback []Feedback) {
	total := len(q.Questions)
	feedback = make([]Feedback, 0, total)
	if total == 0 {
		return 0, 0, feedback
	}
	for i, question := range q.Questions {
		correct := i < len(answers) && answers[i] != nil && *answers[i] == question.Correct
		if correct {
			score++
		}
		feedback = append(feedback, Feedback{Index: i, QuestionID: question.ID, Correct: correct})
	}
	points = int64(math.Round(float64(q.Points) * float64(score) / float64(total)))
	return score, points, feedback
}

// Grade оценивает попытку и начисляет очки.
//
// Оценка и начисление составляют одну операцию: сначала проводка в леджере,
// потом сохранение попытки. Если леджер отказал, попытка не сохраняется
// и её надо повторить целиком. Повтор с тем же AttemptID не начисляет
// очки второй раз.
func (s *Service) Grade(ctx context.Context, sub Submission) (*Attempt, error) {
	q, err := s.catalog.Get(sub.QuizID)
	if err != nil {
		return nil, err
	}
	if len(sub.Answers) > len(q.Questions) {
		return nil, fmt.Errorf("%d ответов на %d вопросов: %w", len(sub.Answers), len(q.Questions), common.ErrInvalidAnswers)
	}
	sub.AttemptID = strings.TrimSpace(sub.AttemptID)
	if sub.AttemptID == "" {
		sub.AttemptID = s.newID()
	}

	// Общая оценка не должна зависеть от отмены первого из ожидающих.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.inflight.Do(sub.AttemptID, func() (any, error) {
		return s.grade(shared, q, sub)
	})
	if err != nil {
		return nil, err
	}
	a := v.(*Attempt)
	if a.UserID != sub.UserID || a.QuizID != sub.QuizID {
		return nil, fmt.Errorf("попытка %s принадлежит другому квизу или пользователю: %w", sub.AttemptID, common.ErrInvalidAnswers)
	}
	return a.clone(), nil
}

func (s *Service) grade(ctx context.Context, q *Quiz, sub Submission) (*Attempt, error) {
	existing, err := s.attempts.Get(ctx, sub.AttemptID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := s.now().UTC()
	score, points, feedback := Score(q, sub.Answers)
	a := &Attempt{
		ID:             sub.AttemptID,
		QuizID:         q.ID,
		UserID:         sub.UserID,
		Answers:        sub.Answers,
		Score:          score,
		TotalQuestions: len(q.Questions),
		Points:         points,
		Feedback:       feedback,
		State:          StateSubmitted,
		CreatedAt:      now,
	}
	a = a.clone()

	entry, err := s.ledger.Post(ctx, sub.UserID, points, ledger.ReasonQuizCredit, sub.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("начисление за квиз не выполнено: %w", err)
	}
	// Проводка с этим id уже есть, но записана не для этих ответов: id занят
	// другим пользователем или повтор пришёл с другими ответами, а попытка
	// ещё не сохранена.
	if entry.UserID != sub.UserID || entry.Delta != points {
		log.WithFields(log.Fields{
			"attempt_id":  sub.AttemptID,
			"user_id":     sub.UserID,
			"entry_user":  entry.UserID,
			"entry_delta": entry.Delta,
		}).Warn("Id попытки уже использован для другого начисления")
		return nil, fmt.Errorf("попытка %s уже начислена с другими параметрами: %w", sub.AttemptID, common.ErrInvalidAnswers)
	}
	a.LedgerEntryID = entry.ID
	a.State = StateGraded
	a.GradedAt = now

	saved, err := s.attempts.Save(ctx, a)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"attempt_id": saved.ID,
		"quiz_id":    saved.QuizID,
		"user_id":    saved.UserID,
		"score":      saved.Score,
		"points":     saved.Points,
	}).Info("Квиз оценён")
	return saved, nil
}

// Attempt возвращает сохранённую попытку.
func (s *Service) Attempt(ctx context.Context, id string) (*Attempt, error) {
	a, err := s.attempts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("попытка %s: %w", id, common.ErrUnknownQuiz)
	}
	return a, nil
}

// Attempts возвращает попытки пользователя, новые первыми.
func (s *Service) Attempts(ctx context.Context, userID string, limit int) ([]*Attempt, error) {
	return s.attempts.ListByUser(ctx, userID, limit)
}
