// Package barter координирует бартер-сессии между учеником и учителем:
// открытие, машину состояний и расчёт очков при завершении.
package barter

import "time"

// State — состояние сессии.
type State string

const (
	StateRequested State = "requested"
	StateAccepted  State = "accepted"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateDeclined  State = "declined"
	StateCancelled State = "cancelled"
)

// Terminal — из этого состояния переходов нет.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateDeclined, StateCancelled:
		return true
	}
	return false
}

// openStates занимают пару: у пары может быть только одна такая сессия.
var openStates = []State{StateRequested, StateAccepted, StateActive}

// Event — событие над сессией.
type Event string

const (
	EventOpen     Event = "open"
	EventAccept   Event = "accept"
	EventDecline  Event = "decline"
	EventActivate Event = "activate"
	EventComplete Event = "complete"
	EventCancel   Event = "cancel"
)

// Session — бартер-сессия.
type Session struct {
	ID            string     `db:"id"`
	LearnerID     string     `db:"learner_id"`
	TeacherID     string     `db:"teacher_id"`
	PairKey       string     `db:"pair_key"` // неупорядоченная пара участников
	Skills        []string   `db:"skills"`
	State         State      `db:"state"`
	AwardedPoints int64      `db:"awarded_points"` // заполняется при завершении
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	ClosedAt      *time.Time `db:"closed_at"`
}

// IsParticipant сообщает, участвует ли пользователь в сессии.
func (s *Session) IsParticipant(userID string) bool {
	return userID == s.LearnerID || userID == s.TeacherID
}

func (s *Session) clone() *Session {
	c := *s
	c.Skills = append([]string(nil), s.Skills...)
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

// apply переводит сессию в новое состояние и обновляет отметки времени.
func (s *Session) apply(next State, at time.Time) {
	s.State = next
	s.UpdatedAt = at
	if next.Terminal() {
		t := at
		s.ClosedAt = &t
	}
}
