// Package ledger — единственный писатель балансов очков.
// models.go описывает проводки и коды причин.
package ledger

import "time"

// Reason — код причины проводки. Это же тег активности в истории профиля.
type Reason string

const (
	ReasonTeachCredit Reason = "teach-credit" // Учитель получил очки за сессию
	ReasonLearnDebit  Reason = "learn-debit"  // Ученик заплатил за сессию
	ReasonQuizCredit  Reason = "quiz-credit"  // Начисление за пройденный квиз
)

// Valid сообщает, известна ли причина.
func (r Reason) Valid() bool {
	switch r {
	case ReasonTeachCredit, ReasonLearnDebit, ReasonQuizCredit:
		return true
	}
	return false
}

// IsDebit — списание (дельта ≤ 0, может упереться в баланс).
func (r Reason) IsDebit() bool {
	return r == ReasonLearnDebit
}

// Entry — неизменяемая проводка. Баланс пользователя = сумма его Delta.
type Entry struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	Delta         int64     `db:"delta"`
	Reason        Reason    `db:"reason"`
	CorrelationID string    `db:"correlation_id"` // id сессии или попытки квиза
	BalanceAfter  int64     `db:"balance_after"`  // баланс сразу после проводки
	CreatedAt     time.Time `db:"created_at"`
}

// Posting — запрос на проводку.
type Posting struct {
	UserID        string
	Delta         int64
	Reason        Reason
	CorrelationID string
}

// BalanceRow — строка таблицы лидеров.
type BalanceRow struct {
	UserID  string `db:"user_id"`
	Balance int64  `db:"balance"`
}

// IdempotencyKey — ключ повторов: пара (correlation id, reason).
func (e *Entry) IdempotencyKey() string {
	return e.CorrelationID + "\x00" + string(e.Reason)
}

func (e *Entry) clone() *Entry {
	c := *e
	return &c
}
