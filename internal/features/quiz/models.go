// Package quiz оценивает ответы на квизы и начисляет за них очки.
package quiz

import "time"

// Quiz — квиз из каталога.
type Quiz struct {
	ID        string     `yaml:"id"`
	Title     string     `yaml:"title"`
	Points    int64      `yaml:"points"` // Очки за квиз без ошибок
	Questions []Question `yaml:"questions"`
}

// Question — вопрос с вариантами ответа. Correct — индекс верного варианта.
type Question struct {
	ID      string   `yaml:"id"`
	Prompt  string   `yaml:"prompt"`
	Options []string `yaml:"options"`
	Correct int      `yaml:"correct"`
}

// State — состояние попытки.
type State string

const (
	StateSubmitted State = "submitted"
	StateGraded    State = "graded"
)

// Submission — ответы пользователя. nil в Answers — вопрос пропущен.
// Пустой AttemptID будет сгенерирован; повтор с тем же id идемпотентен.
type Submission struct {
	AttemptID string
	QuizID    string
	UserID    string
	Answers   []*int
}

// Feedback — верен ли ответ на один вопрос.
type Feedback struct {
	Index      int    `json:"index"`
	QuestionID string `json:"question_id,omitempty"`
	Correct    bool   `json:"correct"`
}

// Attempt — оценённая попытка. После оценки не меняется.
type Attempt struct {
	ID             string     `db:"id"`
	QuizID         string     `db:"quiz_id"`
	UserID         string     `db:"user_id"`
	Answers        []*int     `db:"answers"`
	Score          int        `db:"score"`
	TotalQuestions int        `db:"total_questions"`
	Points         int64      `db:"points"`
	Feedback       []Feedback `db:"feedback"` // разбор по вопросам
	State          State      `db:"state"`
	LedgerEntryID  string     `db:"ledger_entry_id"`
	CreatedAt      time.Time  `db:"created_at"`
	GradedAt       time.Time  `db:"graded_at"`
}

func (a *Attempt) clone() *Attempt {
	c := *a
	c.Answers = make([]*int, len(a.Answers))
	for i, v := range a.Answers {
		if v != nil {
			x := *v
			c.Answers[i] = &x
		}
	}
	c.Feedback = make([]Feedback, len(a.Feedback))
	copy(c.Feedback, a.Feedback)
	return &c
}
