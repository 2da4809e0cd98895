// Package bot отправляет участникам уведомления о бартер-сессиях в Telegram.
// Отправка асинхронная и best-effort: ошибки только логируются.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"github.com/skillbarter/barter-engine/internal/common"
	"github.com/skillbarter/barter-engine/internal/features/barter"
)

// Sender — часть telego.Bot, нужная для отправки.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// ChatDirectory находит Telegram chat участника.
type ChatDirectory interface {
	ChatID(ctx context.Context, userID string) (int64, bool, error)
}

// New создаёт клиента Telegram Bot API.
func New(token string) (*telego.Bot, error) {
	b, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания бота: %w", err)
	}
	return b, nil
}

// Notifier рассылает события сессий.
type Notifier struct {
	sender  Sender
	chats   ChatDirectory
	timeout time.Duration

	// ограничитель параллелизма отправок
	inflight chan struct{}
	wg       sync.WaitGroup
}

// NewNotifier создаёт рассыльщик. maxInflight <= 0 — 16.
func NewNotifier(sender Sender, chats ChatDirectory, maxInflight int) *Notifier {
	if maxInflight <= 0 {
		maxInflight = 16
	}
	return &Notifier{
		sender:   sender,
		chats:    chats,
		timeout:  10 * time.Second,
		inflight: make(chan struct{}, maxInflight),
	}
}

// SessionChanged ставит уведомления в очередь и сразу возвращается.
// Если очередь заполнена, уведомление отбрасывается.
func (n *Notifier) SessionChanged(s *barter.Session, ev barter.Event) {
	for _, m := range Messages(s, ev) {
		select {
		case n.inflight <- struct{}{}:
		default:
			log.WithFields(log.Fields{"session_id": s.ID, "user_id": m.UserID}).
				Warn("Очередь уведомлений переполнена, уведомление пропущено")
			continue
		}
		n.wg.Add(1)
		go func(m Message) {
			defer n.wg.Done()
			defer func() { <-n.inflight }()
			defer RecoverFromPanic()
			n.send(m)
		}(m)
	}
}

// Wait ждёт завершения отправок. Вызывается на shutdown.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) send(m Message) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	chatID, ok, err := n.chats.ChatID(ctx, m.UserID)
	if err != nil {
		log.WithError(err).WithField("user_id", m.UserID).Debug("Не удалось найти chat участника")
		return
	}
	if !ok {
		return
	}
	if _, err := n.sender.SendMessage(ctx, tu.Message(tu.ID(chatID), m.Text)); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id": m.UserID,
			"chat_id": chatID,
		}).Debug("Не удалось отправить уведомление")
		return
	}
	log.WithField("user_id", m.UserID).Debug("Уведомление отправлено")
}

// Message — уведомление одному участнику.
type Message struct {
	UserID string
	Text   string
}

// Messages строит тексты уведомлений для события сессии.
func Messages(s *barter.Session, ev barter.Event) []Message {
	skills := "без темы"
	if len(s.Skills) > 0 {
		skills = strings.Join(s.Skills, ", ")
	}

	switch ev {
	case barter.EventOpen:
		return []Message{{s.TeacherID, fmt.Sprintf("📚 %s просит научить: %s", s.LearnerID, skills)}}
	case barter.EventAccept:
		return []Message{{s.LearnerID, fmt.Sprintf("✅ %s принял запрос (%s)", s.TeacherID, skills)}}
	case barter.EventDecline:
		return []Message{{s.LearnerID, fmt.Sprintf("❌ %s отклонил запрос (%s)", s.TeacherID, skills)}}
	case barter.EventActivate:
		return []Message{
			{s.TeacherID, fmt.Sprintf("▶️ Сессия с %s началась", s.LearnerID)},
			{s.LearnerID, fmt.Sprintf("▶️ Сессия с %s началась", s.TeacherID)},
		}
	case barter.EventComplete:
		return []Message{
			{s.TeacherID, fmt.Sprintf("🎓 Сессия завершена: %s", common.FormatPoints(s.AwardedPoints))},
			{s.LearnerID, fmt.Sprintf("🎓 Сессия завершена: %s", common.FormatPoints(-s.AwardedPoints))},
		}
	case barter.EventCancel:
		return []Message{
			{s.TeacherID, fmt.Sprintf("🚫 Сессия с %s отменена", s.LearnerID)},
			{s.LearnerID, fmt.Sprintf("🚫 Сессия с %s отменена", s.TeacherID)},
		}
	}
	return nil
}
