package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mymmrac/telego"

	"github.com/skillbarter/barter-engine/internal/features/barter"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[int64][]string
	fail bool
}

func (s *recordingSender) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("telegram down")
	}
	if s.sent == nil {
		s.sent = make(map[int64][]string)
	}
	s.sent[p.ChatID.ID] = append(s.sent[p.ChatID.ID], p.Text)
	return &telego.Message{}, nil
}

type staticChats map[string]int64

func (c staticChats) ChatID(_ context.Context, id string) (int64, bool, error) {
	chat, ok := c[id]
	return chat, ok, nil
}

func TestMessagesPerEvent(t *testing.T) {
	t.Parallel()
	s := &barter.Session{ID: "s1", LearnerID: "lena", TeacherID: "tom", Skills: []string{"go"}, AwardedPoints: 21}

	tests := []struct {
		ev         barter.Event
		recipients []string
		contains   string
	}{
		{barter.EventOpen, []string{"tom"}, "go"},
		{barter.EventAccept, []string{"lena"}, "tom"},
		{barter.EventDecline, []string{"lena"}, "отклонил"},
		{barter.EventActivate, []string{"tom", "lena"}, "началась"},
		{barter.EventComplete, []string{"tom", "lena"}, "21 очко"},
		{barter.EventCancel, []string{"tom", "lena"}, "отменена"},
	}
	for _, tt := range tests {
		msgs := Messages(s, tt.ev)
		if len(msgs) != len(tt.recipients) {
			t.Fatalf("%s: %d messages, want %d", tt.ev, len(msgs), len(tt.recipients))
		}
		for i, m := range msgs {
			if m.UserID != tt.recipients[i] {
				t.Fatalf("%s: recipient %s, want %s", tt.ev, m.UserID, tt.recipients[i])
			}
		}
		if !strings.Contains(msgs[0].Text, tt.contains) {
			t.Fatalf("%s: %q does not contain %q", tt.ev, msgs[0].Text, tt.contains)
		}
	}
}

func TestNotifierSendsToKnownChats(t *testing.T) {
	t.Parallel()
	sender := &recordingSender{}
	n := NewNotifier(sender, staticChats{"tom": 100}, 4)

	s := &barter.Session{ID: "s1", LearnerID: "lena", TeacherID: "tom", AwardedPoints: 5}
	n.SessionChanged(s, barter.EventComplete)
	n.Wait()

	if len(sender.sent[100]) != 1 {
		t.Fatalf("sent = %v, want one message to tom", sender.sent)
	}
	if !strings.Contains(sender.sent[100][0], "+5 очков") {
		t.Fatalf("text = %q", sender.sent[100][0])
	}
}

func TestNotifierSwallowsSendErrors(t *testing.T) {
	t.Parallel()
	n := NewNotifier(&recordingSender{fail: true}, staticChats{"tom": 1, "lena": 2}, 0)
	n.SessionChanged(&barter.Session{ID: "s1", LearnerID: "lena", TeacherID: "tom"}, barter.EventCancel)
	n.Wait()
}
