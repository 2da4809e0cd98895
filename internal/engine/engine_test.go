package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skillbarter/barter-engine/internal/common"
	"github.com/skillbarter/barter-engine/internal/features/barter"
	"github.com/skillbarter/barter-engine/internal/features/identity"
	"github.com/skillbarter/barter-engine/internal/features/ledger"
	"github.com/skillbarter/barter-engine/internal/features/matching"
	"github.com/skillbarter/barter-engine/internal/features/members"
	"github.com/skillbarter/barter-engine/internal/features/presence"
	"github.com/skillbarter/barter-engine/internal/features/quiz"
)

var fastHash = identity.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newEngine(t *testing.T, rateLimit int) *Engine {
	t.Helper()
	ctx := context.Background()

	people := members.NewService(members.NewMemoryRepository(), nil)
	index := matching.NewSkillIndex()
	people.Subscribe(index)

	store := ledger.NewMemoryStore()
	points := ledger.NewService(store, people, nil)
	online := presence.NewService(presence.NewMemoryStore(), people, time.Minute, nil)

	catalog := quiz.NewCatalog()
	if err := catalog.Register(quiz.Quiz{ID: "warmup", Points: 30, Questions: []quiz.Question{
		{Options: []string{"a", "b"}, Correct: 1},
	}}); err != nil {
		t.Fatalf("catalog: %v", err)
	}

	limiter := identity.NewRateLimiter(rateLimit, time.Minute)
	t.Cleanup(limiter.Close)

	e := New(Deps{
		Members:  people,
		Presence: online,
		Matching: matching.NewService(index, people, online, points, 0),
		Ledger:   points,
		Quiz:     quiz.NewService(catalog, quiz.NewMemoryAttempts(), points, nil),
		Sessions: barter.NewCoordinator(barter.NewMemoryRepository(store), people, online, points, nil, nil),
		Verifier: identity.NewVerifier(people, true, time.Minute, nil),
		Limiter:  limiter,
	})

	for _, p := range []members.Profile{
		{ID: "alice", LearnSkills: []string{"python"}},
		{ID: "tom", TeachSkills: []string{"Python"}},
	} {
		hash, err := identity.HashTokenWith(p.ID+"-token", fastHash)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		p.TokenHash = hash
		if _, err := e.Register(ctx, p); err != nil {
			t.Fatalf("Register %s: %v", p.ID, err)
		}
	}
	return e
}

var (
	alice = Caller{UserID: "alice", Token: "alice-token"}
	tom   = Caller{UserID: "tom", Token: "tom-token"}
)

func TestEngineSessionFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, 100)

	if err := e.Heartbeat(ctx, Caller{UserID: "tom", Token: "wrong"}); !errors.Is(err, common.ErrUnauthenticated) {
		t.Fatalf("Heartbeat with wrong token: %v", err)
	}
	if _, err := e.OpenSession(ctx, alice, "tom", []string{"python"}); !errors.Is(err, common.ErrTeacherOffline) {
		t.Fatalf("Open before heartbeat: %v", err)
	}
	if err := e.Heartbeat(ctx, tom); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	matches, err := e.FindMatches(ctx, "alice", []string{"python"}, 5)
	if err != nil || len(matches) != 1 || matches[0].UserID != "tom" || !matches[0].Online {
		t.Fatalf("FindMatches = %+v, %v", matches, err)
	}

	s, err := e.OpenSession(ctx, alice, "tom", []string{"python"})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if _, err := e.AcceptSession(ctx, alice, s.ID); !errors.Is(err, common.ErrNotParticipant) {
		t.Fatalf("learner accepting: %v", err)
	}
	if _, err := e.AcceptSession(ctx, tom, s.ID); err != nil {
		t.Fatalf("AcceptSession: %v", err)
	}
	if _, err := e.ActivateSession(ctx, tom, s.ID); err != nil {
		t.Fatalf("ActivateSession: %v", err)
	}
	if _, err := e.CompleteSession(ctx, tom, s.ID, 10); !errors.Is(err, common.ErrNotParticipant) {
		t.Fatalf("teacher completing: %v", err)
	}

	one := 1
	attempt, err := e.SubmitQuiz(ctx, alice, "", "warmup", []*int{&one})
	if err != nil || attempt.Points != 30 {
		t.Fatalf("SubmitQuiz = %+v, %v", attempt, err)
	}

	done, err := e.CompleteSession(ctx, alice, s.ID, 10)
	if err != nil || done.State != barter.StateCompleted {
		t.Fatalf("CompleteSession = %+v, %v", done, err)
	}
	if bal, _ := e.BalanceOf(ctx, "alice"); bal != 20 {
		t.Fatalf("alice balance = %d, want 20", bal)
	}
	if bal, _ := e.BalanceOf(ctx, "tom"); bal != 10 {
		t.Fatalf("tom balance = %d, want 10", bal)
	}

	history, _ := e.History(ctx, "alice", 0)
	if len(history) != 2 || history[0].Reason != ledger.ReasonLearnDebit {
		t.Fatalf("alice history = %+v", history)
	}
	top, _ := e.Leaderboard(ctx, 1)
	if len(top) != 1 || top[0].UserID != "alice" {
		t.Fatalf("Leaderboard = %+v", top)
	}
	if list, _ := e.Sessions(ctx, "tom"); len(list) != 1 {
		t.Fatalf("Sessions = %d", len(list))
	}
	if len(e.Quizzes()) != 1 {
		t.Fatal("Quizzes empty")
	}
}

func TestEngineOutsiderCannotTouchSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, 100)

	hash, _ := identity.HashTokenWith("eve-token", fastHash)
	if _, err := e.Register(ctx, members.Profile{ID: "eve", TokenHash: hash}); err != nil {
		t.Fatalf("Register eve: %v", err)
	}
	eve := Caller{UserID: "eve", Token: "eve-token"}

	_ = e.Heartbeat(ctx, tom)
	s, err := e.OpenSession(ctx, alice, "tom", nil)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if _, err := e.CancelSession(ctx, eve, s.ID); !errors.Is(err, common.ErrNotParticipant) {
		t.Fatalf("outsider cancel: %v", err)
	}
	if _, err := e.CancelSession(ctx, alice, s.ID); err != nil {
		t.Fatalf("CancelSession: %v", err)
	}
	if got, _ := e.Session(ctx, s.ID); got.State != barter.StateCancelled {
		t.Fatalf("state = %s", got.State)
	}
}

func TestEngineRateLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, 2)

	for i := 0; i < 2; i++ {
		if _, err := e.UpdateSkills(ctx, alice, nil, []string{"go"}); err != nil {
			t.Fatalf("UpdateSkills %d: %v", i, err)
		}
	}
	if _, err := e.UpdateSkills(ctx, alice, nil, []string{"go"}); !errors.Is(err, common.ErrRateLimited) {
		t.Fatalf("third call: %v", err)
	}
	// heartbeat не ограничивается
	for i := 0; i < 5; i++ {
		if err := e.Heartbeat(ctx, alice); err != nil {
			t.Fatalf("Heartbeat %d: %v", i, err)
		}
	}
	if online, _ := e.IsOnline(ctx, "alice"); !online {
		t.Fatal("alice offline after heartbeat")
	}
}

func TestEngineHeartbeatUnknownUser(t *testing.T) {
	t.Parallel()
	e := newEngine(t, 100)

	err := e.Heartbeat(context.Background(), Caller{UserID: "ghost", Token: "ghost-token"})
	if !errors.Is(err, common.ErrUnknownUser) {
		t.Fatalf("error = %v, want ErrUnknownUser", err)
	}
	if online, _ := e.IsOnline(context.Background(), "ghost"); online {
		t.Fatal("unknown user became online")
	}
}
