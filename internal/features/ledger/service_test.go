package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/skillbarter/barter-engine/internal/common"
)

type staticDirectory map[string]bool

func (d staticDirectory) Exists(_ context.Context, id string) (bool, error) {
	return d[id], nil
}

func newTestService(users ...string) (*Service, *MemoryStore) {
	dir := staticDirectory{}
	for _, u := range users {
		dir[u] = true
	}
	store := NewMemoryStore()
	now := func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return NewService(store, dir, now), store
}

func sumEntries(t *testing.T, svc *Service, userID string) int64 {
	t.Helper()
	entries, err := svc.History(context.Background(), userID, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	var sum int64
	for _, e := range entries {
		sum += e.Delta
	}
	return sum
}

func TestPostCreditAndBalance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService("u1")

	e, err := svc.Post(ctx, "u1", 20, ReasonQuizCredit, "attempt-1")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if e.BalanceAfter != 20 || e.ID == "" {
		t.Fatalf("unexpected entry %+v", e)
	}
	bal, err := svc.BalanceOf(ctx, "u1")
	if err != nil || bal != 20 {
		t.Fatalf("BalanceOf = %d, %v", bal, err)
	}
}

func TestPostIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService("u1")

	first, err := svc.Post(ctx, "u1", 15, ReasonQuizCredit, "attempt-7")
	if err != nil {
		t.Fatalf("first Post: %v", err)
	}
	second, err := svc.Post(ctx, "u1", 15, ReasonQuizCredit, "attempt-7")
	if err != nil {
		t.Fatalf("second Post: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay returned a new entry: %s vs %s", first.ID, second.ID)
	}
	history, _ := svc.History(ctx, "u1", 0)
	if len(history) != 1 {
		t.Fatalf("stored %d entries, want 1", len(history))
	}
	if bal, _ := svc.BalanceOf(ctx, "u1"); bal != 15 {
		t.Fatalf("balance = %d, want 15", bal)
	}
}

func TestConcurrentDuplicatePostsStoreOneEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService("u1")

	const workers = 32
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := svc.Post(ctx, "u1", 5, ReasonQuizCredit, "same-attempt")
			if err != nil {
				t.Errorf("Post: %v", err)
				return
			}
			ids[i] = e.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("duplicate posts returned different entries")
		}
	}
	if bal, _ := svc.BalanceOf(ctx, "u1"); bal != 5 {
		t.Fatalf("balance = %d, want 5", bal)
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService("learner")

	if _, err := svc.Post(ctx, "learner", 10, ReasonQuizCredit, "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Post(ctx, "learner", -1, ReasonLearnDebit, fmt.Sprintf("session-%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, common.ErrInsufficientBalance):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok != 10 || rejected != 15 {
		t.Fatalf("ok=%d rejected=%d, want 10/15", ok, rejected)
	}
	bal, _ := svc.BalanceOf(ctx, "learner")
	if bal != 0 || sumEntries(t, svc, "learner") != bal {
		t.Fatalf("balance %d does not match entry sum", bal)
	}
}

func TestConcurrentPostsDifferentUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := []string{"a", "b", "c", "d"}
	svc, _ := newTestService(users...)

	var wg sync.WaitGroup
	for _, u := range users {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(u string, i int) {
				defer wg.Done()
				if _, err := svc.Post(ctx, u, 2, ReasonTeachCredit, fmt.Sprintf("%s-%d", u, i)); err != nil {
					t.Errorf("Post: %v", err)
				}
			}(u, i)
		}
	}
	wg.Wait()

	for _, u := range users {
		bal, _ := svc.BalanceOf(ctx, u)
		if bal != 100 || sumEntries(t, svc, u) != 100 {
			t.Fatalf("user %s balance = %d, want 100", u, bal)
		}
	}
}

func TestPostBatchAllOrNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService("teacher", "learner")

	if _, err := svc.Post(ctx, "learner", 5, ReasonQuizCredit, "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := svc.PostBatch(ctx, []Posting{
		{UserID: "teacher", Delta: 10, Reason: ReasonTeachCredit, CorrelationID: "s1"},
		{UserID: "learner", Delta: -10, Reason: ReasonLearnDebit, CorrelationID: "s1"},
	})
	if !errors.Is(err, common.ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}
	if h, _ := svc.History(ctx, "teacher", 0); len(h) != 0 {
		t.Fatalf("teacher got %d entries from a rejected batch", len(h))
	}
	if bal, _ := svc.BalanceOf(ctx, "learner"); bal != 5 {
		t.Fatalf("learner balance = %d, want 5", bal)
	}
}

func TestPostValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService("u1")

	tests := []struct {
		name    string
		posting Posting
		want    error
	}{
		{"unknown reason", Posting{UserID: "u1", Delta: 1, Reason: "bonus", CorrelationID: "x"}, common.ErrInvalidReason},
		{"empty correlation", Posting{UserID: "u1", Delta: 1, Reason: ReasonQuizCredit, CorrelationID: " "}, common.ErrInvalidReason},
		{"negative credit", Posting{UserID: "u1", Delta: -1, Reason: ReasonTeachCredit, CorrelationID: "x"}, common.ErrInvalidAmount},
		{"positive debit", Posting{UserID: "u1", Delta: 1, Reason: ReasonLearnDebit, CorrelationID: "x"}, common.ErrInvalidAmount},
		{"unknown user", Posting{UserID: "ghost", Delta: 1, Reason: ReasonQuizCredit, CorrelationID: "x"}, common.ErrUnknownUser},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PostBatch(ctx, []Posting{tt.posting})
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}

	_, err := svc.PostBatch(ctx, []Posting{
		{UserID: "u1", Delta: 1, Reason: ReasonQuizCredit, CorrelationID: "dup"},
		{UserID: "u1", Delta: 2, Reason: ReasonQuizCredit, CorrelationID: "dup"},
	})
	if !errors.Is(err, common.ErrInvalidReason) {
		t.Fatalf("duplicate key in batch: error = %v", err)
	}
}

func TestHistoryAndLeaderboard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService("a", "b", "c")

	posts := []Posting{
		{UserID: "a", Delta: 10, Reason: ReasonQuizCredit, CorrelationID: "q1"},
		{UserID: "b", Delta: 30, Reason: ReasonQuizCredit, CorrelationID: "q2"},
		{UserID: "c", Delta: 10, Reason: ReasonQuizCredit, CorrelationID: "q3"},
		{UserID: "a", Delta: 5, Reason: ReasonTeachCredit, CorrelationID: "s1"},
	}
	for _, p := range posts {
		if _, err := svc.PostBatch(ctx, []Posting{p}); err != nil {
			t.Fatalf("PostBatch: %v", err)
		}
	}

	history, err := svc.History(ctx, "a", 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Reason != ReasonTeachCredit || history[0].BalanceAfter != 15 {
		t.Fatalf("unexpected history %+v", history)
	}

	top, err := svc.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	want := []BalanceRow{{UserID: "b", Balance: 30}, {UserID: "a", Balance: 15}}
	if len(top) != 2 || top[0] != want[0] || top[1] != want[1] {
		t.Fatalf("Leaderboard = %+v, want %+v", top, want)
	}

	if _, err := svc.BalanceOf(ctx, "ghost"); !errors.Is(err, common.ErrUnknownUser) {
		t.Fatalf("BalanceOf(ghost) error = %v", err)
	}
}
