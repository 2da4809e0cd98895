package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/skillbarter/barter-engine/internal/common"
)

var testParams = Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type countingSource struct {
	mu     sync.Mutex
	hashes map[string]string
}

func (s *countingSource) TokenHash(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[id]
	if !ok {
		return "", fmt.Errorf("%s: %w", id, common.ErrUnknownUser)
	}
	return h, nil
}

func mustHash(t *testing.T, token string) string {
	t.Helper()
	h, err := HashTokenWith(token, testParams)
	if err != nil {
		t.Fatalf("HashTokenWith: %v", err)
	}
	return h
}

func TestHashAndVerifyToken(t *testing.T) {
	t.Parallel()
	h := mustHash(t, "s3cret")

	if !VerifyToken("s3cret", h) {
		t.Fatal("valid token rejected")
	}
	if VerifyToken("s3cret!", h) {
		t.Fatal("wrong token accepted")
	}
	if VerifyToken("s3cret", "$bcrypt$whatever") {
		t.Fatal("malformed hash accepted")
	}
	if _, err := HashTokenWith("", testParams); err == nil {
		t.Fatal("empty token hashed")
	}
}

func TestVerifier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &countingSource{hashes: map[string]string{
		"alice": mustHash(t, "alice-token"),
		"bob":   "",
	}}
	v := NewVerifier(src, true, time.Minute, nil)

	tests := []struct {
		name   string
		caller Caller
		ok     bool
	}{
		{"valid", Caller{UserID: "alice", Token: "alice-token"}, true},
		{"cached valid", Caller{UserID: "alice", Token: "alice-token"}, true},
		{"wrong token", Caller{UserID: "alice", Token: "nope"}, false},
		{"no token on file", Caller{UserID: "bob", Token: "x"}, false},
		{"unknown user", Caller{UserID: "ghost", Token: "x"}, false},
		{"empty id", Caller{}, false},
	}
	for _, tt := range tests {
		err := v.Verify(ctx, tt.caller)
		if tt.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, common.ErrUnauthenticated) {
			t.Fatalf("%s: error = %v, want ErrUnauthenticated", tt.name, err)
		}
	}
}

func TestVerifierTokenRotationInvalidatesCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &countingSource{hashes: map[string]string{"alice": mustHash(t, "old")}}
	v := NewVerifier(src, true, time.Hour, nil)

	if err := v.Verify(ctx, Caller{UserID: "alice", Token: "old"}); err != nil {
		t.Fatalf("Verify old: %v", err)
	}
	src.mu.Lock()
	src.hashes["alice"] = mustHash(t, "new")
	src.mu.Unlock()

	if err := v.Verify(ctx, Caller{UserID: "alice", Token: "old"}); !errors.Is(err, common.ErrUnauthenticated) {
		t.Fatalf("old token after rotation: %v", err)
	}
	if err := v.Verify(ctx, Caller{UserID: "alice", Token: "new"}); err != nil {
		t.Fatalf("new token: %v", err)
	}
}

func TestVerifierNotRequired(t *testing.T) {
	t.Parallel()
	src := &countingSource{hashes: map[string]string{"alice": ""}}
	v := NewVerifier(src, false, 0, nil)

	if err := v.Verify(context.Background(), Caller{UserID: "alice"}); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := v.Verify(context.Background(), Caller{UserID: "ghost"}); !errors.Is(err, common.ErrUnauthenticated) || !errors.Is(err, common.ErrUnknownUser) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
	rl := newRateLimiter(3, time.Minute, clock)

	for i := 0; i < 3; i++ {
		if !rl.Allow("u") {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	if rl.Allow("u") {
		t.Fatal("4th request allowed inside the window")
	}
	if !rl.Allow("other") {
		t.Fatal("other user throttled")
	}

	advance(61 * time.Second)
	if !rl.Allow("u") {
		t.Fatal("request rejected after the window passed")
	}

	advance(2 * time.Minute)
	rl.Sweep()
	rl.mu.Lock()
	left := len(rl.requests)
	rl.mu.Unlock()
	if left != 0 {
		t.Fatalf("Sweep left %d users", left)
	}
}
