package presence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Тест нужен живой Redis: BARTER_REDIS_ADDR=localhost:6379.
func TestRedisStoreIntegration(t *testing.T) {
	addr := os.Getenv("BARTER_REDIS_ADDR")
	if addr == "" {
		t.Skip("BARTER_REDIS_ADDR не задан")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	store := NewRedisStore(client, time.Minute)
	store.prefix = "presence-test:" + uuid.NewString() + ":"

	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := store.Touch(ctx, "a", now); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := store.Touch(ctx, "a", now.Add(-time.Second)); err != nil {
		t.Fatalf("Touch older: %v", err)
	}

	seen, err := store.LastSeen(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatalf("LastSeen: %v", err)
	}
	if len(seen) != 1 || !seen["a"].Equal(now) {
		t.Fatalf("LastSeen = %v, want only a at %s", seen, now)
	}

	records, err := store.All(ctx)
	if err != nil || len(records) != 1 || records[0].UserID != "a" {
		t.Fatalf("All = %v, %v", records, err)
	}
}
