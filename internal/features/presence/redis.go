package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Скрипт записывает время, только если оно новее сохранённого.
var touchScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// RedisStore хранит heartbeat'ы в Redis: ключ presence:<user_id> со значением
// unix nano. Ключ живёт retention и исчезает сам, Prune нужен только памяти.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStore создаёт хранилище присутствия поверх Redis.
func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		prefix:    "presence:",
		retention: retention,
	}
}

func (r *RedisStore) key(userID string) string {
	return r.prefix + userID
}

func (r *RedisStore) Touch(ctx context.Context, userID string, at time.Time) error {
	err := touchScript.Run(ctx, r.client,
		[]string{r.key(userID)},
		at.UnixNano(), r.retention.Milliseconds(),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("presence: ошибка записи heartbeat: %w", err)
	}
	return nil
}

func (r *RedisStore) LastSeen(ctx context.Context, userIDs []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = r.key(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: ошибка чтения heartbeat: %w", err)
	}
	for i, v := range vals {
		if ts, ok := parseNano(v); ok {
			out[userIDs[i]] = time.Unix(0, ts).UTC()
		}
	}
	return out, nil
}

func (r *RedisStore) All(ctx context.Context) ([]Record, error) {
	var ids []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(r.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("presence: ошибка обхода ключей: %w", err)
	}
	seen, err := r.LastSeen(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(seen))
	for id, at := range seen {
		out = append(out, Record{UserID: id, LastSeen: at})
	}
	return out, nil
}

// Prune для Redis ничего не делает: просроченные ключи удаляет сам Redis.
func (r *RedisStore) Prune(context.Context, time.Time) (int, error) {
	return 0, nil
}

func parseNano(v any) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
