package identity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/skillbarter/barter-engine/internal/common"
)

// Caller — кто выполняет операцию.
type Caller struct {
	UserID string
	Token  string
}

// TokenSource отдаёт сохранённый хеш токена пользователя.
type TokenSource interface {
	TokenHash(ctx context.Context, userID string) (string, error)
}

type verified struct {
	digest [sha256.Size]byte
	hash   string
	until  time.Time
}

// Verifier проверяет токены. Успешная проверка запоминается на cacheTTL,
// чтобы не считать Argon2id на каждый запрос.
type Verifier struct {
	source   TokenSource
	required bool
	cacheTTL time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]verified
}

// NewVerifier создаёт проверяющего. При required=false токен не
// проверяется, но пользователь всё равно должен существовать.
func NewVerifier(source TokenSource, required bool, cacheTTL time.Duration, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		source:   source,
		required: required,
		cacheTTL: cacheTTL,
		now:      now,
		cache:    make(map[string]verified),
	}
}

// Verify возвращает ErrUnauthenticated, если вызывающего не удалось подтвердить.
func (v *Verifier) Verify(ctx context.Context, c Caller) error {
	if c.UserID == "" {
		return fmt.Errorf("пустой user id: %w", common.ErrUnauthenticated)
	}
	hash, err := v.source.TokenHash(ctx, c.UserID)
	if err != nil {
		if errors.Is(err, common.ErrUnknownUser) {
			// Обе ошибки: для heartbeat важна ErrUnknownUser.
			return fmt.Errorf("%s: %w: %w", c.UserID, common.ErrUnauthenticated, common.ErrUnknownUser)
		}
		return fmt.Errorf("ошибка получения хеша токена: %w", err)
	}
	if !v.required {
		return nil
	}
	if hash == "" || c.Token == "" {
		return fmt.Errorf("%s без токена: %w", c.UserID, common.ErrUnauthenticated)
	}

	digest := sha256.Sum256([]byte(c.Token))
	now := v.now()
	v.mu.Lock()
	hit, ok := v.cache[c.UserID]
	v.mu.Unlock()
	if ok && hit.hash == hash && now.Before(hit.until) && subtle.ConstantTimeCompare(hit.digest[:], digest[:]) == 1 {
		return nil
	}

	if !VerifyToken(c.Token, hash) {
		log.WithField("user_id", c.UserID).Warn("Неверный токен доступа")
		return fmt.Errorf("%s: %w", c.UserID, common.ErrUnauthenticated)
	}
	if v.cacheTTL > 0 {
		v.mu.Lock()
		v.cache[c.UserID] = verified{digest: digest, hash: hash, until: now.Add(v.cacheTTL)}
		v.mu.Unlock()
	}
	return nil
}
