// Package presence отслеживает, кто из участников сейчас в сети.
// Онлайн-статус вычисляется при чтении из времени последнего heartbeat и TTL,
// фоновый обход для корректности не нужен.
package presence

import "time"

// Record — последний heartbeat пользователя.
type Record struct {
	UserID   string
	LastSeen time.Time
}

// Online сообщает, был ли heartbeat меньше ttl назад.
func (r Record) Online(now time.Time, ttl time.Duration) bool {
	return isFresh(r.LastSeen, now, ttl)
}

func isFresh(lastSeen, now time.Time, ttl time.Duration) bool {
	if lastSeen.IsZero() {
		return false
	}
	return now.Sub(lastSeen) < ttl
}
