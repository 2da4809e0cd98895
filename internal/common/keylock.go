// Package common — keylock.go содержит полосатую блокировку по строковому ключу.
package common

import (
	"hash/fnv"
	"sort"
	"sync"
)

const keyLockStripes = 256

// KeyLock сериализует операции над одним ключом, не блокируя остальные
// (с точностью до коллизий полос). Нулевое значение готово к работе.
type KeyLock struct {
	stripes [keyLockStripes]sync.Mutex
}

func stripeOf(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % keyLockStripes)
}

// Lock захватывает полосу ключа и возвращает функцию освобождения.
func (l *KeyLock) Lock(key string) (unlock func()) {
	m := &l.stripes[stripeOf(key)]
	m.Lock()
	return m.Unlock
}

// LockMany захватывает полосы нескольких ключей в фиксированном порядке,
// чтобы два вызова с пересекающимися ключами не взаимоблокировались.
func (l *KeyLock) LockMany(keys ...string) (unlock func()) {
	idx := make([]int, 0, len(keys))
	seen := make(map[int]struct{}, len(keys))
	for _, k := range keys {
		s := stripeOf(k)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		idx = append(idx, s)
	}
	sort.Ints(idx)
	for _, s := range idx {
		l.stripes[s].Lock()
	}
	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			l.stripes[idx[i]].Unlock()
		}
	}
}
