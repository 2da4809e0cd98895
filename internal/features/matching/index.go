package matching

import (
	"sort"
	"sync"
	"sync/atomic"
)

// snapshot неизменяем после публикации: читатели берут указатель и работают
// с ним без блокировок.
type snapshot struct {
	bySkill map[string][]string // навык -> отсортированные id учителей
	byUser  map[string][]string // id -> навыки, которым учит
}

var emptySnapshot = &snapshot{
	bySkill: map[string][]string{},
	byUser:  map[string][]string{},
}

// SkillIndex — обратный индекс «навык → кто может научить».
//
// Писатели под мьютексом строят новый snapshot и публикуют его атомарно,
// поэтому читатель никогда не видит наполовину применённое изменение.
type SkillIndex struct {
	mu  sync.Mutex
	cur atomic.Pointer[snapshot]
}

func NewSkillIndex() *SkillIndex {
	x := &SkillIndex{}
	x.cur.Store(emptySnapshot)
	return x
}

func (x *SkillIndex) load() *snapshot {
	if s := x.cur.Load(); s != nil {
		return s
	}
	return emptySnapshot
}

// TeachSkillsChanged заменяет набор навыков пользователя в индексе.
// Навыки уже нормализованы сервисом профилей.
func (x *SkillIndex) TeachSkillsChanged(userID string, teachSkills []string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	old := x.load()
	next := &snapshot{
		bySkill: make(map[string][]string, len(old.bySkill)),
		byUser:  make(map[string][]string, len(old.byUser)+1),
	}
	for k, v := range old.bySkill {
		next.bySkill[k] = v
	}
	for k, v := range old.byUser {
		next.byUser[k] = v
	}

	for _, skill := range old.byUser[userID] {
		next.bySkill[skill] = without(next.bySkill[skill], userID)
		if len(next.bySkill[skill]) == 0 {
			delete(next.bySkill, skill)
		}
	}
	delete(next.byUser, userID)

	if len(teachSkills) > 0 {
		skills := append([]string(nil), teachSkills...)
		sort.Strings(skills)
		next.byUser[userID] = skills
		for _, skill := range skills {
			next.bySkill[skill] = with(next.bySkill[skill], userID)
		}
	}
	x.cur.Store(next)
}

// Rebuild строит индекс заново по полному списку профилей.
func (x *SkillIndex) Rebuild(teachSkills map[string][]string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	next := &snapshot{
		bySkill: make(map[string][]string),
		byUser:  make(map[string][]string, len(teachSkills)),
	}
	for userID, skills := range teachSkills {
		if len(skills) == 0 {
			continue
		}
		cp := append([]string(nil), skills...)
		sort.Strings(cp)
		next.byUser[userID] = cp
		for _, skill := range cp {
			next.bySkill[skill] = append(next.bySkill[skill], userID)
		}
	}
	for _, ids := range next.bySkill {
		sort.Strings(ids)
	}
	x.cur.Store(next)
}

// Teachers возвращает id всех, кто учит навыку.
func (x *SkillIndex) Teachers(skill string) []string {
	return append([]string(nil), x.load().bySkill[skill]...)
}

// Skills возвращает навыки, которым учит пользователь.
func (x *SkillIndex) Skills(userID string) []string {
	return append([]string(nil), x.load().byUser[userID]...)
}

// Len — число пользователей в индексе.
func (x *SkillIndex) Len() int {
	return len(x.load().byUser)
}

// with и without возвращают новый срез: старый мог уйти читателям.
func with(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	if i < len(ids) && ids[i] == id {
		return ids
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:i]...)
	out = append(out, id)
	return append(out, ids[i:]...)
}

func without(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	if i == len(ids) || ids[i] != id {
		return ids
	}
	out := make([]string, 0, len(ids)-1)
	out = append(out, ids[:i]...)
	return append(out, ids[i+1:]...)
}
