// Package members хранит профили участников бартера: кого они могут учить
// и чему хотят научиться. Баланс здесь не хранится, им владеет леджер.
package members

import "time"

// User представляет участника в хранилище профилей.
type User struct {
	ID               string    `db:"id"`                // Непрозрачный уникальный идентификатор
	DisplayName      string    `db:"display_name"`      // Отображаемое имя
	TeachSkills      []string  `db:"teach_skills"`      // Нормализованные навыки, которым учит
	LearnSkills      []string  `db:"learn_skills"`      // Нормализованные навыки, которые хочет изучить
	ProfileCompleted bool      `db:"profile_completed"` // Профиль заполнен (есть хотя бы один навык)
	NotifyChatID     *int64    `db:"notify_chat_id"`    // Telegram chat для уведомлений (nil — не уведомлять)
	TokenHash        string    `db:"token_hash"`        // Argon2id-хеш токена доступа
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Profile — входные данные регистрации/обновления профиля.
type Profile struct {
	ID           string
	DisplayName  string
	TeachSkills  []string
	LearnSkills  []string
	NotifyChatID *int64
	TokenHash    string
}

// Teaches сообщает, учит ли пользователь навыку (навык уже нормализован).
func (u *User) Teaches(skill string) bool {
	for _, s := range u.TeachSkills {
		if s == skill {
			return true
		}
	}
	return false
}

func (u *User) clone() *User {
	c := *u
	c.TeachSkills = append([]string(nil), u.TeachSkills...)
	c.LearnSkills = append([]string(nil), u.LearnSkills...)
	if u.NotifyChatID != nil {
		id := *u.NotifyChatID
		c.NotifyChatID = &id
	}
	return &c
}
