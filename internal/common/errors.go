// Package common — errors.go определяет ошибки, которые используются во всех
// модулях движка. Ошибки позволяют вызывающему коду различать типы проблем
// через errors.Is и отдавать клиенту понятный ответ.
package common

import "errors"

// Ошибки пользователей и навыков
var (
	// ErrUnknownUser — пользователь не зарегистрирован
	ErrUnknownUser = errors.New("пользователь не найден")
	// ErrInvalidSkillSet — набор навыков некорректен (пустое имя, слишком длинное, управляющие символы)
	ErrInvalidSkillSet = errors.New("некорректный набор навыков")
)

// Ошибки бартер-сессий
var (
	// ErrTeacherOffline — учитель сейчас не в сети
	ErrTeacherOffline = errors.New("учитель не в сети")
	// ErrPairBusy — у этой пары уже есть незавершённая сессия
	ErrPairBusy = errors.New("у пары уже есть активная сессия")
	// ErrInvalidTransition — переход не разрешён из текущего состояния
	ErrInvalidTransition = errors.New("недопустимый переход состояния")
	// ErrSessionClosed — сессия уже в терминальном состоянии
	ErrSessionClosed = errors.New("сессия уже закрыта")
	// ErrUnknownSession — сессия не найдена
	ErrUnknownSession = errors.New("сессия не найдена")
	// ErrSelfSession — попытка открыть сессию с самим собой
	ErrSelfSession = errors.New("нельзя открыть сессию с самим собой")
	// ErrNotParticipant — вызывающий не участвует в сессии или не имеет нужной роли
	ErrNotParticipant = errors.New("пользователь не является участником сессии")
)

// Ошибки леджера
var (
	// ErrInsufficientBalance — списание увело бы баланс в минус
	ErrInsufficientBalance = errors.New("недостаточно очков на счёте")
	// ErrInvalidAmount — сумма не соответствует знаку причины
	ErrInvalidAmount = errors.New("некорректная сумма")
	// ErrInvalidReason — неизвестный код причины
	ErrInvalidReason = errors.New("неизвестная причина проводки")
)

// Ошибки квизов
var (
	// ErrUnknownQuiz — квиз не найден в каталоге
	ErrUnknownQuiz = errors.New("квиз не найден")
	// ErrInvalidAnswers — ответов больше, чем вопросов
	ErrInvalidAnswers = errors.New("некорректный набор ответов")
)

// Ошибки доступа
var (
	// ErrUnauthenticated — не удалось подтвердить личность вызывающего
	ErrUnauthenticated = errors.New("не удалось подтвердить пользователя")
	// ErrRateLimited — слишком много запросов
	ErrRateLimited = errors.New("слишком много запросов, подождите")
)
