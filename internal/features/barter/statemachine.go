package barter

import (
	"fmt"

	"github.com/skillbarter/barter-engine/internal/common"
)

// transitions — таблица переходов. Всё, чего здесь нет, запрещено.
var transitions = map[State]map[Event]State{
	StateRequested: {
		EventAccept:  StateAccepted,
		EventDecline: StateDeclined,
		EventCancel:  StateCancelled,
	},
	StateAccepted: {
		EventActivate: StateActive,
		EventCancel:   StateCancelled,
	},
	StateActive: {
		EventComplete: StateCompleted,
		EventCancel:   StateCancelled,
	},
}

// Next возвращает состояние после события.
//
// Любое событие над терминальной сессией — ErrSessionClosed,
// неописанная пара (состояние, событие) — ErrInvalidTransition.
func Next(from State, ev Event) (State, error) {
	if from.Terminal() {
		return from, fmt.Errorf("%s над %s: %w", ev, from, common.ErrSessionClosed)
	}
	to, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%s из %s: %w", ev, from, common.ErrInvalidTransition)
	}
	return to, nil
}

// guard проверяет, что сессия в одном из ожидаемых состояний.
func guard(current State, ev Event, expect []State) error {
	if len(expect) == 0 {
		return nil
	}
	for _, st := range expect {
		if st == current {
			return nil
		}
	}
	return fmt.Errorf("%s из %s (ожидалось %v): %w", ev, current, expect, common.ErrInvalidTransition)
}
