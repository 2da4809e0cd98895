// Package common — skills.go нормализует названия навыков и строит ключ пары.
package common

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxSkillLength — максимальная длина названия навыка (в рунах).
const MaxSkillLength = 64

// NormalizeSkill приводит навык к каноническому виду:
// обрезка пробелов, схлопывание внутренних пробелов, нижний регистр.
//
// Примеры:
//
//	NormalizeSkill("  Machine   Learning ") → "machine learning"
//	NormalizeSkill("Python")               → "python"
func NormalizeSkill(raw string) (string, error) {
	skill := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if skill == "" {
		return "", fmt.Errorf("пустое название навыка: %w", ErrInvalidSkillSet)
	}
	if utf8.RuneCountInString(skill) > MaxSkillLength {
		return "", fmt.Errorf("навык %q длиннее %d символов: %w", skill, MaxSkillLength, ErrInvalidSkillSet)
	}
	for _, r := range skill {
		if unicode.IsControl(r) || r == utf8.RuneError {
			return "", fmt.Errorf("навык %q содержит недопустимые символы: %w", skill, ErrInvalidSkillSet)
		}
	}
	return skill, nil
}

// NormalizeSkills нормализует набор навыков, убирает дубли и сортирует.
// Пустой вход — не ошибка, возвращается пустой набор.
func NormalizeSkills(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		skill, err := NormalizeSkill(r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[skill]; ok {
			continue
		}
		seen[skill] = struct{}{}
		out = append(out, skill)
	}
	sort.Strings(out)
	return out, nil
}

// PairKey возвращает ключ неупорядоченной пары пользователей.
// PairKey(a, b) == PairKey(b, a).
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
