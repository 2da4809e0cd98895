//go:build ignore

// generate_hash.go — утилита для генерации Argon2id хеша токена доступа.
// Запуск: go run scripts/generate_hash.go <токен>
//
// Результат сохраните в профиле участника как token_hash.
package main

import (
	"fmt"
	"os"

	"github.com/skillbarter/barter-engine/internal/features/identity"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Использование: go run scripts/generate_hash.go <токен>")
		os.Exit(1)
	}

	hash, err := identity.HashToken(os.Args[1])
	if err != nil {
		fmt.Printf("Ошибка генерации хеша: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Хеш токена (сохраните в members.token_hash):")
	fmt.Println(hash)
}
