package quiz

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/skillbarter/barter-engine/internal/common"
)

// Catalog хранит квизы в памяти.
type Catalog struct {
	mu      sync.RWMutex
	quizzes map[string]*Quiz
}

func NewCatalog() *Catalog {
	return &Catalog{quizzes: make(map[string]*Quiz)}
}

type catalogFile struct {
	Quizzes []Quiz `yaml:"quizzes"`
}

// LoadCatalogFile читает каталог из YAML-файла:
//
//	quizzes:
//	  - id: go-basics
//	    title: Основы Go
//	    points: 30
//	    questions:
//	      - prompt: Что вернёт len(nil)?
//	        options: ["0", "panic"]
//	        correct: 0
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия каталога квизов: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// LoadCatalog читает каталог из YAML.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("ошибка разбора каталога квизов: %w", err)
	}
	c := NewCatalog()
	for i := range file.Quizzes {
		if err := c.Register(file.Quizzes[i]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register добавляет или заменяет квиз.
func (c *Catalog) Register(q Quiz) error {
	q.ID = strings.TrimSpace(q.ID)
	if q.ID == "" {
		return fmt.Errorf("квиз без id")
	}
	if q.Points < 0 {
		return fmt.Errorf("квиз %s: отрицательные очки: %w", q.ID, common.ErrInvalidAmount)
	}
	for i, question := range q.Questions {
		if question.Correct < 0 || question.Correct >= len(question.Options) {
			return fmt.Errorf("квиз %s, вопрос %d: верный ответ %d вне вариантов", q.ID, i+1, question.Correct)
		}
	}
	q.Questions = append([]Question(nil), q.Questions...)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.quizzes[q.ID] = &q
	return nil
}

// Get возвращает квиз по id.
func (c *Catalog) Get(id string) (*Quiz, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quizzes[id]
	if !ok {
		return nil, fmt.Errorf("квиз %s: %w", id, common.ErrUnknownQuiz)
	}
	return q, nil
}

// List возвращает все квизы по id.
func (c *Catalog) List() []*Quiz {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Quiz, 0, len(c.quizzes))
	for _, q := range c.quizzes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
