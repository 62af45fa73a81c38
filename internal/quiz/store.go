package quiz

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("quiz not found")

type Summary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	QuestionCount int    `json:"question_count"`
	TimeLimitMin  *int   `json:"time_limit_min,omitempty"`
	MaxAttempts   *int   `json:"max_attempts,omitempty"`
}

// Store is the read side consumed by the attempt engine plus the write side
// used by authoring endpoints.
type Store interface {
	PutQuiz(ctx context.Context, q Quiz) error
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	ListQuizzes(ctx context.Context) ([]Summary, error)
}

type memoryStore struct {
	mu      sync.RWMutex
	quizzes map[string]Quiz
}

func NewInMemoryStore() Store {
	return &memoryStore{quizzes: map[string]Quiz{}}
}

func (m *memoryStore) PutQuiz(_ context.Context, q Quiz) error {
	if err := q.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
	return nil
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrNotFound
	}
	return q, nil
}

func (m *memoryStore) ListQuizzes(_ context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, len(m.quizzes))
	for _, q := range m.quizzes {
		out = append(out, Summary{
			ID:            q.ID,
			Title:         q.Title,
			QuestionCount: len(q.Questions),
			TimeLimitMin:  q.TimeLimitMin,
			MaxAttempts:   q.MaxAttempts,
		})
	}
	return out, nil
}
