package attempt

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the attempt persistence capability injected into the Service.
// Implementations must provide two atomicity guarantees: CreateAttempt fails
// with errActiveAttemptExists when an in-progress attempt already exists for
// the (quiz, student) pair, and UpdateAnswers/FinalizeAttempt are
// compare-and-swap on Status==in_progress (returning ErrInvalidAttemptState
// when the attempt went terminal concurrently).
type Store interface {
	CreateAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	GetActiveAttempt(ctx context.Context, quizID, studentID string) (Attempt, error)

	UpdateAnswers(ctx context.Context, id string, answers map[int][]int) error
	FinalizeAttempt(ctx context.Context, id string, to Status, score *float64, submittedAt, endedAt *time.Time) error

	// CountTerminalAttempts counts attempts no longer in progress; these are
	// the ones charged against MaxAttempts.
	CountTerminalAttempts(ctx context.Context, quizID, studentID string) (int, error)
	LastAttemptNumber(ctx context.Context, quizID, studentID string) (int, error)
	ListAttempts(ctx context.Context, quizID, studentID string) ([]Attempt, error)
}

type memoryStore struct {
	mu       sync.RWMutex
	attempts map[string]Attempt
}

func NewInMemoryStore() Store {
	return &memoryStore{attempts: map[string]Attempt{}}
}

func (m *memoryStore) CreateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.attempts {
		if ex.QuizID == a.QuizID && ex.StudentID == a.StudentID && ex.Status == StatusInProgress {
			return errActiveAttemptExists
		}
	}
	m.attempts[a.ID] = cloneAttempt(a)
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return cloneAttempt(a), nil
}

func (m *memoryStore) GetActiveAttempt(_ context.Context, quizID, studentID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.StudentID == studentID && a.Status == StatusInProgress {
			return cloneAttempt(a), nil
		}
	}
	return Attempt{}, ErrNoActiveAttempt
}

func (m *memoryStore) UpdateAnswers(_ context.Context, id string, answers map[int][]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != StatusInProgress {
		return ErrInvalidAttemptState
	}
	a.Answers = cloneAnswers(answers)
	m.attempts[id] = a
	return nil
}

func (m *memoryStore) FinalizeAttempt(_ context.Context, id string, to Status, score *float64, submittedAt, endedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != StatusInProgress {
		return ErrInvalidAttemptState
	}
	a.Status = to
	a.Score = score
	a.SubmittedAt = submittedAt
	a.EndedAt = endedAt
	m.attempts[id] = a
	return nil
}

func (m *memoryStore) CountTerminalAttempts(_ context.Context, quizID, studentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.StudentID == studentID && a.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) LastAttemptNumber(_ context.Context, quizID, studentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	last := 0
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.StudentID == studentID && a.AttemptNumber > last {
			last = a.AttemptNumber
		}
	}
	return last, nil
}

func (m *memoryStore) ListAttempts(_ context.Context, quizID, studentID string) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			out = append(out, cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func cloneAttempt(a Attempt) Attempt {
	a.Answers = cloneAnswers(a.Answers)
	if a.QuestionOrder != nil {
		a.QuestionOrder = append([]int(nil), a.QuestionOrder...)
	}
	if a.OptionOrders != nil {
		oo := make([][]int, len(a.OptionOrders))
		for i, o := range a.OptionOrders {
			oo[i] = append([]int(nil), o...)
		}
		a.OptionOrders = oo
	}
	return a
}

func cloneAnswers(in map[int][]int) map[int][]int {
	if in == nil {
		return map[int][]int{}
	}
	out := make(map[int][]int, len(in))
	for k, v := range in {
		out[k] = append([]int(nil), v...)
	}
	return out
}
