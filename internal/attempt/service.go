package attempt

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formaplus/qcm-engine/internal/eventlog"
	"github.com/formaplus/qcm-engine/internal/quiz"
)

// QuizProvider is the read-only quiz definition capability.
type QuizProvider interface {
	GetQuiz(ctx context.Context, id string) (quiz.Quiz, error)
}

// Service drives the attempt lifecycle: in_progress -> submitted | abandoned
// | expired. Expiry is pull-based: every read-or-act operation on an
// in-progress attempt first settles the deadline, so no background timer is
// needed. Per-attempt and per-(quiz,student) keyed locks serialize
// transitions in-process; the store's uniqueness and CAS guarantees keep them
// safe across processes.
// lockShards bounds the lock set: keys hash onto a fixed shard array instead
// of allocating one mutex per attempt ever touched. Shard collisions only
// coarsen serialization; no operation holds two locks at once.
const lockShards = 64

type Service struct {
	store   Store
	quizzes QuizProvider
	events  eventlog.Sink
	now     func() time.Time

	locks [lockShards]sync.Mutex
}

func NewService(store Store, quizzes QuizProvider, events eventlog.Sink, now func() time.Time) *Service {
	if events == nil {
		events = eventlog.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   store,
		quizzes: quizzes,
		events:  events,
		now:     now,
	}
}

func (s *Service) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockShards]
}

func pairKey(quizID, studentID string) string { return quizID + "|" + studentID }

// StartOrResume returns the student's in-progress attempt for the quiz,
// creating one when none exists and the attempt limit allows it. The call is
// idempotent: a second start while an attempt is live returns that attempt
// unchanged.
func (s *Service) StartOrResume(ctx context.Context, studentID, quizID string) (Attempt, error) {
	q, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}

	l := s.lock(pairKey(quizID, studentID))
	l.Lock()
	defer l.Unlock()

	active, err := s.store.GetActiveAttempt(ctx, quizID, studentID)
	switch {
	case err == nil:
		settled, expired, err := s.settleExpiry(ctx, active)
		if err != nil {
			return Attempt{}, err
		}
		if !expired {
			return settled, nil
		}
		// The live attempt just timed out; fall through to create a new one
		// if the limit still allows it.
	case !errors.Is(err, ErrNoActiveAttempt):
		return Attempt{}, err
	}

	used, err := s.store.CountTerminalAttempts(ctx, quizID, studentID)
	if err != nil {
		return Attempt{}, err
	}
	if q.MaxAttempts != nil && used >= *q.MaxAttempts {
		return Attempt{}, fmt.Errorf("quiz %s: %w", quizID, ErrAttemptLimitExceeded)
	}

	last, err := s.store.LastAttemptNumber(ctx, quizID, studentID)
	if err != nil {
		return Attempt{}, err
	}

	now := s.now()
	a := Attempt{
		ID:            uuid.New().String(),
		QuizID:        quizID,
		StudentID:     studentID,
		AttemptNumber: last + 1,
		Status:        StatusInProgress,
		StartedAt:     now,
		Answers:       map[int][]int{},
	}
	layout := Materialize(q, a.ID)
	a.QuestionOrder = layout.QuestionOrder
	a.OptionOrders = layout.OptionOrders
	if q.TimeLimitMin != nil {
		deadline := now.Add(time.Duration(*q.TimeLimitMin) * time.Minute)
		a.ExpiresAt = &deadline
	}

	if err := s.store.CreateAttempt(ctx, a); err != nil {
		if errors.Is(err, errActiveAttemptExists) {
			// Lost a cross-process race; the winner is the attempt to resume.
			return s.store.GetActiveAttempt(ctx, quizID, studentID)
		}
		return Attempt{}, err
	}
	s.emit(ctx, eventlog.AttemptCreated, a, nil)
	return a, nil
}

// SaveAnswer upserts the chosen option set for one question of a live
// attempt. Repeated autosave calls for the same question keep only the
// latest value; no correctness check happens here.
func (s *Service) SaveAnswer(ctx context.Context, attemptID string, questionIndex int, optionIndices []int) error {
	l := s.lock(attemptID)
	l.Lock()
	defer l.Unlock()

	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	a, expired, err := s.settleExpiry(ctx, a)
	if err != nil {
		return err
	}
	if expired {
		return ErrAttemptExpired
	}
	if a.Status != StatusInProgress {
		return fmt.Errorf("attempt %s is %s: %w", a.ID, a.Status, ErrInvalidAttemptState)
	}

	if questionIndex < 0 || questionIndex >= len(a.QuestionOrder) {
		return fmt.Errorf("question index %d out of range [0,%d): %w",
			questionIndex, len(a.QuestionOrder), ErrInvalidAnswer)
	}
	q, err := s.quizzes.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return err
	}
	optionCount := len(q.Questions[a.QuestionOrder[questionIndex]].Options)
	seen := make(map[int]struct{}, len(optionIndices))
	chosen := make([]int, 0, len(optionIndices))
	for _, o := range optionIndices {
		if o < 0 || o >= optionCount {
			return fmt.Errorf("option index %d out of range [0,%d): %w", o, optionCount, ErrInvalidAnswer)
		}
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		chosen = append(chosen, o)
	}

	a.Answers[questionIndex] = chosen
	return s.store.UpdateAnswers(ctx, a.ID, a.Answers)
}

// Submit finalizes a live attempt with its score. An attempt past its
// deadline is forced to expired instead and the submit is rejected.
func (s *Service) Submit(ctx context.Context, attemptID string) (Result, error) {
	l := s.lock(attemptID)
	l.Lock()
	defer l.Unlock()

	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Result{}, err
	}
	a, expired, err := s.settleExpiry(ctx, a)
	if err != nil {
		return Result{}, err
	}
	if expired {
		return Result{}, ErrAttemptExpired
	}
	if a.Status != StatusInProgress {
		return Result{}, fmt.Errorf("attempt %s is %s: %w", a.ID, a.Status, ErrInvalidAttemptState)
	}

	q, err := s.quizzes.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Result{}, err
	}
	res := Score(a, q)

	now := s.now()
	if err := s.store.FinalizeAttempt(ctx, a.ID, StatusSubmitted, &res.Score, &now, &now); err != nil {
		return Result{}, err
	}
	a.Status = StatusSubmitted
	a.Score = &res.Score
	s.emit(ctx, eventlog.AttemptSubmitted, a, &res.Score)
	return res, nil
}

// Abandon finalizes a live attempt without scoring it, freeing the
// one-in-progress slot. The abandoned attempt still counts toward the limit.
func (s *Service) Abandon(ctx context.Context, attemptID string) error {
	l := s.lock(attemptID)
	l.Lock()
	defer l.Unlock()

	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	a, expired, err := s.settleExpiry(ctx, a)
	if err != nil {
		return err
	}
	if expired {
		return ErrAttemptExpired
	}
	if a.Status != StatusInProgress {
		return fmt.Errorf("attempt %s is %s: %w", a.ID, a.Status, ErrInvalidAttemptState)
	}

	now := s.now()
	if err := s.store.FinalizeAttempt(ctx, a.ID, StatusAbandoned, nil, nil, &now); err != nil {
		return err
	}
	a.Status = StatusAbandoned
	s.emit(ctx, eventlog.AttemptAbandoned, a, nil)
	return nil
}

// RemainingTime reports the server-derived time budget. Reading an attempt
// past its deadline settles it to expired first.
func (s *Service) RemainingTime(ctx context.Context, attemptID string) (Remaining, error) {
	l := s.lock(attemptID)
	l.Lock()
	defer l.Unlock()

	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Remaining{}, err
	}
	a, expired, err := s.settleExpiry(ctx, a)
	if err != nil {
		return Remaining{}, err
	}
	if expired || a.Status == StatusExpired {
		return Remaining{Seconds: 0, Expired: true}, nil
	}
	if a.Status.Terminal() {
		return Remaining{Seconds: 0}, nil
	}
	return RemainingAt(a, s.now()), nil
}

// GetAttempt returns an attempt after settling a pending expiry.
func (s *Service) GetAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	l := s.lock(attemptID)
	l.Lock()
	defer l.Unlock()

	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	a, _, err = s.settleExpiry(ctx, a)
	return a, err
}

// History lists all attempts of the pair in attempt-number order.
func (s *Service) History(ctx context.Context, studentID, quizID string) ([]Attempt, error) {
	return s.store.ListAttempts(ctx, quizID, studentID)
}

// Progress derives the cross-attempt ledger summary: attempts used, remaining
// budget, best submitted score and pass status.
func (s *Service) Progress(ctx context.Context, studentID, quizID string) (Progress, error) {
	q, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return Progress{}, err
	}
	attempts, err := s.store.ListAttempts(ctx, quizID, studentID)
	if err != nil {
		return Progress{}, err
	}

	p := Progress{QuizID: quizID, StudentID: studentID}
	hasActive := false
	for _, a := range attempts {
		if a.Status == StatusInProgress {
			if ExpiredAt(a, s.now()) {
				// Stale live attempt; settle it so the ledger stays honest.
				l := s.lock(a.ID)
				l.Lock()
				if _, _, err := s.settleExpiry(ctx, a); err != nil {
					l.Unlock()
					return Progress{}, err
				}
				l.Unlock()
				p.AttemptsUsed++
				continue
			}
			hasActive = true
			continue
		}
		p.AttemptsUsed++
		if a.Status == StatusSubmitted && a.Score != nil {
			if p.BestScore == nil || *a.Score > *p.BestScore {
				sc := *a.Score
				p.BestScore = &sc
			}
			if *a.Score >= q.PassingScore {
				p.HasPassed = true
			}
		}
	}

	if q.MaxAttempts != nil {
		rem := *q.MaxAttempts - p.AttemptsUsed
		if rem < 0 {
			rem = 0
		}
		p.RemainingAttempts = &rem
	}
	p.CanAttempt = !hasActive && (q.MaxAttempts == nil || p.AttemptsUsed < *q.MaxAttempts)
	return p, nil
}

// settleExpiry forces a live attempt past its deadline to expired before any
// further processing. The returned flag reports whether expiry was applied
// (or the attempt was already expired when loaded mid-transition).
func (s *Service) settleExpiry(ctx context.Context, a Attempt) (Attempt, bool, error) {
	if a.Status != StatusInProgress || !ExpiredAt(a, s.now()) {
		return a, false, nil
	}
	endedAt := *a.ExpiresAt
	err := s.store.FinalizeAttempt(ctx, a.ID, StatusExpired, nil, nil, &endedAt)
	if err != nil && !errors.Is(err, ErrInvalidAttemptState) {
		return a, false, err
	}
	if err == nil {
		a.Status = StatusExpired
		a.Score = nil
		a.EndedAt = &endedAt
		s.emit(ctx, eventlog.AttemptExpired, a, nil)
		return a, true, nil
	}
	// Someone else finalized concurrently; reload the settled row.
	fresh, err := s.store.GetAttempt(ctx, a.ID)
	if err != nil {
		return a, false, err
	}
	return fresh, fresh.Status == StatusExpired, nil
}

func (s *Service) emit(ctx context.Context, typ string, a Attempt, score *float64) {
	payload := map[string]any{
		"attempt_id":     a.ID,
		"quiz_id":        a.QuizID,
		"student_id":     a.StudentID,
		"attempt_number": a.AttemptNumber,
		"status":         a.Status,
	}
	if score != nil {
		payload["score"] = *score
	}
	// Observability must not fail the transition.
	_ = s.events.Append(ctx, typ, a.ID, payload)
}
