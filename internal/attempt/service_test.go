package attempt_test

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/formaplus/qcm-engine/internal/attempt"
	"github.com/formaplus/qcm-engine/internal/eventlog"
	"github.com/formaplus/qcm-engine/internal/quiz"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func intPtr(n int) *int { return &n }

func threeQuestionQuiz(id string) quiz.Quiz {
	return quiz.Quiz{
		ID:           id,
		Title:        "QCM",
		PassingScore: 60,
		MaxAttempts:  intPtr(2),
		Questions: []quiz.Question{
			{Prompt: "q0", Options: []quiz.Option{{Label: "a"}, {Label: "b"}}, Correct: []int{1}},
			{Prompt: "q1", Options: []quiz.Option{{Label: "a"}, {Label: "b"}, {Label: "c"}}, Correct: []int{0, 2}},
			{Prompt: "q2", Options: []quiz.Option{{Label: "a"}, {Label: "b"}}, Correct: []int{0}},
		},
	}
}

func seedService(t *testing.T, quizzes ...quiz.Quiz) (*attempt.Service, *eventlog.MemorySink, *fakeClock) {
	t.Helper()
	qs := quiz.NewInMemoryStore()
	for _, q := range quizzes {
		if err := qs.PutQuiz(context.Background(), q); err != nil {
			t.Fatalf("seed quiz %s: %v", q.ID, err)
		}
	}
	sink := eventlog.NewMemorySink()
	clk := newFakeClock()
	svc := attempt.NewService(attempt.NewInMemoryStore(), qs, sink, clk.now)
	return svc, sink, clk
}

func TestStartOrResume_Idempotent(t *testing.T) {
	svc, _, _ := seedService(t, threeQuestionQuiz("quiz-1"))
	ctx := context.Background()

	a, err := svc.StartOrResume(ctx, "stu-1", "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if a.Status != attempt.StatusInProgress || a.AttemptNumber != 1 {
		t.Fatalf("unexpected attempt: %+v", a)
	}

	b, err := svc.StartOrResume(ctx, "stu-1", "quiz-1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if b.ID != a.ID {
		t.Fatalf("resume created a new attempt: %s vs %s", b.ID, a.ID)
	}
	if !reflect.DeepEqual(b.QuestionOrder, a.QuestionOrder) {
		t.Fatalf("question order changed across resume")
	}
}

func TestScenarioA_TwoOfThreeThenLedger(t *testing.T) {
	svc, _, _ := seedService(t, threeQuestionQuiz("quiz-1"))
	ctx := context.Background()

	a, err := svc.StartOrResume(ctx, "stu-1", "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for pos, opts := range map[int][]int{0: {1}, 1: {0, 2}, 2: {1}} {
		if err := svc.SaveAnswer(ctx, a.ID, pos, opts); err != nil {
			t.Fatalf("save %d: %v", pos, err)
		}
	}

	res, err := svc.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 66.7 || !res.Passed {
		t.Fatalf("expected 66.7/passed, got %v/%v", res.Score, res.Passed)
	}

	p, err := svc.Progress(ctx, "stu-1", "quiz-1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.BestScore == nil || *p.BestScore != 66.7 {
		t.Fatalf("expected best 66.7, got %v", p.BestScore)
	}
	if p.RemainingAttempts == nil || *p.RemainingAttempts != 1 {
		t.Fatalf("expected 1 remaining, got %v", p.RemainingAttempts)
	}
	if !p.HasPassed || !p.CanAttempt {
		t.Fatalf("expected has_passed and can_attempt, got %+v", p)
	}
}

func TestScenarioB_AbandonKeepsBestScore(t *testing.T) {
	svc, _, _ := seedService(t, threeQuestionQuiz("quiz-1"))
	ctx := context.Background()

	// Attempt 1: pass with 2/3.
	a1, _ := svc.StartOrResume(ctx, "stu-1", "quiz-1")
	_ = svc.SaveAnswer(ctx, a1.ID, 0, []int{1})
	_ = svc.SaveAnswer(ctx, a1.ID, 1, []int{0, 2})
	if _, err := svc.Submit(ctx, a1.ID); err != nil {
		t.Fatalf("submit 1: %v", err)
	}

	// Attempt 2: abandoned untouched.
	a2, err := svc.StartOrResume(ctx, "stu-1", "quiz-1")
	if err != nil {
		t.Fatalf("start 2: %v", err)
	}
	if a2.AttemptNumber != 2 {
		t.Fatalf("expected attempt_number 2, got %d", a2.AttemptNumber)
	}
	if err := svc.Abandon(ctx, a2.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	got, err := svc.GetAttempt(ctx, a2.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != attempt.StatusAbandoned || got.Score != nil {
		t.Fatalf("expected abandoned without score, got %+v", got)
	}

	p, _ := svc.Progress(ctx, "stu-1", "quiz-1")
	if p.BestScore == nil || *p.BestScore != 66.7 {
		t.Fatalf("best score must stay 66.7, got %v", p.BestScore)
	}
	if p.RemainingAttempts == nil || *p.RemainingAttempts != 0 {
		t.Fatalf("expected 0 remaining, got %v", p.RemainingAttempts)
	}
	if p.CanAttempt {
		t.Fatalf("limit exhausted; can_attempt must be false")
	}

	if _, err := svc.StartOrResume(ctx, "stu-1", "quiz-1"); !errors.Is(err, attempt.ErrAttemptLimitExceeded) {
		t.Fatalf("expected ErrAttemptLimitExceeded, got %v", err)
	}
}

func TestScenarioC_SubmitPastDeadlineExpires(t *testing.T) {
	q := threeQuestionQuiz("timed-quiz")
	q.TimeLimitMin = intPtr(10)
	svc, _, clk := seedService(t, q)
	ctx := context.Background()

	a, err := svc.StartOrResume(ctx, "stu-1", "timed-quiz")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if a.ExpiresAt == nil || a.ExpiresAt.Sub(a.StartedAt) != 10*time.Minute {
		t.Fatalf("expected 10min deadline, got %+v", a)
	}

	clk.advance(11 * time.Minute)

	if _, err := svc.Submit(ctx, a.ID); !errors.Is(err, attempt.ErrAttemptExpired) {
		t.Fatalf("expected ErrAttemptExpired, got %v", err)
	}

	got, _ := svc.GetAttempt(ctx, a.ID)
	if got.Status != attempt.StatusExpired || got.Score != nil {
		t.Fatalf("expected expired without score, got %+v", got)
	}

	// The expired attempt still counts toward the limit.
	p, _ := svc.Progress(ctx, "stu-1", "timed-quiz")
	if p.AttemptsUsed != 1 {
		t.Fatalf("expired attempt must be charged, got %+v", p)
	}
	if p.RemainingAttempts == nil || *p.RemainingAttempts != 1 {
		t.Fatalf("expected 1 remaining, got %v", p.RemainingAttempts)
	}
}

func TestScenarioD_OutOfRangeQuestionIndex(t *testing.T) {
	q := threeQuestionQuiz("quiz-1")
	q.Questions = append(q.Questions, quiz.Question{
		Prompt: "q3", Options: []quiz.Option{{Label: "a"}}, Correct: []int{0},
	})
	svc, _, _ := seedService(t, q)
	ctx := context.Background()

	a, _ := svc.StartOrResume(ctx, "stu-1", "quiz-1")
	if err := svc.SaveAnswer(ctx, a.ID, 5, []int{0}); !errors.Is(err, attempt.ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer, got %v", err)
	}

	got, _ := svc.GetAttempt(ctx, a.ID)
	if got.Status != attempt.StatusInProgress || len(got.Answers) != 0 {
		t.Fatalf("attempt state must be unchanged, got %+v", got)
	}
}

func TestSaveAnswer_AutosaveKeepsLatest(t *testing.T) {
	svc, _, _ := seedService(t, threeQuestionQuiz("quiz-1"))
	ctx := context.Background()

	a, _ := svc.StartOrResume(ctx, "stu-1", "quiz-1")
	if err := svc.SaveAnswer(ctx, a.ID, 0, []int{0}); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Autosave fires again with a changed answer; later one wins.
	if err := svc.SaveAnswer(ctx, a.ID, 0, []int{1}); err != nil {
		t.Fatalf("resave: %v", err)
	}
	if err := svc.SaveAnswer(ctx, a.ID, 0, []int{1}); err != nil {
		t.Fatalf("idempotent resave: %v", err)
	}

	res, err := svc.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.PerQuestion[0].Correct {
		t.Fatalf("submit must score the latest saved value")
	}
}

func TestSaveAnswer_InvalidOptionIndex(t *testing.T) {
	svc, _, _ := seedService(t, threeQuestionQuiz("quiz-1"))
	ctx := context.Background()

	a, _ := svc.StartOrResume(ctx, "stu-1", "quiz-1")
	// q0 has two options.
	if err := svc.SaveAnswer(ctx, a.ID, 0, []int{2}); !errors.Is(err, attempt.ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer, got %v", err)
	}
	if err := svc.SaveAnswer(ctx, a.ID, 0, []int{-1}); !errors.Is(err, attempt.ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer for negative index, got %v", err)
	}
}

func TestSaveAnswer_RejectedAfterTerminal(t *testing.T) {
	svc, _, _ := seedService(t, threeQuestionQuiz("quiz-1"))
	ctx := context.Background()

	a, _ := svc.StartOrResume(ctx, "stu-1", "quiz-1")
	if _, err := svc.Submit(ctx, a.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.SaveAnswer(ctx, a.ID, 0, []int{1}); !errors.Is(err, attempt.ErrInvalidAttemptState) {
		t.Fatalf("expected ErrInvalidAttemptState, got %v", err)
	}
}

func TestLedger_CanAttemptTracksActiveSlot(t *testing.T) {
	svc, _, _ := seedService(t, threeQuestionQuiz("quiz-1"))
	ctx := context.Background()

	p, _ := svc.Progress(ctx, "stu-1", "quiz-1")
	if !p.CanAttempt {
		t.Fatalf("fresh pair must allow an attempt")
	}

	a, _ := svc.StartOrResume(ctx, "stu-1", "quiz-1")
	p, _ = svc.Progress(ctx, "stu-1", "quiz-1")
	if p.CanAttempt {
		t.Fatalf("can_attempt must be false while an attempt is live")
	}

	if err := svc.Abandon(ctx, a.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	p, _ = svc.Progress(ctx, "stu-1", "quiz-1")
	if !p.CanAttempt {
		t.Fatalf("abandon frees the slot while attempts remain")
	}
}

func TestRemainingTime_ThroughService(t *testing.T) {
	q := threeQuestionQuiz("timed-quiz")
	q.TimeLimitMin = intPtr(10)
	svc, _, clk := seedService(t, q, threeQuestionQuiz("open-quiz"))
	ctx := context.Background()

	a, _ := svc.StartOrResume(ctx, "stu-1", "timed-quiz")
	rem, err := svc.RemainingTime(ctx, a.ID)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if rem.Seconds != 600 || rem.Unlimited || rem.Expired {
		t.Fatalf("at start: %+v", rem)
	}

	clk.advance(10*time.Minute + time.Second)
	rem, err = svc.RemainingTime(ctx, a.ID)
	if err != nil {
		t.Fatalf("remaining after deadline: %v", err)
	}
	if rem.Seconds != 0 || !rem.Expired {
		t.Fatalf("past deadline: %+v", rem)
	}
	got, _ := svc.GetAttempt(ctx, a.ID)
	if got.Status != attempt.StatusExpired {
		t.Fatalf("reading past the deadline must settle expiry, got %s", got.Status)
	}

	b, _ := svc.StartOrResume(ctx, "stu-1", "open-quiz")
	rem, _ = svc.RemainingTime(ctx, b.ID)
	if !rem.Unlimited {
		t.Fatalf("quiz without limit: %+v", rem)
	}
}

func TestRemainingTime_AgreesWithSubmitNearDeadline(t *testing.T) {
	q := threeQuestionQuiz("timed-quiz")
	q.TimeLimitMin = intPtr(10)
	svc, _, clk := seedService(t, q)
	ctx := context.Background()

	a, _ := svc.StartOrResume(ctx, "stu-1", "timed-quiz")

	// With sub-second time left the countdown must not report expiry while
	// submit would still succeed.
	clk.advance(10*time.Minute - 300*time.Millisecond)
	rem, err := svc.RemainingTime(ctx, a.ID)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if rem.Expired || rem.Seconds != 1 {
		t.Fatalf("300ms before deadline: %+v", rem)
	}
	if _, err := svc.Submit(ctx, a.ID); err != nil {
		t.Fatalf("submit before deadline: %v", err)
	}

	// Once expiry is reported, submit must be rejected the same way.
	b, _ := svc.StartOrResume(ctx, "stu-2", "timed-quiz")
	clk.advance(10 * time.Minute)
	rem, err = svc.RemainingTime(ctx, b.ID)
	if err != nil {
		t.Fatalf("remaining at deadline: %v", err)
	}
	if !rem.Expired || rem.Seconds != 0 {
		t.Fatalf("at deadline: %+v", rem)
	}
	if _, err := svc.Submit(ctx, b.ID); !errors.Is(err, attempt.ErrAttemptExpired) {
		t.Fatalf("submit at deadline: %v", err)
	}
}

func TestConcurrentStart_SingleAttempt(t *testing.T) {
	svc, _, _ := seedService(t, threeQuestionQuiz("quiz-1"))
	ctx := context.Background()

	const starters = 8
	ids := make([]string, starters)
	var wg sync.WaitGroup
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := svc.StartOrResume(ctx, "stu-1", "quiz-1")
			if err != nil {
				t.Errorf("start %d: %v", i, err)
				return
			}
			ids[i] = a.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < starters; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("double start produced distinct attempts: %s vs %s", ids[i], ids[0])
		}
	}

	history, _ := svc.History(ctx, "stu-1", "quiz-1")
	if len(history) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", len(history))
	}
}

func TestSubmitAbandonRace_OneWinner(t *testing.T) {
	svc, _, _ := seedService(t, threeQuestionQuiz("quiz-1"))
	ctx := context.Background()

	a, _ := svc.StartOrResume(ctx, "stu-1", "quiz-1")

	var wg sync.WaitGroup
	var submitErr, abandonErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, submitErr = svc.Submit(ctx, a.ID)
	}()
	go func() {
		defer wg.Done()
		abandonErr = svc.Abandon(ctx, a.ID)
	}()
	wg.Wait()

	if (submitErr == nil) == (abandonErr == nil) {
		t.Fatalf("expected exactly one winner, submit=%v abandon=%v", submitErr, abandonErr)
	}
	loser := submitErr
	if loser == nil {
		loser = abandonErr
	}
	if !errors.Is(loser, attempt.ErrInvalidAttemptState) {
		t.Fatalf("loser must fail with ErrInvalidAttemptState, got %v", loser)
	}
}

func TestConcurrentLifecycles_ManyStudents(t *testing.T) {
	q := threeQuestionQuiz("quiz-1")
	q.MaxAttempts = nil
	svc, _, _ := seedService(t, q)
	ctx := context.Background()

	// Far more students than lock shards, so distinct attempts share locks.
	const students = 200
	var wg sync.WaitGroup
	errs := make([]error, students)
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stu := "stu-" + strconv.Itoa(i)
			a, err := svc.StartOrResume(ctx, stu, "quiz-1")
			if err != nil {
				errs[i] = err
				return
			}
			if err := svc.SaveAnswer(ctx, a.ID, 0, []int{1}); err != nil {
				errs[i] = err
				return
			}
			_, errs[i] = svc.Submit(ctx, a.ID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("student %d lifecycle: %v", i, err)
		}
	}
	for i := 0; i < students; i++ {
		p, err := svc.Progress(ctx, "stu-"+strconv.Itoa(i), "quiz-1")
		if err != nil {
			t.Fatalf("progress %d: %v", i, err)
		}
		if p.AttemptsUsed != 1 || p.BestScore == nil {
			t.Fatalf("student %d ledger: %+v", i, p)
		}
	}
}

func TestTransitionEvents(t *testing.T) {
	q := threeQuestionQuiz("timed-quiz")
	q.TimeLimitMin = intPtr(10)
	q.MaxAttempts = nil
	svc, sink, clk := seedService(t, q)
	ctx := context.Background()

	a, _ := svc.StartOrResume(ctx, "stu-1", "timed-quiz")
	if _, err := svc.Submit(ctx, a.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	b, _ := svc.StartOrResume(ctx, "stu-1", "timed-quiz")
	if err := svc.Abandon(ctx, b.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	c, _ := svc.StartOrResume(ctx, "stu-1", "timed-quiz")
	clk.advance(11 * time.Minute)
	if _, err := svc.RemainingTime(ctx, c.ID); err != nil {
		t.Fatalf("remaining: %v", err)
	}

	want := []string{
		eventlog.AttemptCreated, eventlog.AttemptSubmitted,
		eventlog.AttemptCreated, eventlog.AttemptAbandoned,
		eventlog.AttemptCreated, eventlog.AttemptExpired,
	}
	events := sink.Events()
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(events), events)
	}
	for i, typ := range want {
		if events[i].Type != typ {
			t.Fatalf("event %d: expected %s, got %s", i, typ, events[i].Type)
		}
	}
}

func TestStartOrResume_ReplacesExpiredAttempt(t *testing.T) {
	q := threeQuestionQuiz("timed-quiz")
	q.TimeLimitMin = intPtr(10)
	svc, _, clk := seedService(t, q)
	ctx := context.Background()

	a, _ := svc.StartOrResume(ctx, "stu-1", "timed-quiz")
	clk.advance(15 * time.Minute)

	b, err := svc.StartOrResume(ctx, "stu-1", "timed-quiz")
	if err != nil {
		t.Fatalf("restart after expiry: %v", err)
	}
	if b.ID == a.ID {
		t.Fatalf("expired attempt must not be resumed")
	}
	if b.AttemptNumber != 2 {
		t.Fatalf("expected attempt_number 2, got %d", b.AttemptNumber)
	}

	old, _ := svc.GetAttempt(ctx, a.ID)
	if old.Status != attempt.StatusExpired {
		t.Fatalf("previous attempt must be expired, got %s", old.Status)
	}
}
