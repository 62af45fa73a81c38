package attempt_test

import (
	"testing"
	"time"

	"github.com/formaplus/qcm-engine/internal/attempt"
)

func timedAttempt(start time.Time, limit time.Duration) attempt.Attempt {
	deadline := start.Add(limit)
	return attempt.Attempt{
		ID:        "timed",
		Status:    attempt.StatusInProgress,
		StartedAt: start,
		ExpiresAt: &deadline,
	}
}

func TestRemainingAt_CountsDown(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	a := timedAttempt(start, 10*time.Minute)

	rem := attempt.RemainingAt(a, start)
	if rem.Unlimited || rem.Expired || rem.Seconds != 600 {
		t.Fatalf("at start: %+v", rem)
	}

	rem = attempt.RemainingAt(a, start.Add(9*time.Minute+30*time.Second))
	if rem.Seconds != 30 {
		t.Fatalf("expected 30s remaining, got %+v", rem)
	}
}

func TestRemainingAt_NeverNegative(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	a := timedAttempt(start, 10*time.Minute)

	rem := attempt.RemainingAt(a, start.Add(time.Hour))
	if rem.Seconds != 0 || !rem.Expired {
		t.Fatalf("long past deadline: %+v", rem)
	}

	rem = attempt.RemainingAt(a, start.Add(10*time.Minute))
	if rem.Seconds != 0 || !rem.Expired {
		t.Fatalf("exactly at deadline: %+v", rem)
	}
}

func TestRemainingAt_SubSecondBeforeDeadline(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	a := timedAttempt(start, 10*time.Minute)

	// A live attempt must never read as expired: with half a second left the
	// countdown rounds up to 1 and ExpiredAt agrees the attempt is live.
	now := start.Add(10*time.Minute - 500*time.Millisecond)
	rem := attempt.RemainingAt(a, now)
	if rem.Expired || rem.Seconds != 1 {
		t.Fatalf("500ms before deadline: %+v", rem)
	}
	if attempt.ExpiredAt(a, now) {
		t.Fatalf("ExpiredAt disagrees with RemainingAt 500ms before deadline")
	}

	// Expired and zero seconds flip together, exactly at the deadline.
	rem = attempt.RemainingAt(a, a.StartedAt.Add(10*time.Minute))
	if !rem.Expired || rem.Seconds != 0 {
		t.Fatalf("at deadline: %+v", rem)
	}
	if !attempt.ExpiredAt(a, a.StartedAt.Add(10*time.Minute)) {
		t.Fatalf("ExpiredAt disagrees with RemainingAt at deadline")
	}
}

func TestRemainingAt_UnlimitedSentinel(t *testing.T) {
	a := attempt.Attempt{ID: "open", Status: attempt.StatusInProgress, StartedAt: time.Now()}
	rem := attempt.RemainingAt(a, time.Now().Add(1000*time.Hour))
	if !rem.Unlimited || rem.Expired {
		t.Fatalf("unlimited attempt: %+v", rem)
	}
	// Unlimited is distinct from "0 seconds left".
	if rem.Seconds != 0 {
		t.Fatalf("sentinel should carry no countdown, got %+v", rem)
	}
}

func TestExpiredAt(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	a := timedAttempt(start, 10*time.Minute)

	if attempt.ExpiredAt(a, start.Add(9*time.Minute)) {
		t.Fatalf("not yet expired at 9min")
	}
	if !attempt.ExpiredAt(a, start.Add(11*time.Minute)) {
		t.Fatalf("expired at 11min")
	}
	if attempt.ExpiredAt(attempt.Attempt{Status: attempt.StatusInProgress}, start.Add(time.Hour)) {
		t.Fatalf("attempt without limit never expires")
	}
}
