package attempt

import "time"

// RemainingAt computes the attempt's time budget at the given instant. Only
// the server-recorded deadline is consulted; client-reported elapsed time is
// never trusted.
func RemainingAt(a Attempt, now time.Time) Remaining {
	if a.ExpiresAt == nil {
		return Remaining{Unlimited: true}
	}
	if ExpiredAt(a, now) {
		return Remaining{Seconds: 0, Expired: true}
	}
	// Round up so a still-live attempt never reads as zero seconds left.
	secs := int64((a.ExpiresAt.Sub(now) + time.Second - 1) / time.Second)
	return Remaining{Seconds: secs}
}

// ExpiredAt reports whether a configured time limit has elapsed. Attempts
// without a limit never expire.
func ExpiredAt(a Attempt, now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}
