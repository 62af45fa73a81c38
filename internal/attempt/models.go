package attempt

import "time"

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusAbandoned  Status = "abandoned"
	StatusExpired    Status = "expired"
)

// Terminal reports whether the status permits no further mutation.
func (s Status) Terminal() bool { return s != StatusInProgress }

// Attempt is one student's run through a quiz. Answers are keyed by position
// in QuestionOrder and hold option indices in display coordinates (i.e. after
// any per-attempt option shuffle).
type Attempt struct {
	ID            string `json:"id"`
	QuizID        string `json:"quiz_id"`
	StudentID     string `json:"student_id"`
	AttemptNumber int    `json:"attempt_number"`
	Status        Status `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`

	Score *float64 `json:"score,omitempty"`

	Answers       map[int][]int `json:"answers"`
	QuestionOrder []int         `json:"question_order"`
	OptionOrders  [][]int       `json:"option_orders,omitempty"`
}

// QuestionResult is the per-question verdict inside a scoring result.
type QuestionResult struct {
	Position int  `json:"position"` // index into QuestionOrder
	Answered bool `json:"answered"`
	Correct  bool `json:"correct"`
	// CorrectOptions are display-coordinate indices, present only when the
	// quiz allows revealing answers.
	CorrectOptions []int  `json:"correct_options,omitempty"`
	Explanation    string `json:"explanation,omitempty"`
}

type Result struct {
	AttemptID    string           `json:"attempt_id"`
	Score        float64          `json:"score"`
	Passed       bool             `json:"passed"`
	CorrectCount int              `json:"correct_count"`
	Total        int              `json:"total"`
	PerQuestion  []QuestionResult `json:"per_question"`
}

// Progress is the ledger-derived summary for a (student, quiz) pair.
type Progress struct {
	QuizID            string   `json:"quiz_id"`
	StudentID         string   `json:"student_id"`
	AttemptsUsed      int      `json:"attempts_used"`
	RemainingAttempts *int     `json:"remaining_attempts,omitempty"` // nil = unlimited
	BestScore         *float64 `json:"best_score,omitempty"`
	HasPassed         bool     `json:"has_passed"`
	CanAttempt        bool     `json:"can_attempt"`
}

// Remaining is the server-derived time budget of an attempt. Unlimited is a
// distinct sentinel: Seconds==0 with Unlimited==false means just expired.
type Remaining struct {
	Seconds   int64 `json:"seconds"`
	Unlimited bool  `json:"unlimited"`
	Expired   bool  `json:"expired"`
}
