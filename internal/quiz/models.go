package quiz

import "fmt"

// Option is one selectable answer of a question. Its index in the
// Question.Options slice is the option index answers refer to.
type Option struct {
	Label string `json:"label"`
}

type Question struct {
	ID      string   `json:"id,omitempty"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
	// Correct holds the indices of the correct options. One entry for
	// single-select questions, several for multi-select.
	Correct     []int  `json:"correct,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`

	// TimeLimitMin is the attempt time limit in minutes; nil means unlimited.
	TimeLimitMin *int `json:"time_limit_min,omitempty"`
	// MaxAttempts caps terminal attempts per student; nil means unlimited.
	MaxAttempts  *int    `json:"max_attempts,omitempty"`
	PassingScore float64 `json:"passing_score"`

	RandomizeQuestions bool `json:"randomize_questions"`
	RandomizeOptions   bool `json:"randomize_options"`

	ShowCorrectAnswers bool `json:"show_correct_answers"`
	ShowExplanations   bool `json:"show_explanations"`

	CreatedAt int64 `json:"created_at,omitempty"`
}

// Validate checks structural consistency before a quiz is stored.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("quiz id required")
	}
	if q.PassingScore < 0 || q.PassingScore > 100 {
		return fmt.Errorf("passing_score must be within [0,100], got %v", q.PassingScore)
	}
	if q.TimeLimitMin != nil && *q.TimeLimitMin <= 0 {
		return fmt.Errorf("time_limit_min must be positive when set")
	}
	if q.MaxAttempts != nil && *q.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive when set")
	}
	for i, qu := range q.Questions {
		if len(qu.Options) == 0 {
			return fmt.Errorf("question %d has no options", i)
		}
		if len(qu.Correct) == 0 {
			return fmt.Errorf("question %d has no correct option", i)
		}
		seen := make(map[int]bool, len(qu.Correct))
		for _, c := range qu.Correct {
			if c < 0 || c >= len(qu.Options) {
				return fmt.Errorf("question %d: correct index %d out of range", i, c)
			}
			if seen[c] {
				return fmt.Errorf("question %d: duplicate correct index %d", i, c)
			}
			seen[c] = true
		}
	}
	return nil
}

// StudentView returns a copy with answer keys and explanations stripped.
// Result reveal after submit is handled by the scoring result, which honors
// the ShowCorrectAnswers/ShowExplanations flags.
func (q Quiz) StudentView() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, qu := range q.Questions {
		qu.Correct = nil
		qu.Explanation = ""
		out.Questions[i] = qu
	}
	return out
}
