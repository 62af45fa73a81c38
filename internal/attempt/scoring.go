package attempt

import (
	"math"

	"github.com/formaplus/qcm-engine/internal/quiz"
)

// Score grades an attempt against its quiz definition. The comparison is
// unordered-set exact: a multi-select answer earns credit only when the
// chosen set equals the correct set, with no partial credit. Unanswered
// questions count as incorrect, never as an error. The result is fully
// recomputable later from the stored answers and layout alone.
func Score(a Attempt, q quiz.Quiz) Result {
	layout := Layout{QuestionOrder: a.QuestionOrder, OptionOrders: a.OptionOrders}
	total := len(a.QuestionOrder)
	res := Result{AttemptID: a.ID, Total: total, PerQuestion: make([]QuestionResult, 0, total)}

	for pos := range a.QuestionOrder {
		correct := layout.DisplayCorrect(q, pos)
		chosen, answered := a.Answers[pos]
		qr := QuestionResult{
			Position: pos,
			Answered: answered,
			Correct:  answered && setEqual(chosen, correct),
		}
		if q.ShowCorrectAnswers {
			qr.CorrectOptions = correct
		}
		if q.ShowExplanations {
			qr.Explanation = q.Questions[a.QuestionOrder[pos]].Explanation
		}
		if qr.Correct {
			res.CorrectCount++
		}
		res.PerQuestion = append(res.PerQuestion, qr)
	}

	if total > 0 {
		res.Score = round1(float64(res.CorrectCount) / float64(total) * 100)
	}
	res.Passed = res.Score >= q.PassingScore
	return res
}

// round1 rounds to one decimal place, so 2/3 scores as 66.7.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func setEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int]struct{}, len(a))
	for _, x := range a {
		seen[x] = struct{}{}
	}
	if len(seen) != len(b) {
		return false
	}
	for _, x := range b {
		if _, ok := seen[x]; !ok {
			return false
		}
	}
	return true
}
