package attempt

import (
	"hash/fnv"
	"math/rand"

	"github.com/formaplus/qcm-engine/internal/quiz"
)

// Layout fixes the presentation order of a single attempt. QuestionOrder maps
// display position -> original question index. OptionOrders, when present,
// maps (display position, display option index) -> original option index; it
// is nil when option shuffling is disabled.
type Layout struct {
	QuestionOrder []int   `json:"question_order"`
	OptionOrders  [][]int `json:"option_orders,omitempty"`
}

// Materialize derives the layout for one attempt. It is deterministic in the
// seed (the attempt's own id), so autosave and resume always see the same
// ordering, and concurrent attempts never share RNG state.
func Materialize(q quiz.Quiz, seed string) Layout {
	n := len(q.Questions)
	l := Layout{QuestionOrder: identity(n)}
	rng := rand.New(rand.NewSource(seedFrom(seed)))

	if q.RandomizeQuestions {
		shuffle(rng, l.QuestionOrder)
	}
	if q.RandomizeOptions {
		l.OptionOrders = make([][]int, n)
		for pos, origIdx := range l.QuestionOrder {
			order := identity(len(q.Questions[origIdx].Options))
			shuffle(rng, order)
			l.OptionOrders[pos] = order
		}
	}
	return l
}

// DisplayCorrect remaps a question's correct option indices into the display
// coordinates of the given position, honoring any option shuffle.
func (l Layout) DisplayCorrect(q quiz.Quiz, pos int) []int {
	orig := q.Questions[l.QuestionOrder[pos]].Correct
	if l.OptionOrders == nil || l.OptionOrders[pos] == nil {
		out := make([]int, len(orig))
		copy(out, orig)
		return out
	}
	// OptionOrders[pos][display] = original; invert for original -> display.
	inv := make(map[int]int, len(l.OptionOrders[pos]))
	for display, original := range l.OptionOrders[pos] {
		inv[original] = display
	}
	out := make([]int, 0, len(orig))
	for _, o := range orig {
		out = append(out, inv[o])
	}
	return out
}

func seedFrom(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func shuffle(rng *rand.Rand, xs []int) {
	for i := len(xs) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}
