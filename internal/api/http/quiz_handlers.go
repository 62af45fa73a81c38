package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/formaplus/qcm-engine/internal/quiz"
)

func UpsertQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.Quiz
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := store.PutQuiz(r.Context(), q); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": q.ID})
	}
}

// GetQuizHandler serves the student view: answer keys and explanations are
// stripped regardless of role; teachers review quizzes through authoring
// tools, not this endpoint.
func GetQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "quizID")
		q, err := store.GetQuiz(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q.StudentView())
	}
}

func ListQuizzesHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := store.ListQuizzes(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if out == nil {
			out = []quiz.Summary{}
		}
		writeJSON(w, http.StatusOK, out)
	}
}
