package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/formaplus/qcm-engine/internal/attempt"
	"github.com/formaplus/qcm-engine/internal/auth"
)

// Engine is the slice of the attempt service the handlers consume. The
// student identity always comes from the authenticated subject, never from
// the request body.
type Engine interface {
	StartOrResume(ctx context.Context, studentID, quizID string) (attempt.Attempt, error)
	SaveAnswer(ctx context.Context, attemptID string, questionIndex int, optionIndices []int) error
	Submit(ctx context.Context, attemptID string) (attempt.Result, error)
	Abandon(ctx context.Context, attemptID string) error
	RemainingTime(ctx context.Context, attemptID string) (attempt.Remaining, error)
	GetAttempt(ctx context.Context, attemptID string) (attempt.Attempt, error)
	History(ctx context.Context, studentID, quizID string) ([]attempt.Attempt, error)
	Progress(ctx context.Context, studentID, quizID string) (attempt.Progress, error)
}

func StartAttemptHandler(svc Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		studentID := auth.SubjectFromContext(r.Context())
		a, err := svc.StartOrResume(r.Context(), studentID, quizID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func SaveAnswerHandler(svc Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := ownAttempt(w, r, svc)
		if !ok {
			return
		}
		qIdx, err := strconv.Atoi(chi.URLParam(r, "questionIndex"))
		if err != nil {
			http.Error(w, "bad question index", http.StatusBadRequest)
			return
		}
		var req struct {
			Options []int `json:"options"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := svc.SaveAnswer(r.Context(), a.ID, qIdx, req.Options); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SubmitAttemptHandler(svc Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := ownAttempt(w, r, svc)
		if !ok {
			return
		}
		res, err := svc.Submit(r.Context(), a.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func AbandonAttemptHandler(svc Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := ownAttempt(w, r, svc)
		if !ok {
			return
		}
		if err := svc.Abandon(r.Context(), a.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func RemainingTimeHandler(svc Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := ownAttempt(w, r, svc)
		if !ok {
			return
		}
		rem, err := svc.RemainingTime(r.Context(), a.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rem)
	}
}

func GetAttemptHandler(svc Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := ownAttempt(w, r, svc)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func AttemptHistoryHandler(svc Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		studentID := auth.SubjectFromContext(r.Context())
		out, err := svc.History(r.Context(), studentID, quizID)
		if err != nil {
			writeError(w, err)
			return
		}
		if out == nil {
			out = []attempt.Attempt{}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func ProgressHandler(svc Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		studentID := auth.SubjectFromContext(r.Context())
		p, err := svc.Progress(r.Context(), studentID, quizID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// ownAttempt loads the attempt and rejects callers that do not own it.
func ownAttempt(w http.ResponseWriter, r *http.Request, svc Engine) (attempt.Attempt, bool) {
	id := chi.URLParam(r, "attemptID")
	a, err := svc.GetAttempt(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return attempt.Attempt{}, false
	}
	if a.StudentID != auth.SubjectFromContext(r.Context()) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return attempt.Attempt{}, false
	}
	return a, true
}
