package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/formaplus/qcm-engine/internal/attempt"
	"github.com/formaplus/qcm-engine/internal/quiz"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors to HTTP statuses. Every engine error is
// caller-recoverable; only unknown failures become a 500.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, attempt.ErrAttemptLimitExceeded):
		code = http.StatusConflict
	case errors.Is(err, attempt.ErrInvalidAttemptState):
		code = http.StatusConflict
	case errors.Is(err, attempt.ErrAttemptExpired):
		code = http.StatusGone
	case errors.Is(err, attempt.ErrInvalidAnswer):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, attempt.ErrNoActiveAttempt):
		code = http.StatusNotFound
	case errors.Is(err, attempt.ErrNotFound), errors.Is(err, quiz.ErrNotFound):
		code = http.StatusNotFound
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
