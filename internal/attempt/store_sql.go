package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SQLStore persists attempts on sqlite or postgres. Answers and the
// randomized layout are JSON columns; the one-in-progress invariant is a
// partial unique index on (quiz_id, student_id) WHERE status='in_progress',
// and terminal immutability is a CAS on status in every UPDATE.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

const attemptColumns = `id,quiz_id,student_id,attempt_number,status,score,
	answers_json,question_order_json,option_orders_json,
	started_at,expires_at,submitted_at,ended_at`

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	aj, err := json.Marshal(answersToJSON(a.Answers))
	if err != nil {
		return err
	}
	qo, err := json.Marshal(a.QuestionOrder)
	if err != nil {
		return err
	}
	var oo any
	if a.OptionOrders != nil {
		b, err := json.Marshal(a.OptionOrders)
		if err != nil {
			return err
		}
		oo = string(b)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempts (`+attemptColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID, a.QuizID, a.StudentID, a.AttemptNumber, string(a.Status), a.Score,
		string(aj), string(qo), oo,
		a.StartedAt.Unix(), unixPtr(a.ExpiresAt), unixPtr(a.SubmittedAt), unixPtr(a.EndedAt))
	if err != nil && isUniqueViolation(err) {
		return errActiveAttemptExists
	}
	return err
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	return a, err
}

func (s *SQLStore) GetActiveAttempt(ctx context.Context, quizID, studentID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts
		WHERE quiz_id=$1 AND student_id=$2 AND status='in_progress'`, quizID, studentID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNoActiveAttempt
	}
	return a, err
}

func (s *SQLStore) UpdateAnswers(ctx context.Context, id string, answers map[int][]int) error {
	aj, err := json.Marshal(answersToJSON(answers))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET answers_json=$1 WHERE id=$2 AND status='in_progress'`,
		string(aj), id)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, res, id)
}

func (s *SQLStore) FinalizeAttempt(ctx context.Context, id string, to Status, score *float64, submittedAt, endedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET status=$1, score=$2, submitted_at=$3, ended_at=$4
		 WHERE id=$5 AND status='in_progress'`,
		string(to), score, unixPtr(submittedAt), unixPtr(endedAt), id)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, res, id)
}

func (s *SQLStore) CountTerminalAttempts(ctx context.Context, quizID, studentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts
		WHERE quiz_id=$1 AND student_id=$2 AND status<>'in_progress'`, quizID, studentID).Scan(&n)
	return n, err
}

func (s *SQLStore) LastAttemptNumber(ctx context.Context, quizID, studentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(attempt_number),0) FROM attempts
		WHERE quiz_id=$1 AND student_id=$2`, quizID, studentID).Scan(&n)
	return n, err
}

func (s *SQLStore) ListAttempts(ctx context.Context, quizID, studentID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+attemptColumns+` FROM attempts
		WHERE quiz_id=$1 AND student_id=$2 ORDER BY attempt_number`, quizID, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// checkAffected distinguishes "gone terminal" from "does not exist" after a
// zero-row CAS update.
func (s *SQLStore) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetAttempt(ctx, id); err != nil {
		return err
	}
	return ErrInvalidAttemptState
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var status, answersJSON, questionOrderJSON string
	var optionOrdersJSON sql.NullString
	var startedAt int64
	var expiresAt, submittedAt, endedAt sql.NullInt64
	if err := row.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.AttemptNumber, &status, &a.Score,
		&answersJSON, &questionOrderJSON, &optionOrdersJSON,
		&startedAt, &expiresAt, &submittedAt, &endedAt); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	a.StartedAt = time.Unix(startedAt, 0).UTC()
	a.ExpiresAt = timePtr(expiresAt)
	a.SubmittedAt = timePtr(submittedAt)
	a.EndedAt = timePtr(endedAt)

	var rawAnswers map[string][]int
	if err := json.Unmarshal([]byte(answersJSON), &rawAnswers); err != nil {
		return Attempt{}, err
	}
	a.Answers = answersFromJSON(rawAnswers)
	if err := json.Unmarshal([]byte(questionOrderJSON), &a.QuestionOrder); err != nil {
		return Attempt{}, err
	}
	if optionOrdersJSON.Valid && optionOrdersJSON.String != "" {
		if err := json.Unmarshal([]byte(optionOrdersJSON.String), &a.OptionOrders); err != nil {
			return Attempt{}, err
		}
	}
	return a, nil
}

// JSON objects key by string, so the int-keyed answer map is bridged here.
func answersToJSON(in map[int][]int) map[string][]int {
	out := make(map[string][]int, len(in))
	for k, v := range in {
		out[strconv.Itoa(k)] = v
	}
	return out
}

func answersFromJSON(in map[string][]int) map[int][]int {
	out := make(map[int][]int, len(in))
	for k, v := range in {
		i, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out[i] = v
	}
	return out
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
