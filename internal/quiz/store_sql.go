package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// SQLStore persists quizzes with the question list as a JSON column, so the
// schema stays stable while the question model evolves.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz) error {
	if err := q.Validate(); err != nil {
		return err
	}
	qj, err := json.Marshal(q.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes
		(id,title,questions_json,time_limit_min,max_attempts,passing_score,
		 randomize_questions,randomize_options,show_correct_answers,show_explanations,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
		 title=EXCLUDED.title, questions_json=EXCLUDED.questions_json,
		 time_limit_min=EXCLUDED.time_limit_min, max_attempts=EXCLUDED.max_attempts,
		 passing_score=EXCLUDED.passing_score,
		 randomize_questions=EXCLUDED.randomize_questions,
		 randomize_options=EXCLUDED.randomize_options,
		 show_correct_answers=EXCLUDED.show_correct_answers,
		 show_explanations=EXCLUDED.show_explanations`,
		q.ID, q.Title, string(qj), q.TimeLimitMin, q.MaxAttempts, q.PassingScore,
		q.RandomizeQuestions, q.RandomizeOptions, q.ShowCorrectAnswers, q.ShowExplanations,
		time.Now().Unix())
	return err
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,title,questions_json,time_limit_min,max_attempts,
		passing_score,randomize_questions,randomize_options,show_correct_answers,show_explanations,created_at
		FROM quizzes WHERE id=$1`, id)
	var q Quiz
	var qjson string
	if err := row.Scan(&q.ID, &q.Title, &qjson, &q.TimeLimitMin, &q.MaxAttempts,
		&q.PassingScore, &q.RandomizeQuestions, &q.RandomizeOptions,
		&q.ShowCorrectAnswers, &q.ShowExplanations, &q.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quiz{}, ErrNotFound
		}
		return Quiz{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &q.Questions); err != nil {
		return Quiz{}, err
	}
	return q, nil
}

func (s *SQLStore) ListQuizzes(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,title,questions_json,time_limit_min,max_attempts
		FROM quizzes ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var qjson string
		if err := rows.Scan(&sum.ID, &sum.Title, &qjson, &sum.TimeLimitMin, &sum.MaxAttempts); err != nil {
			return nil, err
		}
		var qs []Question
		if err := json.Unmarshal([]byte(qjson), &qs); err == nil {
			sum.QuestionCount = len(qs)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
