package repository

import (
	"context"
	"time"

	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
	"github.com/eduiitia-svg/eduiitia-backend/internal/scoring"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptHistoryEntry is one row of a student's test history.
type AttemptHistoryEntry struct {
	AttemptID        uuid.UUID `json:"attempt_id"`
	TestID           uuid.UUID `json:"test_id"`
	TestTitle        string    `json:"test_title"`
	Subject          string    `json:"subject"`
	TotalQuestions   int       `json:"total_questions"`
	Score            int       `json:"score"`
	CorrectAnswers   int       `json:"correct_answers"`
	IncorrectAnswers int       `json:"incorrect_answers"`
	SkippedAnswers   int       `json:"skipped_answers"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// LeaderboardEntry is one ranked row of a test's leaderboard.
type LeaderboardEntry struct {
	Rank             int       `json:"rank"`
	StudentID        int       `json:"student_id"`
	StudentName      string    `json:"student_name"`
	Score            int       `json:"score"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// AttemptRepository handles test attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetByID retrieves an attempt by id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TestAttempt, error) {
	a := &model.TestAttempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, student_id, total_questions, score, correct_answers, incorrect_answers,
		        skipped_answers, reviewed_unanswered, time_spent_seconds, started_at, submitted_at
		 FROM test_attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.TestID, &a.StudentID, &a.TotalQuestions, &a.Score, &a.CorrectAnswers,
		&a.IncorrectAnswers, &a.SkippedAnswers, &a.ReviewedUnanswered, &a.TimeSpentSeconds,
		&a.StartedAt, &a.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetOpenByTestAndStudent retrieves the student's open (unsubmitted)
// attempt on a test, if any.
func (r *AttemptRepository) GetOpenByTestAndStudent(ctx context.Context, testID uuid.UUID, studentID int) (*model.TestAttempt, error) {
	a := &model.TestAttempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, student_id, total_questions, score, correct_answers, incorrect_answers,
		        skipped_answers, reviewed_unanswered, time_spent_seconds, started_at, submitted_at
		 FROM test_attempts
		 WHERE test_id = $1 AND student_id = $2 AND submitted_at IS NULL`, testID, studentID,
	).Scan(&a.ID, &a.TestID, &a.StudentID, &a.TotalQuestions, &a.Score, &a.CorrectAnswers,
		&a.IncorrectAnswers, &a.SkippedAnswers, &a.ReviewedUnanswered, &a.TimeSpentSeconds,
		&a.StartedAt, &a.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new open attempt. A partial unique index on
// (test_id, student_id) WHERE submitted_at IS NULL keeps at most one
// open attempt per student per test; a concurrent create surfaces as
// pgx.ErrNoRows through ON CONFLICT DO NOTHING.
func (r *AttemptRepository) Create(ctx context.Context, a *model.TestAttempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO test_attempts (test_id, student_id, total_questions)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (test_id, student_id) WHERE submitted_at IS NULL DO NOTHING
		 RETURNING id, started_at`,
		a.TestID, a.StudentID, a.TotalQuestions,
	).Scan(&a.ID, &a.StartedAt)
}

// UpsertAnswer writes the latest answer record for one question index.
// The seq guard makes the write order-safe: an older in-flight write
// can never overwrite a newer one. The EXISTS guard refuses writes for
// submitted attempts, keeping the answer rows immutable after
// finalization regardless of what the fast lane let through.
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, attemptID uuid.UUID, rec *model.AnswerRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_index, selected_answer, correct_answer, is_correct, status, seq, answered_at)
		 SELECT $1, $2, $3, $4, $5, $6, $7, $8
		 WHERE EXISTS (SELECT 1 FROM test_attempts WHERE id = $1 AND submitted_at IS NULL)
		 ON CONFLICT (attempt_id, question_index) DO UPDATE
		 SET selected_answer = EXCLUDED.selected_answer,
		     correct_answer  = EXCLUDED.correct_answer,
		     is_correct      = EXCLUDED.is_correct,
		     status          = EXCLUDED.status,
		     seq             = EXCLUDED.seq,
		     answered_at     = EXCLUDED.answered_at
		 WHERE attempt_answers.seq < EXCLUDED.seq`,
		attemptID, rec.QuestionIndex, rec.SelectedAnswer, rec.CorrectAnswer,
		rec.IsCorrect, rec.Status, rec.Seq, rec.AnsweredAt,
	)
	return err
}

// ListAnswers retrieves the complete answer set of an attempt, ordered
// by question index.
func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.AnswerRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_index, selected_answer, correct_answer, is_correct, status, seq, answered_at
		 FROM attempt_answers
		 WHERE attempt_id = $1
		 ORDER BY question_index`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.AnswerRecord
	for rows.Next() {
		var rec model.AnswerRecord
		if err := rows.Scan(&rec.QuestionIndex, &rec.SelectedAnswer, &rec.CorrectAnswer,
			&rec.IsCorrect, &rec.Status, &rec.Seq, &rec.AnsweredAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Finalize writes the tally and submitted_at in a single update, guarded
// by submitted_at IS NULL so the attempt is finalized exactly once.
// Returns false if the attempt was already submitted (or unknown).
func (r *AttemptRepository) Finalize(ctx context.Context, attemptID uuid.UUID, tally scoring.Tally, timeSpent time.Duration, submittedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE test_attempts
		 SET score = $1,
		     correct_answers = $2,
		     incorrect_answers = $3,
		     skipped_answers = $4,
		     reviewed_unanswered = $5,
		     time_spent_seconds = $6,
		     submitted_at = $7
		 WHERE id = $8 AND submitted_at IS NULL`,
		tally.Score, tally.Correct, tally.Incorrect, tally.Skipped,
		tally.ReviewedUnanswered, int(timeSpent.Seconds()), submittedAt, attemptID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListSubmittedByStudent retrieves a student's submitted attempts with
// test metadata, newest first, paginated.
func (r *AttemptRepository) ListSubmittedByStudent(ctx context.Context, studentID, limit, offset int) ([]AttemptHistoryEntry, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM test_attempts
		 WHERE student_id = $1 AND submitted_at IS NOT NULL`, studentID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.test_id, t.title, t.subject, a.total_questions,
		        a.score, a.correct_answers, a.incorrect_answers, a.skipped_answers,
		        a.time_spent_seconds, a.submitted_at
		 FROM test_attempts a
		 JOIN tests t ON t.id = a.test_id
		 WHERE a.student_id = $1 AND a.submitted_at IS NOT NULL
		 ORDER BY a.submitted_at DESC
		 LIMIT $2 OFFSET $3`, studentID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []AttemptHistoryEntry
	for rows.Next() {
		var e AttemptHistoryEntry
		if err := rows.Scan(&e.AttemptID, &e.TestID, &e.TestTitle, &e.Subject, &e.TotalQuestions,
			&e.Score, &e.CorrectAnswers, &e.IncorrectAnswers, &e.SkippedAnswers,
			&e.TimeSpentSeconds, &e.SubmittedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// Leaderboard retrieves the ranked submitted scores for a test. Ties
// break on time spent, then submission time.
func (r *AttemptRepository) Leaderboard(ctx context.Context, testID uuid.UUID, limit int) ([]LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT RANK() OVER (ORDER BY a.score DESC, a.time_spent_seconds ASC, a.submitted_at ASC),
		        s.id, s.name, a.score, a.time_spent_seconds, a.submitted_at
		 FROM test_attempts a
		 JOIN students s ON s.id = a.student_id
		 WHERE a.test_id = $1 AND a.submitted_at IS NOT NULL
		 ORDER BY a.score DESC, a.time_spent_seconds ASC, a.submitted_at ASC
		 LIMIT $2`, testID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Rank, &e.StudentID, &e.StudentName, &e.Score,
			&e.TimeSpentSeconds, &e.SubmittedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
