package repository

import (
	"context"

	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByTest retrieves all questions for a test, ordered by question index.
func (r *QuestionRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, question_index, question_text, options, image_url, correct_answer, difficulty
		 FROM questions WHERE test_id = $1
		 ORDER BY question_index`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.TestID, &q.QuestionIndex, &q.QuestionText, &q.Options, &q.ImageURL, &q.CorrectAnswer, &q.Difficulty); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetByTestAndIndex retrieves a single question by test and index.
func (r *QuestionRepository) GetByTestAndIndex(ctx context.Context, testID uuid.UUID, index int) (*model.Question, error) {
	q := &model.Question{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, question_index, question_text, options, image_url, correct_answer, difficulty
		 FROM questions WHERE test_id = $1 AND question_index = $2`, testID, index,
	).Scan(&q.ID, &q.TestID, &q.QuestionIndex, &q.QuestionText, &q.Options, &q.ImageURL, &q.CorrectAnswer, &q.Difficulty)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (test_id, question_index, question_text, options, image_url, correct_answer, difficulty)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		q.TestID, q.QuestionIndex, q.QuestionText, q.Options, q.ImageURL, q.CorrectAnswer, q.Difficulty,
	).Scan(&q.ID)
}
