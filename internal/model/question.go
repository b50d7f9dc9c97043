package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Difficulty labels a question for reporting. Free-form in the store but
// seeded content sticks to easy/medium/hard.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is the authoritative question record. CorrectAnswer never
// leaves the store layer during an active attempt; answer checking
// happens store-side.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	TestID        uuid.UUID       `json:"test_id"`
	QuestionIndex int             `json:"question_index"`
	QuestionText  string          `json:"question_text"`
	Options       json.RawMessage `json:"options"`
	ImageURL      *string         `json:"image_url,omitempty"`
	CorrectAnswer string          `json:"correct_answer"`
	Difficulty    Difficulty      `json:"difficulty"`
}

// SafeQuestion is a question with the correct answer stripped, sent to
// students during an active attempt.
type SafeQuestion struct {
	QuestionIndex int             `json:"question_index"`
	QuestionText  string          `json:"question_text"`
	Options       json.RawMessage `json:"options"`
	ImageURL      *string         `json:"image_url,omitempty"`
	Difficulty    Difficulty      `json:"difficulty"`
}

// Safe returns the student-facing view of the question.
func (q *Question) Safe() SafeQuestion {
	return SafeQuestion{
		QuestionIndex: q.QuestionIndex,
		QuestionText:  q.QuestionText,
		Options:       q.Options,
		ImageURL:      q.ImageURL,
		Difficulty:    q.Difficulty,
	}
}
