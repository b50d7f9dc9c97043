package model

import (
	"time"

	"github.com/google/uuid"
)

// AnswerStatus enumerates the stored state of a single answer slot.
type AnswerStatus string

const (
	AnswerStatusNotVisited AnswerStatus = "not_visited"
	AnswerStatusAnswered   AnswerStatus = "answered"
	AnswerStatusReview     AnswerStatus = "review"
)

// TestAttempt is the authoritative record of one student's run through
// a test. While submitted_at is NULL the attempt is open; once set the
// record is immutable.
type TestAttempt struct {
	ID                 uuid.UUID  `json:"id"`
	TestID             uuid.UUID  `json:"test_id"`
	StudentID          int        `json:"student_id"`
	TotalQuestions     int        `json:"total_questions"`
	Score              int        `json:"score"`
	CorrectAnswers     int        `json:"correct_answers"`
	IncorrectAnswers   int        `json:"incorrect_answers"`
	SkippedAnswers     int        `json:"skipped_answers"`
	ReviewedUnanswered int        `json:"reviewed_unanswered"`
	TimeSpentSeconds   int        `json:"time_spent_seconds"`
	StartedAt          time.Time  `json:"started_at"`
	SubmittedAt        *time.Time `json:"submitted_at,omitempty"`
}

// Submitted reports whether the attempt has been finalized.
func (a *TestAttempt) Submitted() bool {
	return a.SubmittedAt != nil
}

// AnswerRecord is the last-known answer state for one question index.
// Created or overwritten on every answer/review change, never deleted.
// CorrectAnswer is copied from the question at write time so the record
// stays auditable even if the question is edited later.
type AnswerRecord struct {
	QuestionIndex  int          `json:"question_index"`
	SelectedAnswer *string      `json:"selected_answer"` // nil means skipped
	CorrectAnswer  string       `json:"correct_answer"`
	IsCorrect      bool         `json:"is_correct"`
	Status         AnswerStatus `json:"status"`
	Seq            uint64       `json:"seq"`
	AnsweredAt     time.Time    `json:"answered_at"`
}

// AttemptResult is returned by finalization.
type AttemptResult struct {
	AttemptID          uuid.UUID `json:"attempt_id"`
	Score              int       `json:"score"`
	CorrectAnswers     int       `json:"correct_answers"`
	IncorrectAnswers   int       `json:"incorrect_answers"`
	SkippedAnswers     int       `json:"skipped_answers"`
	ReviewedUnanswered int       `json:"reviewed_unanswered"`
	TimeSpentSeconds   int       `json:"time_spent_seconds"`
	SubmittedAt        time.Time `json:"submitted_at"`
}

// AttemptEventType enumerates proctoring events recorded during an attempt.
type AttemptEventType string

const (
	EventVisibilityHidden  AttemptEventType = "visibility_hidden"
	EventVisibilityVisible AttemptEventType = "visibility_visible"
)

// AttemptEvent is a single proctoring event reported by the client.
type AttemptEvent struct {
	AttemptID  uuid.UUID        `json:"attempt_id"`
	Type       AttemptEventType `json:"type"`
	Payload    string           `json:"payload"`
	RecordedAt time.Time        `json:"recorded_at"`
}
