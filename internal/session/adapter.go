package session

import (
	"context"
	"time"

	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
	"github.com/google/uuid"
)

// StartResult is returned by SyncAdapter.StartAttempt. For a resumed
// attempt it carries the previously synced answers and the
// server-observed remaining time; for a fresh attempt Answers is empty
// and Remaining equals the full time limit.
type StartResult struct {
	AttemptID      uuid.UUID
	TotalQuestions int
	Remaining      time.Duration
	Questions      []model.SafeQuestion
	Answers        []model.AnswerRecord
}

// AnswerWrite is one answer change pushed to the remote attempt record.
// Seq is the session-local sequence number for the question index; the
// store must drop writes whose Seq is not newer than what it already
// holds, so a slow early write can never overwrite a later one.
type AnswerWrite struct {
	QuestionIndex  int
	SelectedAnswer *string
	Status         model.AnswerStatus
	Seq            uint64
}

// WriteResult reports the store-side outcome of an answer write.
// Correctness is determined against the authoritative question record;
// the session never sees correct answers directly.
type WriteResult struct {
	IsCorrect     bool
	TotalAnswered int
}

// SyncAdapter is the remote persistence contract consumed by the
// session controller. Implementations own the durable attempt record;
// the controller treats every call as best-effort except StartAttempt
// and FinalizeAttempt, whose failures are surfaced to the caller.
type SyncAdapter interface {
	// StartAttempt opens (or idempotently resumes) an attempt for the
	// student on the given test and returns the safe question payload.
	StartAttempt(ctx context.Context, testID uuid.UUID, studentID int) (*StartResult, error)

	// GetQuestion fetches a single safe question by index.
	GetQuestion(ctx context.Context, testID uuid.UUID, index int) (*model.SafeQuestion, error)

	// WriteAnswer upserts the answer record for one question index.
	// Returns ErrAttemptSubmitted if the attempt has been finalized.
	WriteAnswer(ctx context.Context, attemptID uuid.UUID, write AnswerWrite) (*WriteResult, error)

	// FinalizeAttempt grades the complete answer set and closes the
	// attempt. Exactly-once: a second call fails with ErrAttemptSubmitted.
	FinalizeAttempt(ctx context.Context, attemptID uuid.UUID) (*model.AttemptResult, error)

	// ReportEvent records a proctoring event. Best-effort.
	ReportEvent(ctx context.Context, event model.AttemptEvent) error
}
