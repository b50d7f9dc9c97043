package model

import (
	"time"

	"github.com/google/uuid"
)

// TestStatus enumerates the possible states of a test.
type TestStatus string

const (
	TestStatusDraft     TestStatus = "DRAFT"
	TestStatusPublished TestStatus = "PUBLISHED"
	TestStatusArchived  TestStatus = "ARCHIVED"
)

// DefaultTimeLimitMinutes applies when a test has no explicit time limit.
const DefaultTimeLimitMinutes = 30

// Test represents a timed multiple-choice test.
type Test struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	Subject          string     `json:"subject"`
	TotalQuestions   int        `json:"total_questions"`
	TimeLimitMinutes *int       `json:"time_limit_minutes,omitempty"`
	Status           TestStatus `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TimeLimit returns the effective time limit of the test.
func (t *Test) TimeLimit() time.Duration {
	minutes := DefaultTimeLimitMinutes
	if t.TimeLimitMinutes != nil && *t.TimeLimitMinutes > 0 {
		minutes = *t.TimeLimitMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// TestPaper is the Redis-cached payload sent to students during an
// active attempt. Questions carry no correct answers.
type TestPaper struct {
	TestID           uuid.UUID      `json:"test_id"`
	Title            string         `json:"title"`
	Subject          string         `json:"subject"`
	TotalQuestions   int            `json:"total_questions"`
	TimeLimitMinutes int            `json:"time_limit_minutes"`
	Questions        []SafeQuestion `json:"questions"`
}
