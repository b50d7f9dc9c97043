package session

import (
	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
	"github.com/google/uuid"
)

// AnswerView is the client-facing projection of one local answer.
type AnswerView struct {
	QuestionIndex  int                `json:"question_index"`
	SelectedAnswer *string            `json:"selected_answer"`
	Status         model.AnswerStatus `json:"status"`
}

// Snapshot is a consistent view of the session state, pushed to the
// client after every mutation and on reconnect.
type Snapshot struct {
	AttemptID        uuid.UUID            `json:"attempt_id"`
	TestID           uuid.UUID            `json:"test_id"`
	State            State                `json:"state"`
	CurrentIndex     int                  `json:"current_index"`
	TotalQuestions   int                  `json:"total_questions"`
	RemainingSeconds int                  `json:"remaining_seconds"`
	AnsweredCount    int                  `json:"answered_count"`
	VisitedCount     int                  `json:"visited_count"`
	MarkedCount      int                  `json:"marked_count"`
	ReviewBlocked    bool                 `json:"review_blocked"`
	WarningShown     bool                 `json:"warning_shown"`
	WarningCount     int                  `json:"warning_count"`
	Statuses         []DisplayStatus      `json:"statuses"`
	Answers          []AnswerView         `json:"answers"`
	Result           *model.AttemptResult `json:"result,omitempty"`
}

// Snapshot captures the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := 0
	if c.timer != nil {
		remaining = c.timer.Remaining()
	}

	records := c.answers.records()
	answers := make([]AnswerView, 0, len(records))
	for _, rec := range records {
		answers = append(answers, AnswerView{
			QuestionIndex:  rec.QuestionIndex,
			SelectedAnswer: rec.SelectedAnswer,
			Status:         rec.Status,
		})
	}

	return Snapshot{
		AttemptID:        c.attemptID,
		TestID:           c.testID,
		State:            c.state,
		CurrentIndex:     c.current,
		TotalQuestions:   c.total,
		RemainingSeconds: remaining,
		AnsweredCount:    c.tracker.answeredCount(),
		VisitedCount:     c.tracker.visitedCount(),
		MarkedCount:      c.tracker.markedCount(),
		ReviewBlocked:    c.reviewBlocked,
		WarningShown:     c.warningShown,
		WarningCount:     c.warnings,
		Statuses:         c.tracker.statuses(c.total),
		Answers:          answers,
		Result:           c.result,
	}
}
