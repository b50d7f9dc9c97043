package websocket

import (
	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
	"github.com/eduiitia-svg/eduiitia-backend/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer     Action = "answer"
	ActionGoTo       Action = "goto"
	ActionReview     Action = "review"
	ActionVisibility Action = "visibility"
	ActionDismiss    Action = "dismiss_warning"
	ActionSubmit     Action = "submit"
	ActionPing       Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest selects the answer for one question index.
type AnswerRequest struct {
	Action        Action `json:"action"`
	QuestionIndex int    `json:"question_index"`
	Answer        string `json:"answer"`
}

// GoToRequest navigates to a question index.
type GoToRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
}

// ReviewRequest toggles the review mark on one question index.
type ReviewRequest struct {
	Action        Action `json:"action"`
	QuestionIndex int    `json:"question_index"`
}

// VisibilityRequest reports a page visibility change.
type VisibilityRequest struct {
	Action Action `json:"action"`
	Hidden bool   `json:"hidden"`
}

// SubmitRequest asks to finish and grade the attempt. Confirm overrides
// the marked-for-review gate.
type SubmitRequest struct {
	Action  Action `json:"action"`
	Confirm bool   `json:"confirm"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventState   Event = "state"
	EventTick    Event = "tick"
	EventWarning Event = "warning"
	EventGraded  Event = "graded"
	EventPong    Event = "pong"
)

// StateResponse carries a full session snapshot. Sent after start and
// after every state-changing action.
type StateResponse struct {
	Event    Event               `json:"event"`
	Snapshot *session.Snapshot   `json:"snapshot"`
	Question *model.SafeQuestion `json:"question,omitempty"`
}

// TickResponse is pushed once per countdown interval.
type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

// WarningResponse notifies the client that a visibility warning overlay
// should be shown.
type WarningResponse struct {
	Event    Event `json:"event"`
	Warnings int   `json:"warnings"`
}

// GradedResponse delivers the final result. Forced reports whether the
// countdown expired before a manual submission.
type GradedResponse struct {
	Event  Event                `json:"event"`
	Result *model.AttemptResult `json:"result"`
	Forced bool                 `json:"forced"`
}

// ErrorResponse reports a failed action. Code mirrors the REST error
// codes so clients share one error table.
type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
