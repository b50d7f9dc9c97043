package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eduiitia-svg/eduiitia-backend/internal/middleware"
	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
	"github.com/eduiitia-svg/eduiitia-backend/internal/response"
	"github.com/eduiitia-svg/eduiitia-backend/internal/session"
	ws "github.com/eduiitia-svg/eduiitia-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// safeConn serializes writes to one WebSocket connection. Countdown
// ticks and warning pushes arrive from timer goroutines while the read
// loop writes action responses, and gorilla allows only one writer.
type safeConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *safeConn) write(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ws.WriteTyped(s.conn, v)
}

func (s *safeConn) writeError(code response.ErrCode, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = ws.WriteError(s.conn, string(code), msg)
}

// WSHandler owns the WebSocket test stream: one connection drives one
// live session controller.
type WSHandler struct {
	manager  *session.Manager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(manager *session.Manager, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		manager:  manager,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// TestWebSocketStream godoc
// WS /ws/v1/student/tests/:test_id/stream
// Upgrades to WebSocket and opens (or resumes) the student's session on
// the test. All session actions flow over this connection; the server
// pushes ticks, warnings, state snapshots and the final result.
func (h *WSHandler) TestWebSocketStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid test ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.StudentID
	sc := &safeConn{conn: conn}

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("test_id", testID.String()).
		Logger()

	hooks := session.Hooks{
		OnTick: func(remaining int) {
			_ = sc.write(ws.TickResponse{Event: ws.EventTick, RemainingSeconds: remaining})
		},
		OnWarning: func(count int) {
			_ = sc.write(ws.WarningResponse{Event: ws.EventWarning, Warnings: count})
		},
		OnAutoSubmit: func(result *model.AttemptResult, autoErr error) {
			if autoErr != nil {
				if errors.Is(autoErr, session.ErrSubmitting) || errors.Is(autoErr, session.ErrNotActive) {
					// A manual submission won the race with the timer.
					return
				}
				wsLog.Error().Err(autoErr).Msg("Forced submission failed")
				sc.writeError(response.ErrSubmissionFailed, response.GetMessage(response.ErrSubmissionFailed))
				return
			}
			wsLog.Info().Int("score", result.Score).Msg("Attempt force-submitted on timeout")
			_ = sc.write(ws.GradedResponse{Event: ws.EventGraded, Result: result, Forced: true})
		},
	}

	ctrl, err := h.manager.Open(c.Request.Context(), testID, studentID, hooks)
	if err != nil {
		h.writeOpenError(sc, wsLog, err)
		return
	}
	defer h.manager.Release(testID, studentID, ctrl)

	wsLog.Info().Msg("Student connected")

	// Initial state push with the current question payload.
	h.pushState(c.Request.Context(), sc, ctrl, true)

	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			sc.writeError(response.ErrValidation, "malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionAnswer:
			h.handleAnswer(c.Request.Context(), sc, ctrl, data)
		case ws.ActionGoTo:
			h.handleGoTo(c.Request.Context(), sc, ctrl, data)
		case ws.ActionReview:
			h.handleReview(c.Request.Context(), sc, ctrl, data)
		case ws.ActionVisibility:
			h.handleVisibility(c.Request.Context(), sc, ctrl, data)
		case ws.ActionDismiss:
			ctrl.DismissWarning()
			h.pushState(c.Request.Context(), sc, ctrl, false)
		case ws.ActionSubmit:
			h.handleSubmit(c.Request.Context(), sc, wsLog, ctrl, data)
		case ws.ActionPing:
			_ = sc.write(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			sc.writeError(response.ErrValidation, "unknown action: "+string(envelope.Action))
		}
	}
}

func (h *WSHandler) writeOpenError(sc *safeConn, log zerolog.Logger, err error) {
	log.Warn().Err(err).Msg("Session open failed")

	switch {
	case errors.Is(err, session.ErrSessionOpen):
		sc.writeError(response.ErrSessionInUse, response.GetMessage(response.ErrSessionInUse))
	case errors.Is(err, session.ErrAttemptSubmitted):
		sc.writeError(response.ErrAttemptSubmitted, response.GetMessage(response.ErrAttemptSubmitted))
	default:
		sc.writeError(response.ErrTestNotAvailable, response.GetMessage(response.ErrTestNotAvailable))
	}
}

// pushState sends a full snapshot, optionally with the current
// question's payload attached.
func (h *WSHandler) pushState(ctx context.Context, sc *safeConn, ctrl *session.Controller, withQuestion bool) {
	snap := ctrl.Snapshot()
	resp := ws.StateResponse{Event: ws.EventState, Snapshot: &snap}

	if withQuestion {
		if q, err := ctrl.GoTo(ctx, snap.CurrentIndex); err == nil {
			resp.Question = q
		}
	}

	_ = sc.write(resp)
}

func (h *WSHandler) handleAnswer(ctx context.Context, sc *safeConn, ctrl *session.Controller, data []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sc.writeError(response.ErrValidation, "malformed answer payload")
		return
	}
	if req.Answer == "" {
		sc.writeError(response.ErrValidation, "answer is required")
		return
	}
	if req.QuestionIndex < 0 || req.QuestionIndex >= ctrl.TotalQuestions() {
		sc.writeError(response.ErrValidation, "question index out of range")
		return
	}

	if _, err := ctrl.GoTo(ctx, req.QuestionIndex); err != nil {
		h.writeActionError(sc, err)
		return
	}
	if err := ctrl.SelectAnswer(req.Answer); err != nil {
		h.writeActionError(sc, err)
		return
	}

	h.pushState(ctx, sc, ctrl, false)
}

func (h *WSHandler) handleGoTo(ctx context.Context, sc *safeConn, ctrl *session.Controller, data []byte) {
	var req ws.GoToRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sc.writeError(response.ErrValidation, "malformed goto payload")
		return
	}

	q, err := ctrl.GoTo(ctx, req.Index)
	if err != nil {
		h.writeActionError(sc, err)
		return
	}

	snap := ctrl.Snapshot()
	_ = sc.write(ws.StateResponse{Event: ws.EventState, Snapshot: &snap, Question: q})
}

func (h *WSHandler) handleReview(ctx context.Context, sc *safeConn, ctrl *session.Controller, data []byte) {
	var req ws.ReviewRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sc.writeError(response.ErrValidation, "malformed review payload")
		return
	}
	if req.QuestionIndex < 0 || req.QuestionIndex >= ctrl.TotalQuestions() {
		sc.writeError(response.ErrValidation, "question index out of range")
		return
	}

	if _, err := ctrl.GoTo(ctx, req.QuestionIndex); err != nil {
		h.writeActionError(sc, err)
		return
	}
	if err := ctrl.ToggleReview(); err != nil {
		h.writeActionError(sc, err)
		return
	}

	h.pushState(ctx, sc, ctrl, false)
}

func (h *WSHandler) handleVisibility(ctx context.Context, sc *safeConn, ctrl *session.Controller, data []byte) {
	var req ws.VisibilityRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sc.writeError(response.ErrValidation, "malformed visibility payload")
		return
	}

	ctrl.HandleVisibility(req.Hidden)
	h.pushState(ctx, sc, ctrl, false)
}

func (h *WSHandler) handleSubmit(ctx context.Context, sc *safeConn, log zerolog.Logger, ctrl *session.Controller, data []byte) {
	var req ws.SubmitRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sc.writeError(response.ErrValidation, "malformed submit payload")
		return
	}

	var result *model.AttemptResult
	var err error
	if req.Confirm {
		result, err = ctrl.ConfirmSubmit(ctx)
	} else {
		result, err = ctrl.RequestSubmit(ctx)
	}

	if err != nil {
		if errors.Is(err, session.ErrReviewPending) {
			sc.writeError(response.ErrReviewPending, response.GetMessage(response.ErrReviewPending))
			h.pushState(ctx, sc, ctrl, false)
			return
		}
		h.writeActionError(sc, err)
		return
	}

	log.Info().
		Str("attempt_id", result.AttemptID.String()).
		Int("score", result.Score).
		Msg("Attempt submitted and graded")

	_ = sc.write(ws.GradedResponse{Event: ws.EventGraded, Result: result, Forced: false})
	h.pushState(ctx, sc, ctrl, false)
}

func (h *WSHandler) writeActionError(sc *safeConn, err error) {
	var submitErr *session.SubmitError
	switch {
	case errors.Is(err, session.ErrNotActive):
		sc.writeError(response.ErrNoActiveAttempt, response.GetMessage(response.ErrNoActiveAttempt))
	case errors.Is(err, session.ErrSubmitting):
		sc.writeError(response.ErrSubmissionFailed, "submission already in progress")
	case errors.Is(err, session.ErrAttemptSubmitted):
		sc.writeError(response.ErrAttemptSubmitted, response.GetMessage(response.ErrAttemptSubmitted))
	case errors.As(err, &submitErr):
		sc.writeError(response.ErrSubmissionFailed, response.GetMessage(response.ErrSubmissionFailed))
	default:
		sc.writeError(response.ErrInternal, response.GetMessage(response.ErrInternal))
	}
}
