package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eduiitia-svg/eduiitia-backend/internal/middleware"
	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
	"github.com/eduiitia-svg/eduiitia-backend/internal/service"
	"github.com/eduiitia-svg/eduiitia-backend/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// stubAdapter is an in-memory SyncAdapter backing the stream tests.
type stubAdapter struct {
	mu     sync.Mutex
	total  int
	writes []session.AnswerWrite
}

func (s *stubAdapter) StartAttempt(_ context.Context, _ uuid.UUID, _ int) (*session.StartResult, error) {
	questions := make([]model.SafeQuestion, s.total)
	for i := range questions {
		questions[i] = model.SafeQuestion{
			QuestionIndex: i,
			QuestionText:  fmt.Sprintf("question %d", i),
			Options:       json.RawMessage(`["A","B","C","D"]`),
		}
	}
	return &session.StartResult{
		AttemptID:      uuid.New(),
		TotalQuestions: s.total,
		Remaining:      30 * time.Minute,
		Questions:      questions,
	}, nil
}

func (s *stubAdapter) GetQuestion(_ context.Context, _ uuid.UUID, index int) (*model.SafeQuestion, error) {
	return &model.SafeQuestion{QuestionIndex: index}, nil
}

func (s *stubAdapter) WriteAnswer(_ context.Context, _ uuid.UUID, write session.AnswerWrite) (*session.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, write)
	return &session.WriteResult{TotalAnswered: len(s.writes)}, nil
}

func (s *stubAdapter) FinalizeAttempt(_ context.Context, attemptID uuid.UUID) (*model.AttemptResult, error) {
	return &model.AttemptResult{AttemptID: attemptID, SubmittedAt: time.Now()}, nil
}

func (s *stubAdapter) ReportEvent(_ context.Context, _ model.AttemptEvent) error {
	return nil
}

func (s *stubAdapter) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func streamTestServer(t *testing.T) (*httptest.Server, *stubAdapter) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	adapter := &stubAdapter{total: 3}
	manager := session.NewManager(adapter, zerolog.Nop())
	t.Cleanup(manager.Shutdown)
	h := NewWSHandler(manager, zerolog.Nop(), nil)

	r := gin.New()
	r.GET("/tests/:test_id/stream", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{StudentID: 1})
		h.TestWebSocketStream(c)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, adapter
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/tests/" + uuid.NewString() + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// awaitStreamEvent reads frames until one with the wanted event
// arrives, skipping countdown ticks.
func awaitStreamEvent(t *testing.T, conn *websocket.Conn, want string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		var frame map[string]interface{}
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		event, _ := frame["event"].(string)
		if event == "tick" {
			continue
		}
		if event == want {
			return frame
		}
		t.Fatalf("got event %q, want %q (frame %s)", event, want, data)
	}
	t.Fatalf("no %q event before deadline", want)
	return nil
}

func sendStreamAction(t *testing.T, conn *websocket.Conn, payload interface{}) {
	t.Helper()
	if err := conn.WriteJSON(payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestStreamRejectsOutOfRangeAnswerIndex(t *testing.T) {
	srv, adapter := streamTestServer(t)
	conn := dialStream(t, srv)

	awaitStreamEvent(t, conn, "state")

	sendStreamAction(t, conn, map[string]interface{}{
		"action":         "answer",
		"question_index": 99,
		"answer":         "B",
	})
	frame := awaitStreamEvent(t, conn, "error")
	if code, _ := frame["code"].(string); code != "VALIDATION_ERROR" {
		t.Fatalf("error code = %q, want VALIDATION_ERROR", code)
	}
	if adapter.writeCount() != 0 {
		t.Fatalf("adapter saw %d writes, want 0", adapter.writeCount())
	}

	// An in-range answer on the same connection still works.
	sendStreamAction(t, conn, map[string]interface{}{
		"action":         "answer",
		"question_index": 1,
		"answer":         "B",
	})
	awaitStreamEvent(t, conn, "state")
}

func TestStreamRejectsOutOfRangeReviewIndex(t *testing.T) {
	srv, adapter := streamTestServer(t)
	conn := dialStream(t, srv)

	awaitStreamEvent(t, conn, "state")

	sendStreamAction(t, conn, map[string]interface{}{
		"action":         "review",
		"question_index": -1,
	})
	frame := awaitStreamEvent(t, conn, "error")
	if code, _ := frame["code"].(string); code != "VALIDATION_ERROR" {
		t.Fatalf("error code = %q, want VALIDATION_ERROR", code)
	}
	if adapter.writeCount() != 0 {
		t.Fatalf("adapter saw %d writes, want 0", adapter.writeCount())
	}
}
