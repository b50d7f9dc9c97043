package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// fakeAdapter is an in-memory SyncAdapter for controller tests.
type fakeAdapter struct {
	mu sync.Mutex

	attemptID uuid.UUID
	total     int
	remaining time.Duration
	answerKey map[int]string

	startErr     error
	writeErr     error
	finalizeErrs []error // popped per call; nil entry means success

	writes        []AnswerWrite
	events        []model.AttemptEvent
	finalizeCalls int
	questionGets  []int
	resumed       []model.AnswerRecord
}

func newFakeAdapter(total int) *fakeAdapter {
	key := make(map[int]string, total)
	for i := 0; i < total; i++ {
		key[i] = "A"
	}
	return &fakeAdapter{
		attemptID: uuid.New(),
		total:     total,
		remaining: 30 * time.Minute,
		answerKey: key,
	}
}

func (f *fakeAdapter) StartAttempt(_ context.Context, _ uuid.UUID, _ int) (*StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}

	questions := make([]model.SafeQuestion, f.total)
	for i := 0; i < f.total; i++ {
		questions[i] = model.SafeQuestion{
			QuestionIndex: i,
			QuestionText:  fmt.Sprintf("question %d", i),
			Options:       json.RawMessage(`["A","B","C","D"]`),
		}
	}
	return &StartResult{
		AttemptID:      f.attemptID,
		TotalQuestions: f.total,
		Remaining:      f.remaining,
		Questions:      questions,
		Answers:        f.resumed,
	}, nil
}

func (f *fakeAdapter) GetQuestion(_ context.Context, _ uuid.UUID, index int) (*model.SafeQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questionGets = append(f.questionGets, index)
	return &model.SafeQuestion{QuestionIndex: index}, nil
}

func (f *fakeAdapter) WriteAnswer(_ context.Context, _ uuid.UUID, write AnswerWrite) (*WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.writes = append(f.writes, write)

	correct := false
	if write.SelectedAnswer != nil {
		correct = *write.SelectedAnswer == f.answerKey[write.QuestionIndex]
	}
	return &WriteResult{IsCorrect: correct, TotalAnswered: len(f.writes)}, nil
}

func (f *fakeAdapter) FinalizeAttempt(_ context.Context, attemptID uuid.UUID) (*model.AttemptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizeCalls++
	if len(f.finalizeErrs) > 0 {
		err := f.finalizeErrs[0]
		f.finalizeErrs = f.finalizeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &model.AttemptResult{AttemptID: attemptID, SubmittedAt: time.Now()}, nil
}

func (f *fakeAdapter) ReportEvent(_ context.Context, event model.AttemptEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAdapter) finalizeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalizeCalls
}

func (f *fakeAdapter) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func startedController(t *testing.T, adapter *fakeAdapter) *Controller {
	t.Helper()
	ctrl := New(Config{Adapter: adapter, Logger: zerolog.Nop()})
	if err := ctrl.Start(context.Background(), uuid.New(), 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(ctrl.Close)
	return ctrl
}

// waitSynced waits for the controller's async writes to land.
func waitSynced(t *testing.T, adapter *fakeAdapter, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if adapter.writeCount() >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("only %d of %d writes synced", adapter.writeCount(), want)
}

func TestStartActivatesSession(t *testing.T) {
	adapter := newFakeAdapter(5)
	ctrl := startedController(t, adapter)

	if got := ctrl.State(); got != StateActive {
		t.Fatalf("state = %s, want %s", got, StateActive)
	}

	snap := ctrl.Snapshot()
	if snap.TotalQuestions != 5 || snap.CurrentIndex != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.VisitedCount != 1 {
		t.Fatalf("visited = %d, want 1 (question 0 marked visited on start)", snap.VisitedCount)
	}
	if snap.Statuses[0] != DisplayVisited {
		t.Fatalf("status[0] = %s, want %s", snap.Statuses[0], DisplayVisited)
	}
}

func TestStartFailureIsFatal(t *testing.T) {
	adapter := newFakeAdapter(5)
	adapter.startErr = errors.New("access denied")
	ctrl := New(Config{Adapter: adapter, Logger: zerolog.Nop()})

	err := ctrl.Start(context.Background(), uuid.New(), 1)
	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("err = %v, want *InitError", err)
	}
	if ctrl.State() != StateUninitialized {
		t.Fatalf("state = %s after failed start", ctrl.State())
	}
	if err := ctrl.SelectAnswer("A"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("SelectAnswer on uninitialized session: %v", err)
	}
}

func TestSelectAnswerUpdatesCountsAndSyncs(t *testing.T) {
	adapter := newFakeAdapter(5)
	ctrl := startedController(t, adapter)

	if err := ctrl.SelectAnswer("A"); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if _, err := ctrl.GoTo(context.Background(), 1); err != nil {
		t.Fatalf("GoTo: %v", err)
	}
	if err := ctrl.SelectAnswer("B"); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}

	snap := ctrl.Snapshot()
	if snap.AnsweredCount != 2 {
		t.Fatalf("answered = %d, want 2", snap.AnsweredCount)
	}
	// Invariants: answered <= total, visited >= answered.
	if snap.AnsweredCount > snap.TotalQuestions {
		t.Fatal("answered exceeds total")
	}
	if snap.VisitedCount < snap.AnsweredCount {
		t.Fatal("visited below answered")
	}

	waitSynced(t, adapter, 2)
}

func TestGoToBoundsAreNoOps(t *testing.T) {
	adapter := newFakeAdapter(5)
	ctrl := startedController(t, adapter)

	if _, err := ctrl.GoTo(context.Background(), 3); err != nil {
		t.Fatalf("GoTo: %v", err)
	}

	for _, index := range []int{-1, 5, 100} {
		q, err := ctrl.GoTo(context.Background(), index)
		if err != nil {
			t.Fatalf("GoTo(%d): %v", index, err)
		}
		if q.QuestionIndex != 3 {
			t.Fatalf("GoTo(%d) moved to %d, want current index 3 unchanged", index, q.QuestionIndex)
		}
	}

	if snap := ctrl.Snapshot(); snap.CurrentIndex != 3 {
		t.Fatalf("current = %d, want 3", snap.CurrentIndex)
	}
}

func TestToggleReviewRecomputesStatus(t *testing.T) {
	adapter := newFakeAdapter(5)
	ctrl := startedController(t, adapter)

	// Review mark on an answered question flips answered → review and back.
	if err := ctrl.SelectAnswer("C"); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if err := ctrl.ToggleReview(); err != nil {
		t.Fatalf("ToggleReview: %v", err)
	}

	snap := ctrl.Snapshot()
	if snap.Answers[0].Status != model.AnswerStatusReview {
		t.Fatalf("status = %s, want review", snap.Answers[0].Status)
	}
	if snap.Statuses[0] != DisplayAnsweredMarked {
		t.Fatalf("display = %s, want %s", snap.Statuses[0], DisplayAnsweredMarked)
	}

	// Second toggle reverts to answered, not not_visited: the answer
	// still exists.
	if err := ctrl.ToggleReview(); err != nil {
		t.Fatalf("ToggleReview: %v", err)
	}
	snap = ctrl.Snapshot()
	if snap.Answers[0].Status != model.AnswerStatusAnswered {
		t.Fatalf("status = %s, want answered", snap.Answers[0].Status)
	}
	if snap.Answers[0].SelectedAnswer == nil || *snap.Answers[0].SelectedAnswer != "C" {
		t.Fatal("selected answer lost across review toggles")
	}
}

func TestReviewBlockedGate(t *testing.T) {
	adapter := newFakeAdapter(5)
	ctrl := startedController(t, adapter)

	// Mark question 2 for review without answering.
	if _, err := ctrl.GoTo(context.Background(), 2); err != nil {
		t.Fatalf("GoTo: %v", err)
	}
	if err := ctrl.ToggleReview(); err != nil {
		t.Fatalf("ToggleReview: %v", err)
	}

	_, err := ctrl.RequestSubmit(context.Background())
	if !errors.Is(err, ErrReviewPending) {
		t.Fatalf("RequestSubmit: %v, want ErrReviewPending", err)
	}
	if adapter.finalizeCount() != 0 {
		t.Fatal("finalize called while review-blocked")
	}
	if snap := ctrl.Snapshot(); !snap.ReviewBlocked {
		t.Fatal("review_blocked flag not raised")
	}

	// Explicit override proceeds to submission.
	result, err := ctrl.ConfirmSubmit(context.Background())
	if err != nil {
		t.Fatalf("ConfirmSubmit: %v", err)
	}
	if result == nil || adapter.finalizeCount() != 1 {
		t.Fatalf("finalize calls = %d, want 1", adapter.finalizeCount())
	}
	if ctrl.State() != StateSubmitted {
		t.Fatalf("state = %s, want submitted", ctrl.State())
	}
}

func TestSubmittedIsTerminal(t *testing.T) {
	adapter := newFakeAdapter(3)
	ctrl := startedController(t, adapter)

	if _, err := ctrl.RequestSubmit(context.Background()); err != nil {
		t.Fatalf("RequestSubmit: %v", err)
	}

	if err := ctrl.SelectAnswer("A"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("SelectAnswer after submit: %v", err)
	}
	if err := ctrl.ToggleReview(); !errors.Is(err, ErrNotActive) {
		t.Fatalf("ToggleReview after submit: %v", err)
	}
	if _, err := ctrl.RequestSubmit(context.Background()); !errors.Is(err, ErrNotActive) {
		t.Fatalf("second submit: %v", err)
	}
	if adapter.finalizeCount() != 1 {
		t.Fatalf("finalize calls = %d, want exactly 1", adapter.finalizeCount())
	}
}

func TestSubmitFailureAllowsRetry(t *testing.T) {
	adapter := newFakeAdapter(3)
	adapter.finalizeErrs = []error{errors.New("network down"), nil}
	ctrl := startedController(t, adapter)

	_, err := ctrl.RequestSubmit(context.Background())
	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		t.Fatalf("err = %v, want *SubmitError", err)
	}
	if ctrl.State() != StateActive {
		t.Fatalf("state = %s after failed submit, want active for retry", ctrl.State())
	}

	if _, err := ctrl.RequestSubmit(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if ctrl.State() != StateSubmitted {
		t.Fatalf("state = %s after retry", ctrl.State())
	}
}

func TestTimeoutForcesSingleSubmission(t *testing.T) {
	adapter := newFakeAdapter(3)
	adapter.remaining = 2 * time.Second

	submitted := make(chan struct{})
	ctrl := New(Config{
		Adapter:      adapter,
		Logger:       zerolog.Nop(),
		TickInterval: time.Millisecond,
		Hooks: Hooks{
			OnAutoSubmit: func(*model.AttemptResult, error) { close(submitted) },
		},
	})
	if err := ctrl.Start(context.Background(), uuid.New(), 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ctrl.Close()

	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout submission never fired")
	}

	if ctrl.State() != StateSubmitted {
		t.Fatalf("state = %s, want submitted", ctrl.State())
	}
	if adapter.finalizeCount() != 1 {
		t.Fatalf("finalize calls = %d, want exactly 1", adapter.finalizeCount())
	}

	// The expiry path is idempotent once the session left active.
	ctrl.onTimeout()
	if adapter.finalizeCount() != 1 {
		t.Fatalf("finalize calls after replayed timeout = %d", adapter.finalizeCount())
	}
}

func TestManualSubmitCancelsTimer(t *testing.T) {
	adapter := newFakeAdapter(3)
	adapter.remaining = 50 * time.Second
	ctrl := New(Config{Adapter: adapter, Logger: zerolog.Nop(), TickInterval: time.Millisecond})
	if err := ctrl.Start(context.Background(), uuid.New(), 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ctrl.Close()

	if _, err := ctrl.RequestSubmit(context.Background()); err != nil {
		t.Fatalf("RequestSubmit: %v", err)
	}

	// 50 fast ticks would have expired the clock by now if the manual
	// submit had not cancelled it.
	time.Sleep(100 * time.Millisecond)
	if adapter.finalizeCount() != 1 {
		t.Fatalf("finalize calls = %d, want 1 (no late timeout)", adapter.finalizeCount())
	}
}

func TestVisibilityWarningDoesNotSubmit(t *testing.T) {
	adapter := newFakeAdapter(3)
	var warned int
	ctrl := New(Config{
		Adapter: adapter,
		Logger:  zerolog.Nop(),
		Hooks:   Hooks{OnWarning: func(count int) { warned = count }},
	})
	if err := ctrl.Start(context.Background(), uuid.New(), 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ctrl.Close()

	ctrl.HandleVisibility(true)

	snap := ctrl.Snapshot()
	if !snap.WarningShown || snap.WarningCount != 1 || warned != 1 {
		t.Fatalf("warning state %+v, hook count %d", snap, warned)
	}
	if ctrl.State() != StateActive {
		t.Fatal("visibility change must never submit")
	}

	ctrl.HandleVisibility(false)
	if snap := ctrl.Snapshot(); snap.WarningShown {
		t.Fatal("warning overlay not cleared on return to foreground")
	}
	if adapter.finalizeCount() != 0 {
		t.Fatal("finalize called on visibility change")
	}
}

func TestResumeRestoresAnswers(t *testing.T) {
	adapter := newFakeAdapter(5)
	option := "B"
	adapter.resumed = []model.AnswerRecord{
		{QuestionIndex: 1, SelectedAnswer: &option, Status: model.AnswerStatusAnswered, Seq: 3},
		{QuestionIndex: 2, Status: model.AnswerStatusReview, Seq: 4},
	}
	ctrl := startedController(t, adapter)

	snap := ctrl.Snapshot()
	if snap.AnsweredCount != 1 || snap.MarkedCount != 1 {
		t.Fatalf("answered/marked = %d/%d, want 1/1", snap.AnsweredCount, snap.MarkedCount)
	}
	if snap.Statuses[1] != DisplayAnswered || snap.Statuses[2] != DisplayMarked {
		t.Fatalf("statuses = %v", snap.Statuses)
	}

	// New mutations must sequence above the restored records.
	if err := ctrl.SelectAnswer("A"); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	waitSynced(t, adapter, 1)
	if adapter.writes[0].Seq <= 4 {
		t.Fatalf("new write seq = %d, want > restored max 4", adapter.writes[0].Seq)
	}
}

func TestManagerRejectsSecondSession(t *testing.T) {
	adapter := newFakeAdapter(3)
	mgr := NewManager(adapter, zerolog.Nop())
	testID := uuid.New()

	ctrl, err := mgr.Open(context.Background(), testID, 7, Hooks{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := mgr.Open(context.Background(), testID, 7, Hooks{}); !errors.Is(err, ErrSessionOpen) {
		t.Fatalf("second Open: %v, want ErrSessionOpen", err)
	}

	// A different student is a different session.
	other, err := mgr.Open(context.Background(), testID, 8, Hooks{})
	if err != nil {
		t.Fatalf("Open other student: %v", err)
	}
	if mgr.ActiveCount() != 2 {
		t.Fatalf("active = %d, want 2", mgr.ActiveCount())
	}

	mgr.Release(testID, 7, ctrl)
	mgr.Release(testID, 8, other)

	// Released sessions can be reopened (resume path).
	reopened, err := mgr.Open(context.Background(), testID, 7, Hooks{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	mgr.Release(testID, 7, reopened)
}
