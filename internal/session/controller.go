// Package session implements the test-taking session engine: a state
// machine driving one attempt from start to submission, with local
// optimistic answer state, derived navigation status, a countdown with
// forced submission, and best-effort async persistence through a
// SyncAdapter.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of a session.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateActive        State = "active"
	StateSubmitting    State = "submitting"
	StateSubmitted     State = "submitted"
)

// Hooks are optional callbacks the controller invokes outside its lock.
type Hooks struct {
	// OnTick fires on every countdown tick with the remaining seconds.
	OnTick func(remaining int)
	// OnAutoSubmit fires after a timeout-forced submission completes,
	// successfully or not.
	OnAutoSubmit func(result *model.AttemptResult, err error)
	// OnWarning fires when a visibility change raises the warning
	// overlay, with the cumulative warning count.
	OnWarning func(count int)
}

// Config assembles a Controller.
type Config struct {
	Adapter SyncAdapter
	Logger  zerolog.Logger
	Hooks   Hooks
	// TickInterval overrides the countdown tick, for tests. Zero means
	// one second.
	TickInterval time.Duration
}

// Controller owns the state of one test-taking session. All exported
// methods are safe for concurrent use; mutations are rejected outside
// the active state. The controller is the sole writer of its attempt
// record while the session is open.
type Controller struct {
	adapter SyncAdapter
	log     zerolog.Logger
	hooks   Hooks
	tick    time.Duration

	mu            sync.Mutex
	state         State
	testID        uuid.UUID
	studentID     int
	attemptID     uuid.UUID
	total         int
	current       int
	answers       *answerStore
	tracker       *navTracker
	timer         *Countdown
	questions     map[int]*model.SafeQuestion
	reviewBlocked bool
	warningShown  bool
	warnings      int
	result        *model.AttemptResult

	// ctx scopes in-flight answer syncs; cancelled on Close so stale
	// completions for an abandoned session are dropped.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an uninitialized session controller.
func New(cfg Config) *Controller {
	tick := cfg.TickInterval
	if tick == 0 {
		tick = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		adapter:   cfg.Adapter,
		log:       cfg.Logger.With().Str("component", "session").Logger(),
		hooks:     cfg.Hooks,
		tick:      tick,
		state:     StateUninitialized,
		answers:   newAnswerStore(),
		tracker:   newNavTracker(),
		questions: make(map[int]*model.SafeQuestion),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start opens (or resumes) the attempt, seeds the local state and the
// countdown, marks question 0 visited and activates the session.
// Failure leaves the controller uninitialized and is fatal to the
// session; no retry automation.
func (c *Controller) Start(ctx context.Context, testID uuid.UUID, studentID int) error {
	c.mu.Lock()
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.mu.Unlock()

	res, err := c.adapter.StartAttempt(ctx, testID, studentID)
	if err != nil {
		return &InitError{TestID: testID, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUninitialized {
		return ErrNotActive
	}

	c.testID = testID
	c.studentID = studentID
	c.attemptID = res.AttemptID
	c.total = res.TotalQuestions
	c.current = 0

	for i := range res.Questions {
		q := res.Questions[i]
		c.questions[q.QuestionIndex] = &q
	}

	// Resume previously synced answers into the local mirror.
	c.answers.restore(res.Answers)
	for _, rec := range res.Answers {
		c.tracker.visit(rec.QuestionIndex)
		if rec.SelectedAnswer != nil {
			c.tracker.answer(rec.QuestionIndex)
		}
		if rec.Status == model.AnswerStatusReview {
			c.tracker.mark(rec.QuestionIndex)
		}
	}

	remaining := int(res.Remaining.Seconds())
	if remaining < 0 {
		remaining = 0
	}

	c.tracker.visit(0)
	c.state = StateActive

	c.timer = NewCountdown(remaining, c.hooks.OnTick, c.onTimeout)
	c.timer.interval = c.tick
	c.timer.Start()

	c.log.Info().
		Str("attempt_id", c.attemptID.String()).
		Str("test_id", testID.String()).
		Int("student_id", studentID).
		Int("total_questions", c.total).
		Int("remaining_s", remaining).
		Msg("Session started")

	return nil
}

// TotalQuestions returns the question count of the loaded test. Zero
// before Start.
func (c *Controller) TotalQuestions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SelectAnswer records the given option for the current question,
// updates the tracker, and pushes the change to the remote record
// asynchronously. The local state is optimistic: a failed sync is
// logged and never rolled back.
func (c *Controller) SelectAnswer(option string) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}

	index := c.current
	status := model.AnswerStatusAnswered
	if c.tracker.isMarked(index) {
		status = model.AnswerStatusReview
	}

	opt := option
	seq := c.answers.set(index, &opt, status)
	c.tracker.answer(index)
	attemptID := c.attemptID
	c.mu.Unlock()

	c.syncAnswer(attemptID, AnswerWrite{
		QuestionIndex:  index,
		SelectedAnswer: &opt,
		Status:         status,
		Seq:            seq,
	})
	return nil
}

// ToggleReview flips the review mark on the current question and
// recomputes the stored status: review while marked, else answered if
// an answer exists, else not_visited. The change syncs like an answer.
func (c *Controller) ToggleReview() error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}

	index := c.current
	var option *string
	if a, ok := c.answers.get(index); ok {
		option = a.Option
	}

	var status model.AnswerStatus
	if c.tracker.isMarked(index) {
		c.tracker.unmark(index)
		if option != nil {
			status = model.AnswerStatusAnswered
		} else {
			status = model.AnswerStatusNotVisited
		}
	} else {
		c.tracker.mark(index)
		status = model.AnswerStatusReview
	}

	seq := c.answers.set(index, option, status)
	attemptID := c.attemptID
	c.mu.Unlock()

	c.syncAnswer(attemptID, AnswerWrite{
		QuestionIndex:  index,
		SelectedAnswer: option,
		Status:         status,
		Seq:            seq,
	})
	return nil
}

// GoTo moves the session to the given question index and returns its
// safe payload, fetching it from the adapter if not cached. An index
// outside [0, totalQuestions) is a no-op: the current index is kept and
// its question returned.
func (c *Controller) GoTo(ctx context.Context, index int) (*model.SafeQuestion, error) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return nil, ErrNotActive
	}

	if index < 0 || index >= c.total {
		index = c.current
	} else {
		c.current = index
		c.tracker.visit(index)
	}

	if q, ok := c.questions[index]; ok {
		c.mu.Unlock()
		return q, nil
	}
	testID := c.testID
	c.mu.Unlock()

	q, err := c.adapter.GetQuestion(ctx, testID, index)
	if err != nil {
		c.log.Warn().Err(err).Int("question_index", index).Msg("Question fetch failed")
		return nil, err
	}

	c.mu.Lock()
	c.questions[index] = q
	c.mu.Unlock()
	return q, nil
}

// RequestSubmit asks for submission. While any question is still marked
// for review it raises the review-blocked gate and returns
// ErrReviewPending instead of submitting; ConfirmSubmit overrides.
func (c *Controller) RequestSubmit(ctx context.Context) (*model.AttemptResult, error) {
	c.mu.Lock()
	if c.state == StateActive && c.tracker.anyMarked() {
		c.reviewBlocked = true
		c.mu.Unlock()
		return nil, ErrReviewPending
	}
	c.mu.Unlock()
	return c.submit(ctx)
}

// ConfirmSubmit submits regardless of outstanding review marks. It is
// the explicit override for the review-blocked gate.
func (c *Controller) ConfirmSubmit(ctx context.Context) (*model.AttemptResult, error) {
	return c.submit(ctx)
}

// submit drives the active → submitting → submitted transition.
// Submission is a commit point: the passed context's cancellation is
// ignored once finalization starts. On failure the session returns to
// active so the caller may retry; the countdown is not restarted.
func (c *Controller) submit(ctx context.Context) (*model.AttemptResult, error) {
	c.mu.Lock()
	switch c.state {
	case StateSubmitting:
		c.mu.Unlock()
		return nil, ErrSubmitting
	case StateActive:
		// proceed
	default:
		c.mu.Unlock()
		return nil, ErrNotActive
	}
	c.state = StateSubmitting
	c.reviewBlocked = false
	timer := c.timer
	attemptID := c.attemptID
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}

	// Give in-flight answer syncs a moment to land so the graded set is
	// as complete as possible. Bounded; stragglers are the documented
	// consistency gap of best-effort sync.
	c.waitForSyncs(2 * time.Second)

	result, err := c.adapter.FinalizeAttempt(context.WithoutCancel(ctx), attemptID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateActive
		c.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Submission failed")
		return nil, &SubmitError{AttemptID: attemptID, Err: err}
	}

	c.state = StateSubmitted
	c.result = result
	c.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("score", result.Score).
		Int("correct", result.CorrectAnswers).
		Int("incorrect", result.IncorrectAnswers).
		Int("skipped", result.SkippedAnswers).
		Msg("Attempt submitted")
	return result, nil
}

// onTimeout is the countdown expiry path. The state check makes it
// idempotent: once the session has left active by any path, a late
// expiry is a no-op.
func (c *Controller) onTimeout() {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	attemptID := c.attemptID
	c.mu.Unlock()

	c.log.Info().Str("attempt_id", attemptID.String()).Msg("Time limit reached, forcing submission")

	result, err := c.submit(context.Background())
	if err != nil && !errors.Is(err, ErrSubmitting) && !errors.Is(err, ErrNotActive) {
		c.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Forced submission failed")
	}
	if c.hooks.OnAutoSubmit != nil {
		c.hooks.OnAutoSubmit(result, err)
	}
}

// HandleVisibility processes a tab-visibility change. Losing foreground
// raises the non-blocking warning overlay and records a proctoring
// event; it never submits — that is reserved for the countdown.
func (c *Controller) HandleVisibility(hidden bool) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}

	eventType := model.EventVisibilityVisible
	var count int
	if hidden {
		c.warnings++
		c.warningShown = true
		count = c.warnings
		eventType = model.EventVisibilityHidden
	} else {
		c.warningShown = false
	}
	attemptID := c.attemptID
	c.mu.Unlock()

	if hidden && c.hooks.OnWarning != nil {
		c.hooks.OnWarning(count)
	}

	event := model.AttemptEvent{
		AttemptID:  attemptID,
		Type:       eventType,
		RecordedAt: time.Now(),
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.adapter.ReportEvent(c.ctx, event); err != nil {
			c.log.Warn().Err(err).Str("event", string(eventType)).Msg("Proctor event report failed")
		}
	}()
}

// DismissWarning clears the visibility warning overlay.
func (c *Controller) DismissWarning() {
	c.mu.Lock()
	c.warningShown = false
	c.mu.Unlock()
}

// Close releases the session without submitting: the countdown stops
// and in-flight syncs are cancelled. Safe to call at any time; a closed
// active session can be resumed later through a fresh Start, restoring
// from the remote record.
func (c *Controller) Close() {
	c.mu.Lock()
	timer := c.timer
	c.timer = nil
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	c.cancel()
	c.wg.Wait()
}

// syncAnswer pushes one answer write in the background. Failures are
// logged, never surfaced, and the local state is kept (optimistic
// update, no rollback). Stale completions are discarded by sequence.
func (c *Controller) syncAnswer(attemptID uuid.UUID, write AnswerWrite) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		res, err := c.adapter.WriteAnswer(c.ctx, attemptID, write)
		if err != nil {
			c.log.Warn().Err(err).
				Int("question_index", write.QuestionIndex).
				Uint64("seq", write.Seq).
				Msg("Answer sync failed, local state kept")
			return
		}

		c.mu.Lock()
		stale := c.answers.stale(write.QuestionIndex, write.Seq)
		c.mu.Unlock()
		if stale {
			// A newer local mutation superseded this write while it was
			// in flight; its result no longer matters.
			return
		}

		c.log.Debug().
			Int("question_index", write.QuestionIndex).
			Bool("is_correct", res.IsCorrect).
			Int("total_answered", res.TotalAnswered).
			Msg("Answer synced")
	}()
}

// waitForSyncs blocks until in-flight syncs drain or the timeout hits.
func (c *Controller) waitForSyncs(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
