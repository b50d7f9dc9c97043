package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/eduiitia-svg/eduiitia-backend/internal/config"
	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
	"github.com/eduiitia-svg/eduiitia-backend/internal/repository"
	"github.com/eduiitia-svg/eduiitia-backend/internal/scoring"
	"github.com/eduiitia-svg/eduiitia-backend/internal/session"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNoActiveAttempt is returned when an operation requires an open
// attempt and none exists.
var ErrNoActiveAttempt = errors.New("no active attempt")

// submittedTombstone replaces the attempt→test mapping when an attempt
// closes, so a late write is rejected even when the rest of the cache
// cleanup fails. Expires with the tombstone TTL; afterwards the
// PostgreSQL fallback in resolveTest gives the same rejection.
const (
	submittedTombstone    = "submitted"
	submittedTombstoneTTL = 24 * time.Hour
)

// PersistAnswerJob is the payload pushed to the answer persistence
// queue. The worker replays it into PostgreSQL with the seq guard.
type PersistAnswerJob struct {
	AttemptID uuid.UUID          `json:"attempt_id"`
	Record    model.AnswerRecord `json:"record"`
}

// PersistEventJob is the payload pushed to the event persistence queue.
type PersistEventJob struct {
	AttemptID  uuid.UUID              `json:"attempt_id"`
	Type       model.AttemptEventType `json:"type"`
	Payload    string                 `json:"payload"`
	RecordedAt time.Time              `json:"recorded_at"`
}

// answerWriteScript guards the answers hash against out-of-order sync
// completions: the field is replaced only when the incoming seq is
// newer than the stored record's, mirroring the seq guard on the
// PostgreSQL upsert. Returns {written, field count} in one round trip.
var answerWriteScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur then
	local ok, rec = pcall(cjson.decode, cur)
	if ok and rec and rec.seq and tonumber(rec.seq) >= tonumber(ARGV[3]) then
		return {0, redis.call('HLEN', KEYS[1])}
	end
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return {1, redis.call('HLEN', KEYS[1])}
`)

// AttemptService owns attempt lifecycle and the answer write path. It
// implements session.SyncAdapter: the session controller calls into it
// for every remote effect. Hot-path reads and writes go through Redis;
// durable writes drain through the persistence workers, with a
// synchronous flush at finalization.
type AttemptService struct {
	attemptRepo  *repository.AttemptRepository
	questionRepo *repository.QuestionRepository
	testService  *TestService
	rdb          *redis.Client
	log          zerolog.Logger
}

var _ session.SyncAdapter = (*AttemptService)(nil)

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	questionRepo *repository.QuestionRepository,
	testService *TestService,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attemptRepo:  attemptRepo,
		questionRepo: questionRepo,
		testService:  testService,
		rdb:          rdb,
		log:          log,
	}
}

// StartAttempt opens an attempt for the student on the given test, or
// resumes the open one. Resume returns the previously synced answers
// and the server-observed remaining time.
func (a *AttemptService) StartAttempt(ctx context.Context, testID uuid.UUID, studentID int) (*session.StartResult, error) {
	paper, err := a.testService.GetPaper(ctx, testID)
	if err != nil {
		return nil, err
	}

	attempt, err := a.attemptRepo.GetOpenByTestAndStudent(ctx, testID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check open attempt: %w", err)
	}

	if attempt == nil {
		attempt = &model.TestAttempt{
			TestID:         testID,
			StudentID:      studentID,
			TotalQuestions: paper.TotalQuestions,
		}
		if err := a.attemptRepo.Create(ctx, attempt); err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("create attempt: %w", err)
			}
			// Concurrent start; pick up the row the other writer won.
			attempt, err = a.attemptRepo.GetOpenByTestAndStudent(ctx, testID, studentID)
			if err != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", err)
			}
		}
	}

	// Cache start time and attempt metadata for the hot path. Keyed by
	// the DB started_at so a resumed attempt keeps its original clock.
	pipe := a.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.AttemptStartKey(attempt.ID.String()), attempt.StartedAt.Unix(), 0)
	pipe.Set(ctx, config.CacheKey.AttemptTestKey(attempt.ID.String()), testID.String(), 0)
	pipe.Set(ctx, config.CacheKey.StudentActiveAttemptKey(testID.String(), studentID), attempt.ID.String(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		a.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to cache attempt metadata")
	}

	remaining, err := a.remainingTime(ctx, attempt)
	if err != nil {
		return nil, err
	}

	answers, err := a.loadAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	return &session.StartResult{
		AttemptID:      attempt.ID,
		TotalQuestions: paper.TotalQuestions,
		Remaining:      remaining,
		Questions:      paper.Questions,
		Answers:        answers,
	}, nil
}

// GetQuestion fetches a single safe question by index, preferring the
// cached paper.
func (a *AttemptService) GetQuestion(ctx context.Context, testID uuid.UUID, index int) (*model.SafeQuestion, error) {
	paper, err := a.testService.GetPaper(ctx, testID)
	if err == nil {
		for i := range paper.Questions {
			if paper.Questions[i].QuestionIndex == index {
				return &paper.Questions[i], nil
			}
		}
	}

	q, err := a.questionRepo.GetByTestAndIndex(ctx, testID, index)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	safe := q.Safe()
	return &safe, nil
}

// WriteAnswer upserts the answer record for one question index. The
// record lands in the Redis answers hash immediately and drains to
// PostgreSQL through the persistence queue; a write carrying a stale
// seq is dropped so a slow early sync can never overwrite a newer
// answer. Correctness is checked against the cached answer key; the
// result never reaches the student until finalization.
func (a *AttemptService) WriteAnswer(ctx context.Context, attemptID uuid.UUID, write session.AnswerWrite) (*session.WriteResult, error) {
	testID, err := a.resolveTest(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	answerKey, err := a.testService.GetAnswerKey(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}

	correct := answerKey[strconv.Itoa(write.QuestionIndex)]
	record := model.AnswerRecord{
		QuestionIndex:  write.QuestionIndex,
		SelectedAnswer: write.SelectedAnswer,
		CorrectAnswer:  correct,
		IsCorrect:      write.SelectedAnswer != nil && *write.SelectedAnswer == correct,
		Status:         write.Status,
		Seq:            write.Seq,
		AnsweredAt:     time.Now(),
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	jobJSON, err := json.Marshal(PersistAnswerJob{AttemptID: attemptID, Record: record})
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	answersKey := config.CacheKey.AttemptAnswersKey(attemptID.String())

	res, err := answerWriteScript.Run(ctx, a.rdb, []string{answersKey},
		strconv.Itoa(write.QuestionIndex), recordJSON, write.Seq).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("write answer: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("write answer: unexpected script reply length %d", len(res))
	}

	if res[0] == 1 {
		if err := a.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, jobJSON).Err(); err != nil {
			return nil, fmt.Errorf("enqueue answer: %w", err)
		}
	} else {
		a.log.Debug().
			Str("attempt_id", attemptID.String()).
			Int("question_index", write.QuestionIndex).
			Uint64("seq", write.Seq).
			Msg("Dropped stale answer write")
	}

	return &session.WriteResult{
		IsCorrect:     record.IsCorrect,
		TotalAnswered: int(res[1]),
	}, nil
}

// FinalizeAttempt grades the complete answer set and closes the
// attempt exactly once. The submitted_at guard in the UPDATE makes a
// replay fail with ErrAttemptSubmitted regardless of which server
// instance raced it there.
func (a *AttemptService) FinalizeAttempt(ctx context.Context, attemptID uuid.UUID) (*model.AttemptResult, error) {
	attempt, err := a.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Submitted() {
		return nil, session.ErrAttemptSubmitted
	}

	records, err := a.loadAnswers(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	tally := scoring.Grade(records, attempt.TotalQuestions)

	// Server-observed time spent, clamped to the test's limit.
	submittedAt := time.Now()
	timeSpent := submittedAt.Sub(attempt.StartedAt)
	if minutes, derr := a.testService.GetDuration(ctx, attempt.TestID); derr == nil {
		if limit := time.Duration(minutes) * time.Minute; timeSpent > limit {
			timeSpent = limit
		}
	}

	// Durable flush before the attempt row closes. The queue worker may
	// still replay some of these; the seq guard makes that harmless.
	for i := range records {
		if err := a.attemptRepo.UpsertAnswer(ctx, attemptID, &records[i]); err != nil {
			return nil, fmt.Errorf("flush answer %d: %w", records[i].QuestionIndex, err)
		}
	}

	ok, err := a.attemptRepo.Finalize(ctx, attemptID, tally, timeSpent, submittedAt)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if !ok {
		return nil, session.ErrAttemptSubmitted
	}

	// The attempt is closed; drop its fast-lane keys. The test mapping
	// becomes a tombstone instead of disappearing, so a late write hits
	// ErrAttemptSubmitted without a PostgreSQL round trip.
	pipe := a.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String()))
	pipe.Del(ctx, config.CacheKey.AttemptStartKey(attemptID.String()))
	pipe.Set(ctx, config.CacheKey.AttemptTestKey(attemptID.String()), submittedTombstone, submittedTombstoneTTL)
	pipe.Del(ctx, config.CacheKey.StudentActiveAttemptKey(attempt.TestID.String(), attempt.StudentID))
	if _, err := pipe.Exec(ctx); err != nil {
		a.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to clear attempt cache")
	}

	a.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("score", tally.Score).
		Int("correct", tally.Correct).
		Int("incorrect", tally.Incorrect).
		Msg("Attempt finalized")

	return &model.AttemptResult{
		AttemptID:          attemptID,
		Score:              tally.Score,
		CorrectAnswers:     tally.Correct,
		IncorrectAnswers:   tally.Incorrect,
		SkippedAnswers:     tally.Skipped,
		ReviewedUnanswered: tally.ReviewedUnanswered,
		TimeSpentSeconds:   int(timeSpent.Seconds()),
		SubmittedAt:        submittedAt,
	}, nil
}

// ReportEvent pushes a proctoring event to the persistence queue.
func (a *AttemptService) ReportEvent(ctx context.Context, event model.AttemptEvent) error {
	jobJSON, err := json.Marshal(PersistEventJob{
		AttemptID:  event.AttemptID,
		Type:       event.Type,
		Payload:    event.Payload,
		RecordedAt: event.RecordedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return a.rdb.RPush(ctx, config.WorkerKey.PersistEventsQueue, jobJSON).Err()
}

// GetResult returns the result of a student's submitted attempt.
func (a *AttemptService) GetResult(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptResult, error) {
	attempt, err := a.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveAttempt
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrNoActiveAttempt
	}
	if !attempt.Submitted() {
		return nil, ErrNoActiveAttempt
	}

	return &model.AttemptResult{
		AttemptID:          attempt.ID,
		Score:              attempt.Score,
		CorrectAnswers:     attempt.CorrectAnswers,
		IncorrectAnswers:   attempt.IncorrectAnswers,
		SkippedAnswers:     attempt.SkippedAnswers,
		ReviewedUnanswered: attempt.ReviewedUnanswered,
		TimeSpentSeconds:   attempt.TimeSpentSeconds,
		SubmittedAt:        *attempt.SubmittedAt,
	}, nil
}

// AttemptState is the reload snapshot for an open attempt: the saved
// answers plus the authoritative remaining time.
type AttemptState struct {
	AttemptID        uuid.UUID            `json:"attempt_id"`
	TotalQuestions   int                  `json:"total_questions"`
	RemainingSeconds int                  `json:"remaining_seconds"`
	Answers          []model.AnswerRecord `json:"answers"`
}

// GetState returns the state of the student's open attempt on a test.
// Unlike StartAttempt it never creates anything.
func (a *AttemptService) GetState(ctx context.Context, testID uuid.UUID, studentID int) (*AttemptState, error) {
	attempt, err := a.attemptRepo.GetOpenByTestAndStudent(ctx, testID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveAttempt
		}
		return nil, fmt.Errorf("get open attempt: %w", err)
	}

	remaining, err := a.remainingTime(ctx, attempt)
	if err != nil {
		return nil, err
	}

	answers, err := a.loadAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	return &AttemptState{
		AttemptID:        attempt.ID,
		TotalQuestions:   attempt.TotalQuestions,
		RemainingSeconds: int(remaining.Seconds()),
		Answers:          answers,
	}, nil
}

// GetHistory returns a student's submitted attempts, newest first.
func (a *AttemptService) GetHistory(ctx context.Context, studentID, page, perPage int) ([]repository.AttemptHistoryEntry, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return a.attemptRepo.ListSubmittedByStudent(ctx, studentID, perPage, (page-1)*perPage)
}

// GetLeaderboard returns the ranked submitted scores for a test.
func (a *AttemptService) GetLeaderboard(ctx context.Context, testID uuid.UUID, limit int) ([]repository.LeaderboardEntry, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return a.attemptRepo.Leaderboard(ctx, testID, limit)
}

// resolveTest maps an open attempt to its test, Redis first with a
// PostgreSQL fallback. A tombstoned or missing mapping for a submitted
// attempt surfaces as ErrAttemptSubmitted so late writes are rejected.
func (a *AttemptService) resolveTest(ctx context.Context, attemptID uuid.UUID) (uuid.UUID, error) {
	val, err := a.rdb.Get(ctx, config.CacheKey.AttemptTestKey(attemptID.String())).Result()
	if err == nil {
		if val == submittedTombstone {
			return uuid.Nil, session.ErrAttemptSubmitted
		}
		return uuid.Parse(val)
	}
	if !errors.Is(err, redis.Nil) {
		return uuid.Nil, fmt.Errorf("resolve attempt test: %w", err)
	}

	attempt, err := a.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Submitted() {
		return uuid.Nil, session.ErrAttemptSubmitted
	}

	// Self-heal the mapping for the next write.
	_ = a.rdb.Set(ctx, config.CacheKey.AttemptTestKey(attemptID.String()), attempt.TestID.String(), 0)

	return attempt.TestID, nil
}

// remainingTime computes the server-observed remaining time of an open
// attempt from its start time and the test's duration.
func (a *AttemptService) remainingTime(ctx context.Context, attempt *model.TestAttempt) (time.Duration, error) {
	minutes, err := a.testService.GetDuration(ctx, attempt.TestID)
	if err != nil {
		return 0, err
	}

	startUnix := attempt.StartedAt.Unix()
	if val, err := a.rdb.Get(ctx, config.CacheKey.AttemptStartKey(attempt.ID.String())).Result(); err == nil {
		if parsed, perr := strconv.ParseInt(val, 10, 64); perr == nil {
			startUnix = parsed
		}
	}

	endTime := time.Unix(startUnix, 0).Add(time.Duration(minutes) * time.Minute)
	remaining := time.Until(endTime)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// loadAnswers reads an attempt's answer records, Redis hash first and
// PostgreSQL as fallback, ordered by question index.
func (a *AttemptService) loadAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.AnswerRecord, error) {
	fields, err := a.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("read answers hash: %w", err)
	}

	if len(fields) == 0 {
		return a.attemptRepo.ListAnswers(ctx, attemptID)
	}

	records := make([]model.AnswerRecord, 0, len(fields))
	for _, raw := range fields {
		var rec model.AnswerRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal answer record: %w", err)
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].QuestionIndex < records[j].QuestionIndex
	})
	return records, nil
}
