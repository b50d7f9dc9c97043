package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/eduiitia-svg/eduiitia-backend/internal/config"
	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
	"github.com/eduiitia-svg/eduiitia-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Common test errors.
var (
	ErrTestNotAvailable = errors.New("test is not available")
	ErrNoQuestions      = errors.New("test has no questions")
)

// TestService handles test catalog business logic and the Redis fast
// lane: published papers, answer keys, and durations are cached so the
// hot attempt path never touches PostgreSQL.
type TestService struct {
	testRepo     *repository.TestRepository
	questionRepo *repository.QuestionRepository
	attemptRepo  *repository.AttemptRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewTestService creates a new TestService.
func NewTestService(
	testRepo *repository.TestRepository,
	questionRepo *repository.QuestionRepository,
	attemptRepo *repository.AttemptRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *TestService {
	return &TestService{
		testRepo:     testRepo,
		questionRepo: questionRepo,
		attemptRepo:  attemptRepo,
		rdb:          rdb,
		log:          log,
	}
}

// LobbyStatus represents the concrete state of a test in the lobby.
type LobbyStatus string

const (
	LobbyStatusAvailable  LobbyStatus = "AVAILABLE"
	LobbyStatusInProgress LobbyStatus = "IN_PROGRESS"
	LobbyStatusCompleted  LobbyStatus = "COMPLETED"
)

// LobbyTest represents a test as displayed in the student lobby.
type LobbyTest struct {
	model.Test
	LobbyStatus LobbyStatus `json:"lobby_status"`
	Score       *int        `json:"score,omitempty"`
}

// GetByID retrieves a test by id.
func (s *TestService) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	return s.testRepo.GetByID(ctx, id)
}

// GetLobby returns the published tests with the student's attempt
// status overlaid on each entry.
func (s *TestService) GetLobby(ctx context.Context, studentID int) ([]LobbyTest, error) {
	tests, err := s.testRepo.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published tests: %w", err)
	}

	attempts, _, err := s.attemptRepo.ListSubmittedByStudent(ctx, studentID, 500, 0)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	// Keep the best score per test for the overlay.
	best := make(map[uuid.UUID]int, len(attempts))
	for _, a := range attempts {
		if score, ok := best[a.TestID]; !ok || a.Score > score {
			best[a.TestID] = a.Score
		}
	}

	lobby := make([]LobbyTest, 0, len(tests))
	for _, t := range tests {
		entry := LobbyTest{Test: t, LobbyStatus: LobbyStatusAvailable}

		if score, ok := best[t.ID]; ok {
			sc := score
			entry.LobbyStatus = LobbyStatusCompleted
			entry.Score = &sc
		} else if open, err := s.attemptRepo.GetOpenByTestAndStudent(ctx, t.ID, studentID); err == nil && open != nil {
			entry.LobbyStatus = LobbyStatusInProgress
		}

		lobby = append(lobby, entry)
	}

	return lobby, nil
}

// WarmTestCache loads a test's safe paper, answer key, and duration
// from PostgreSQL into Redis. Core cache-warming logic used on publish
// and on startup prewarm.
func (s *TestService) WarmTestCache(ctx context.Context, test *model.Test) error {
	questions, err := s.questionRepo.ListByTest(ctx, test.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	safe := make([]model.SafeQuestion, len(questions))
	answerKey := make(map[string]interface{}, len(questions))
	for i, q := range questions {
		safe[i] = q.Safe()
		answerKey[strconv.Itoa(q.QuestionIndex)] = q.CorrectAnswer
	}

	paper := model.TestPaper{
		TestID:           test.ID,
		Title:            test.Title,
		Subject:          test.Subject,
		TotalQuestions:   len(questions),
		TimeLimitMinutes: int(test.TimeLimit().Minutes()),
		Questions:        safe,
	}

	paperJSON, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}

	keyKey := config.CacheKey.TestAnswerKeyKey(test.ID.String())

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.TestPaperKey(test.ID.String()), paperJSON, 0)
	pipe.Del(ctx, keyKey)
	pipe.HSet(ctx, keyKey, answerKey)
	pipe.Set(ctx, config.CacheKey.TestDurationKey(test.ID.String()), paper.TimeLimitMinutes, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("test_id", test.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads every published test into Redis on startup so
// the first students in never race a lazy cache fill.
func (s *TestService) PrewarmAllCaches(ctx context.Context) error {
	tests, err := s.testRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published tests: %w", err)
	}

	if len(tests) == 0 {
		s.log.Info().Msg("No published tests to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(tests)).Msg("Prewarming published tests...")

	warmed := 0
	for i := range tests {
		if err := s.WarmTestCache(ctx, &tests[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("test_id", tests[i].ID.String()).
				Msg("Failed to warm test, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(tests)).
		Msg("Prewarming complete")
	return nil
}

// GetPaper retrieves the cached safe paper from Redis, falling back to
// a fresh warm if the cache was evicted.
func (s *TestService) GetPaper(ctx context.Context, testID uuid.UUID) (*model.TestPaper, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.TestPaperKey(testID.String())).Bytes()
	if errors.Is(err, redis.Nil) {
		test, dbErr := s.testRepo.GetByID(ctx, testID)
		if dbErr != nil {
			return nil, fmt.Errorf("get test: %w", dbErr)
		}
		if test.Status != model.TestStatusPublished {
			return nil, ErrTestNotAvailable
		}
		if warmErr := s.WarmTestCache(ctx, test); warmErr != nil {
			return nil, warmErr
		}
		data, err = s.rdb.Get(ctx, config.CacheKey.TestPaperKey(testID.String())).Bytes()
	}
	if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}

	var paper model.TestPaper
	if err := json.Unmarshal(data, &paper); err != nil {
		return nil, fmt.Errorf("unmarshal paper: %w", err)
	}
	return &paper, nil
}

// GetAnswerKey retrieves the answer key hash from Redis for store-side
// correctness checks, keyed by question index.
func (s *TestService) GetAnswerKey(ctx context.Context, testID uuid.UUID) (map[string]string, error) {
	result, err := s.rdb.HGetAll(ctx, config.CacheKey.TestAnswerKeyKey(testID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(result) == 0 {
		return nil, errors.New("answer key not found in cache")
	}
	return result, nil
}

// GetDuration retrieves the effective time limit in minutes from Redis,
// falling back to PostgreSQL on a cache miss.
func (s *TestService) GetDuration(ctx context.Context, testID uuid.UUID) (int, error) {
	val, err := s.rdb.Get(ctx, config.CacheKey.TestDurationKey(testID.String())).Result()
	if err == nil {
		minutes, convErr := strconv.Atoi(val)
		if convErr != nil {
			return 0, fmt.Errorf("invalid duration format in cache: %w", convErr)
		}
		return minutes, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("get duration: %w", err)
	}

	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return 0, fmt.Errorf("get test: %w", err)
	}
	minutes := int(test.TimeLimit().Minutes())

	// Self-heal so the next request is fast.
	_ = s.rdb.Set(ctx, config.CacheKey.TestDurationKey(testID.String()), minutes, 0)

	return minutes, nil
}
