package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/eduiitia-svg/eduiitia-backend/internal/config"
	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
	"github.com/eduiitia-svg/eduiitia-backend/internal/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newAttemptServiceForRedis(t *testing.T) (*AttemptService, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	testService := NewTestService(nil, nil, nil, rdb, zerolog.Nop())
	return NewAttemptService(nil, nil, testService, rdb, zerolog.Nop()), rdb
}

// primeOpenAttempt caches the attempt→test mapping and the test's
// answer key so the write path never needs PostgreSQL.
func primeOpenAttempt(t *testing.T, rdb *redis.Client, attemptID, testID uuid.UUID, answerKey map[int]string) {
	t.Helper()
	ctx := context.Background()
	if err := rdb.Set(ctx, config.CacheKey.AttemptTestKey(attemptID.String()), testID.String(), 0).Err(); err != nil {
		t.Fatalf("prime attempt mapping: %v", err)
	}
	for idx, ans := range answerKey {
		if err := rdb.HSet(ctx, config.CacheKey.TestAnswerKeyKey(testID.String()), strconv.Itoa(idx), ans).Err(); err != nil {
			t.Fatalf("prime answer key: %v", err)
		}
	}
}

func TestWriteAnswerDropsStaleSeq(t *testing.T) {
	svc, rdb := newAttemptServiceForRedis(t)
	ctx := context.Background()
	attemptID, testID := uuid.New(), uuid.New()
	primeOpenAttempt(t, rdb, attemptID, testID, map[int]string{0: "B"})

	newer, older := "B", "A"
	res, err := svc.WriteAnswer(ctx, attemptID, session.AnswerWrite{
		QuestionIndex:  0,
		SelectedAnswer: &newer,
		Status:         model.AnswerStatusAnswered,
		Seq:            2,
	})
	if err != nil {
		t.Fatalf("WriteAnswer seq 2: %v", err)
	}
	if !res.IsCorrect {
		t.Fatal("seq 2 write should be graded correct")
	}

	// A slow earlier sync lands after the newer one.
	if _, err := svc.WriteAnswer(ctx, attemptID, session.AnswerWrite{
		QuestionIndex:  0,
		SelectedAnswer: &older,
		Status:         model.AnswerStatusAnswered,
		Seq:            1,
	}); err != nil {
		t.Fatalf("WriteAnswer seq 1: %v", err)
	}

	raw, err := rdb.HGet(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String()), "0").Result()
	if err != nil {
		t.Fatalf("read answers hash: %v", err)
	}
	var rec model.AnswerRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if rec.Seq != 2 {
		t.Fatalf("stored seq = %d, want 2", rec.Seq)
	}
	if rec.SelectedAnswer == nil || *rec.SelectedAnswer != "B" {
		t.Fatalf("stored answer = %v, want B", rec.SelectedAnswer)
	}
	if !rec.IsCorrect {
		t.Fatal("stored record should be correct; the stale write won")
	}

	// Only the applied write reaches the persistence queue.
	n, err := rdb.LLen(ctx, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		t.Fatalf("read queue length: %v", err)
	}
	if n != 1 {
		t.Fatalf("queue length = %d, want 1", n)
	}
}

func TestWriteAnswerNewerSeqReplaces(t *testing.T) {
	svc, rdb := newAttemptServiceForRedis(t)
	ctx := context.Background()
	attemptID, testID := uuid.New(), uuid.New()
	primeOpenAttempt(t, rdb, attemptID, testID, map[int]string{0: "B"})

	first, second := "A", "B"
	writes := []session.AnswerWrite{
		{QuestionIndex: 0, SelectedAnswer: &first, Status: model.AnswerStatusAnswered, Seq: 1},
		{QuestionIndex: 0, SelectedAnswer: &second, Status: model.AnswerStatusAnswered, Seq: 2},
	}
	for _, write := range writes {
		if _, err := svc.WriteAnswer(ctx, attemptID, write); err != nil {
			t.Fatalf("WriteAnswer seq %d: %v", write.Seq, err)
		}
	}

	raw, err := rdb.HGet(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String()), "0").Result()
	if err != nil {
		t.Fatalf("read answers hash: %v", err)
	}
	var rec model.AnswerRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if rec.Seq != 2 {
		t.Fatalf("stored seq = %d, want 2", rec.Seq)
	}
	if rec.SelectedAnswer == nil || *rec.SelectedAnswer != "B" {
		t.Fatalf("stored answer = %v, want B", rec.SelectedAnswer)
	}
}

func TestWriteAnswerRejectedAfterFinalize(t *testing.T) {
	svc, rdb := newAttemptServiceForRedis(t)
	ctx := context.Background()
	attemptID := uuid.New()

	// Finalization leaves a tombstone in place of the attempt→test
	// mapping; any late write must fail without touching the hash.
	if err := rdb.Set(ctx, config.CacheKey.AttemptTestKey(attemptID.String()), submittedTombstone, 0).Err(); err != nil {
		t.Fatalf("set tombstone: %v", err)
	}

	option := "A"
	_, err := svc.WriteAnswer(ctx, attemptID, session.AnswerWrite{
		QuestionIndex:  0,
		SelectedAnswer: &option,
		Status:         model.AnswerStatusAnswered,
		Seq:            1,
	})
	if !errors.Is(err, session.ErrAttemptSubmitted) {
		t.Fatalf("WriteAnswer after finalize = %v, want ErrAttemptSubmitted", err)
	}

	exists, err := rdb.Exists(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String())).Result()
	if err != nil {
		t.Fatalf("check answers hash: %v", err)
	}
	if exists != 0 {
		t.Fatal("late write must not recreate the answers hash")
	}
}
