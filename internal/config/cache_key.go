package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session.
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// AttemptAnswersKey returns the hash key holding an attempt's answer
// records, keyed by question index.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptStartKey returns the key holding an attempt's server-observed
// start time (Unix seconds).
func (r *CacheKeyStruct) AttemptStartKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:started_at", attemptID)
}

// AttemptTestKey returns the key mapping an open attempt to its test,
// so the hot write path can resolve the answer key without PostgreSQL.
func (r *CacheKeyStruct) AttemptTestKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:test", attemptID)
}

// TestPaperKey returns the key for a test's cached safe paper payload.
func (r *CacheKeyStruct) TestPaperKey(testID string) string {
	return fmt.Sprintf("test:%s:paper", testID)
}

// TestAnswerKeyKey returns the hash key mapping question index to the
// correct answer for a test. Store-side only, never sent to students.
func (r *CacheKeyStruct) TestAnswerKeyKey(testID string) string {
	return fmt.Sprintf("test:%s:answer_key", testID)
}

// TestDurationKey returns the key for a test's effective time limit in minutes.
func (r *CacheKeyStruct) TestDurationKey(testID string) string {
	return fmt.Sprintf("test:%s:duration", testID)
}

// StudentActiveAttemptKey returns the key for a student's currently open
// attempt on a test.
func (r *CacheKeyStruct) StudentActiveAttemptKey(testID string, studentID int) string {
	return fmt.Sprintf("student:%d:test:%s:attempt", studentID, testID)
}

var CacheKey = NewCacheKeyStruct()
