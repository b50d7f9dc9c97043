// Package scoring implements the fixed marking scheme applied at
// submission: +4 for a correct answer, -1 for an incorrect answer,
// 0 for a skipped question. The scheme is a domain contract, not a
// tunable — changing it changes the meaning of every stored score.
package scoring

import "github.com/eduiitia-svg/eduiitia-backend/internal/model"

// Marks awarded per answer outcome.
const (
	MarksCorrect   = 4
	MarksIncorrect = -1
	MarksSkipped   = 0
)

// Tally is the result of grading a complete answer set.
type Tally struct {
	Score              int `json:"score"`
	Correct            int `json:"correct"`
	Incorrect          int `json:"incorrect"`
	Skipped            int `json:"skipped"`
	ReviewedUnanswered int `json:"reviewed_unanswered"`
}

// Grade computes the final tally for an attempt. totalQuestions fixes
// the skipped count: questions with no answer record at all are skipped
// too, not just records with a nil selection.
//
// A record with a nil SelectedAnswer scores zero; if it also carries a
// review mark it is counted separately as reviewed-but-unanswered for
// reporting. Correctness is read from the record (computed store-side
// at write time), never recomputed here.
func Grade(records []model.AnswerRecord, totalQuestions int) Tally {
	var t Tally

	for _, rec := range records {
		if rec.SelectedAnswer == nil {
			if rec.Status == model.AnswerStatusReview {
				t.ReviewedUnanswered++
			}
			continue
		}
		if rec.IsCorrect {
			t.Correct++
			t.Score += MarksCorrect
		} else {
			t.Incorrect++
			t.Score += MarksIncorrect
		}
	}

	t.Skipped = totalQuestions - t.Correct - t.Incorrect
	if t.Skipped < 0 {
		// Duplicate indices in the input; the writer is supposed to
		// prevent this, but never report a negative count.
		t.Skipped = 0
	}

	return t
}
