package scoring

import (
	"testing"

	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
)

func answered(index int, option string, correct bool) model.AnswerRecord {
	return model.AnswerRecord{
		QuestionIndex:  index,
		SelectedAnswer: &option,
		IsCorrect:      correct,
		Status:         model.AnswerStatusAnswered,
	}
}

func skipped(index int, status model.AnswerStatus) model.AnswerRecord {
	return model.AnswerRecord{QuestionIndex: index, Status: status}
}

// The spec scenario: 5 questions, [correct, incorrect, skipped, correct,
// skipped] must grade to correct=2, incorrect=1, skipped=2, score 7.
func TestGradeScenario(t *testing.T) {
	records := []model.AnswerRecord{
		answered(0, "A", true),
		answered(1, "B", false),
		skipped(2, model.AnswerStatusNotVisited),
		answered(3, "C", true),
	}
	// Question 4 has no record at all; it still counts as skipped.

	got := Grade(records, 5)

	if got.Correct != 2 || got.Incorrect != 1 || got.Skipped != 2 {
		t.Fatalf("counts = %d/%d/%d, want 2/1/2", got.Correct, got.Incorrect, got.Skipped)
	}
	if got.Score != 7 {
		t.Fatalf("score = %d, want 7", got.Score)
	}
}

func TestGradeRoundTrip(t *testing.T) {
	cases := []struct {
		name                string
		correct, incorrect  int
		skippedCount, total int
	}{
		{"all correct", 10, 0, 0, 10},
		{"all incorrect", 0, 10, 0, 10},
		{"all skipped", 0, 0, 10, 10},
		{"mixed", 7, 2, 1, 10},
		{"single", 1, 0, 0, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var records []model.AnswerRecord
			index := 0
			for i := 0; i < tc.correct; i++ {
				records = append(records, answered(index, "A", true))
				index++
			}
			for i := 0; i < tc.incorrect; i++ {
				records = append(records, answered(index, "B", false))
				index++
			}

			got := Grade(records, tc.total)

			want := MarksCorrect*tc.correct + MarksIncorrect*tc.incorrect
			if got.Score != want {
				t.Errorf("score = %d, want %d", got.Score, want)
			}
			if got.Skipped != tc.skippedCount {
				t.Errorf("skipped = %d, want %d", got.Skipped, tc.skippedCount)
			}
		})
	}
}

func TestGradeReviewedUnanswered(t *testing.T) {
	records := []model.AnswerRecord{
		answered(0, "A", true),
		skipped(1, model.AnswerStatusReview),
		skipped(2, model.AnswerStatusReview),
		skipped(3, model.AnswerStatusNotVisited),
	}

	got := Grade(records, 4)

	if got.ReviewedUnanswered != 2 {
		t.Fatalf("reviewed unanswered = %d, want 2", got.ReviewedUnanswered)
	}
	// Review-marked but unanswered questions still score zero.
	if got.Score != 4 || got.Skipped != 3 {
		t.Fatalf("score/skipped = %d/%d, want 4/3", got.Score, got.Skipped)
	}
}

// An answered question that still carries a review mark scores normally.
func TestGradeAnsweredUnderReview(t *testing.T) {
	option := "B"
	records := []model.AnswerRecord{
		{QuestionIndex: 0, SelectedAnswer: &option, IsCorrect: true, Status: model.AnswerStatusReview},
	}

	got := Grade(records, 1)

	if got.Score != MarksCorrect || got.Correct != 1 || got.ReviewedUnanswered != 0 {
		t.Fatalf("unexpected tally %+v", got)
	}
}

func TestGradeEmpty(t *testing.T) {
	got := Grade(nil, 3)
	if got.Score != 0 || got.Skipped != 3 {
		t.Fatalf("unexpected tally %+v", got)
	}
}
