package session

import (
	"testing"

	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
)

func strPtr(s string) *string { return &s }

func TestAnswerStoreSequencing(t *testing.T) {
	s := newAnswerStore()

	first := s.set(3, strPtr("A"), model.AnswerStatusAnswered)
	second := s.set(3, strPtr("B"), model.AnswerStatusAnswered)

	if second <= first {
		t.Fatalf("seq did not increase: %d then %d", first, second)
	}

	// The earlier write is stale once a newer one exists for the index;
	// its async completion must be discarded.
	if !s.stale(3, first) {
		t.Fatal("first write not reported stale")
	}
	if s.stale(3, second) {
		t.Fatal("latest write reported stale")
	}

	a, ok := s.get(3)
	if !ok || *a.Option != "B" {
		t.Fatal("latest answer not retained")
	}
}

func TestAnswerStoreRecordsOrdered(t *testing.T) {
	s := newAnswerStore()
	s.set(4, strPtr("D"), model.AnswerStatusAnswered)
	s.set(0, strPtr("A"), model.AnswerStatusAnswered)
	s.set(2, nil, model.AnswerStatusReview)

	records := s.records()
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].QuestionIndex <= records[i-1].QuestionIndex {
			t.Fatalf("records not ordered by index: %v", records)
		}
	}
	if records[1].SelectedAnswer != nil {
		t.Fatal("review-only record must carry nil answer")
	}
}

func TestAnswerStoreRestore(t *testing.T) {
	s := newAnswerStore()
	s.restore([]model.AnswerRecord{
		{QuestionIndex: 0, SelectedAnswer: strPtr("A"), Status: model.AnswerStatusAnswered, Seq: 7},
		{QuestionIndex: 1, Status: model.AnswerStatusReview, Seq: 9},
	})

	// New sequence numbers must continue above the restored maximum, or
	// the store would accept resurrected writes as fresh.
	if seq := s.set(0, strPtr("C"), model.AnswerStatusAnswered); seq <= 9 {
		t.Fatalf("post-restore seq = %d, want > 9", seq)
	}
}
