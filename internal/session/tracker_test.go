package session

import "testing"

func TestStatusPriority(t *testing.T) {
	tr := newNavTracker()

	tr.visit(0) // visited only
	tr.visit(1)
	tr.answer(1) // answered
	tr.visit(2)
	tr.mark(2) // marked, unanswered
	tr.visit(3)
	tr.answer(3)
	tr.mark(3) // answered AND marked
	// 4 never touched

	want := []DisplayStatus{
		DisplayVisited,
		DisplayAnswered,
		DisplayMarked,
		DisplayAnsweredMarked,
		DisplayNotVisited,
	}
	got := tr.statuses(5)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

// The tie-break is a contract: answered + marked must never collapse to
// just one of the two.
func TestAnsweredMarkedTieBreak(t *testing.T) {
	tr := newNavTracker()
	tr.visit(0)
	tr.answer(0)
	tr.mark(0)

	if got := tr.statusOf(0); got != DisplayAnsweredMarked {
		t.Fatalf("status = %s, want %s", got, DisplayAnsweredMarked)
	}

	tr.unmark(0)
	if got := tr.statusOf(0); got != DisplayAnswered {
		t.Fatalf("status after unmark = %s, want %s", got, DisplayAnswered)
	}
}

func TestCountsAndAnyMarked(t *testing.T) {
	tr := newNavTracker()
	if tr.anyMarked() {
		t.Fatal("fresh tracker reports marked questions")
	}

	tr.visit(0)
	tr.visit(1)
	tr.answer(1)
	tr.mark(1)

	if tr.visitedCount() != 2 || tr.answeredCount() != 1 || tr.markedCount() != 1 {
		t.Fatalf("counts = %d/%d/%d", tr.visitedCount(), tr.answeredCount(), tr.markedCount())
	}
	if !tr.anyMarked() {
		t.Fatal("anyMarked false with one mark set")
	}

	// Re-visiting and re-answering must not inflate counts.
	tr.visit(1)
	tr.answer(1)
	if tr.visitedCount() != 2 || tr.answeredCount() != 1 {
		t.Fatal("duplicate events changed counts")
	}
}
