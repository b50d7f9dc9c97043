package session

// DisplayStatus is the per-question status shown on the question
// palette. Derived, never stored.
type DisplayStatus string

const (
	DisplayAnsweredMarked DisplayStatus = "answered-marked"
	DisplayMarked         DisplayStatus = "marked"
	DisplayAnswered       DisplayStatus = "answered"
	DisplayVisited        DisplayStatus = "visited"
	DisplayNotVisited     DisplayStatus = "not-visited"
)

// navTracker maintains the visited, answered and marked-for-review
// index sets, updated incrementally as the student moves through the
// test. Not goroutine-safe; the controller's mutex guards it.
type navTracker struct {
	visited  map[int]struct{}
	answered map[int]struct{}
	marked   map[int]struct{}
}

func newNavTracker() *navTracker {
	return &navTracker{
		visited:  make(map[int]struct{}),
		answered: make(map[int]struct{}),
		marked:   make(map[int]struct{}),
	}
}

func (t *navTracker) visit(index int)  { t.visited[index] = struct{}{} }
func (t *navTracker) answer(index int) { t.answered[index] = struct{}{} }
func (t *navTracker) mark(index int)   { t.marked[index] = struct{}{} }
func (t *navTracker) unmark(index int) { delete(t.marked, index) }

func (t *navTracker) isAnswered(index int) bool {
	_, ok := t.answered[index]
	return ok
}

func (t *navTracker) isMarked(index int) bool {
	_, ok := t.marked[index]
	return ok
}

func (t *navTracker) visitedCount() int  { return len(t.visited) }
func (t *navTracker) answeredCount() int { return len(t.answered) }
func (t *navTracker) markedCount() int   { return len(t.marked) }

// anyMarked reports whether any question is still marked for review.
// Gates submission behind an explicit confirmation.
func (t *navTracker) anyMarked() bool { return len(t.marked) > 0 }

// statusOf derives the display status for one index. The priority order
// is a contract: answered-marked > marked > answered > visited >
// not-visited. An index that is both answered and marked must report
// answered-marked, never one of the two alone.
func (t *navTracker) statusOf(index int) DisplayStatus {
	answered := t.isAnswered(index)
	marked := t.isMarked(index)

	switch {
	case answered && marked:
		return DisplayAnsweredMarked
	case marked:
		return DisplayMarked
	case answered:
		return DisplayAnswered
	default:
		if _, ok := t.visited[index]; ok {
			return DisplayVisited
		}
		return DisplayNotVisited
	}
}

// statuses derives the display status for every index in [0, total).
func (t *navTracker) statuses(total int) []DisplayStatus {
	out := make([]DisplayStatus, total)
	for i := 0; i < total; i++ {
		out[i] = t.statusOf(i)
	}
	return out
}
