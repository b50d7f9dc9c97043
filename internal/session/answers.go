package session

import (
	"sort"
	"time"

	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
)

// localAnswer is the in-memory mirror of one remote AnswerRecord,
// kept for instant UI feedback while syncs are in flight.
type localAnswer struct {
	Option    *string
	Status    model.AnswerStatus
	Seq       uint64
	UpdatedAt time.Time
}

// answerStore holds the session-local answer state, ordered by question
// index. Every mutation bumps a session-wide sequence counter; the
// per-index sequence is what keeps interleaved async syncs from
// regressing an answer (last write wins, §ordering contract of the
// sync adapter).
//
// The store is not goroutine-safe; the controller's mutex guards it.
type answerStore struct {
	seq     uint64
	byIndex map[int]*localAnswer
}

func newAnswerStore() *answerStore {
	return &answerStore{byIndex: make(map[int]*localAnswer)}
}

// set records the latest answer state for an index and returns the
// sequence number assigned to this mutation.
func (s *answerStore) set(index int, option *string, status model.AnswerStatus) uint64 {
	s.seq++
	s.byIndex[index] = &localAnswer{
		Option:    option,
		Status:    status,
		Seq:       s.seq,
		UpdatedAt: time.Now(),
	}
	return s.seq
}

// restore seeds the store from previously synced records without
// assigning new sequence numbers below ones the remote already holds.
func (s *answerStore) restore(records []model.AnswerRecord) {
	for _, rec := range records {
		s.byIndex[rec.QuestionIndex] = &localAnswer{
			Option:    rec.SelectedAnswer,
			Status:    rec.Status,
			Seq:       rec.Seq,
			UpdatedAt: rec.AnsweredAt,
		}
		if rec.Seq > s.seq {
			s.seq = rec.Seq
		}
	}
}

// get returns the local answer for an index, if any.
func (s *answerStore) get(index int) (*localAnswer, bool) {
	a, ok := s.byIndex[index]
	return a, ok
}

// stale reports whether seq is no longer the latest mutation for the
// index. Used to discard out-of-order sync completions.
func (s *answerStore) stale(index int, seq uint64) bool {
	a, ok := s.byIndex[index]
	return ok && a.Seq > seq
}

// records returns the local answer set as AnswerRecords ordered by
// question index.
func (s *answerStore) records() []model.AnswerRecord {
	indices := make([]int, 0, len(s.byIndex))
	for i := range s.byIndex {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := make([]model.AnswerRecord, 0, len(indices))
	for _, i := range indices {
		a := s.byIndex[i]
		out = append(out, model.AnswerRecord{
			QuestionIndex:  i,
			SelectedAnswer: a.Option,
			Status:         a.Status,
			Seq:            a.Seq,
			AnsweredAt:     a.UpdatedAt,
		})
	}
	return out
}
