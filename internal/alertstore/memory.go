package alertstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"alertkit/internal/alert"
)

// memoryStore keeps the event log in process memory. It honors the same
// counter and open-row semantics as the sqlite backend, which makes it the
// reference implementation for the conformance tests.
type memoryStore struct {
	mu      sync.Mutex
	rows    []StoredAlert
	counter int64
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) RecordIssued(_ context.Context, a alert.Alert, at time.Time) error {
	row, err := NewStoredAlert(a, at)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.counter++
	row.ModificationCounter = s.counter
	s.rows = append(s.rows, row)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) RecordAcknowledgement(_ context.Context, id alert.Identifier, at time.Time) error {
	return s.closeLatestOpen(id, func(r *StoredAlert) { t := at; r.AcknowledgedDate = &t })
}

func (s *memoryStore) RecordRetraction(_ context.Context, id alert.Identifier, at time.Time) error {
	return s.closeLatestOpen(id, func(r *StoredAlert) { t := at; r.RetractedDate = &t })
}

func (s *memoryStore) closeLatestOpen(id alert.Identifier, set func(*StoredAlert)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := -1
	for i := range s.rows {
		r := &s.rows[i]
		if r.Identifier() != id || !r.IsOpen() {
			continue
		}
		if best < 0 || r.ModificationCounter > s.rows[best].ModificationCounter {
			best = i
		}
	}
	if best < 0 {
		return ErrNotFound
	}
	set(&s.rows[best])
	s.counter++
	s.rows[best].ModificationCounter = s.counter
	return nil
}

func (s *memoryStore) Fetch(_ context.Context, id alert.Identifier) ([]StoredAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []StoredAlert
	for _, r := range s.rows {
		if r.Identifier() == id {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedDate.Before(out[j].IssuedDate) })
	return out, nil
}

func (s *memoryStore) LookupAllUnacknowledged(_ context.Context) ([]StoredAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []StoredAlert
	for _, r := range s.rows {
		if r.IsOpen() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ModificationCounter < out[j].ModificationCounter
	})
	return out, nil
}

func (s *memoryStore) ExecuteQuery(_ context.Context, since time.Time, limit int) (QueryAnchor, []StoredAlert, error) {
	return s.query(QueryAnchor{Since: since}, limit)
}

func (s *memoryStore) ContinueQuery(_ context.Context, anchor QueryAnchor, limit int) (QueryAnchor, []StoredAlert, error) {
	return s.query(anchor, limit)
}

func (s *memoryStore) query(anchor QueryAnchor, limit int) (QueryAnchor, []StoredAlert, error) {
	if limit <= 0 {
		return anchor, nil, nil
	}

	s.mu.Lock()
	maxCounter := s.counter
	matched := make([]StoredAlert, 0, limit)
	for _, r := range s.rows {
		if r.ModificationCounter <= anchor.ModificationCounter {
			continue
		}
		if !anchor.Since.IsZero() && r.IssuedDate.Before(anchor.Since) {
			continue
		}
		matched = append(matched, r)
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ModificationCounter < matched[j].ModificationCounter
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}

	// A full page stops at its last row; a short page covered the whole
	// feed, so the anchor jumps past filtered-out rows too.
	next := anchor
	if len(matched) == limit {
		next.ModificationCounter = matched[len(matched)-1].ModificationCounter
	} else if maxCounter > next.ModificationCounter {
		next.ModificationCounter = maxCounter
	}
	return next, matched, nil
}

func (s *memoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{TotalRows: int64(len(s.rows))}
	for _, r := range s.rows {
		if r.IsOpen() {
			st.OpenRows++
		}
	}
	return st, nil
}
