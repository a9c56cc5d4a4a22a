package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/skillpulse/internal/domain/model"
	"github.com/okian/skillpulse/internal/domain/selection"
)

// MemoryStore keeps everything in mutex-guarded maps. Per-key slices are
// kept sorted so reads never sort.
type MemoryStore struct {
	mu         sync.RWMutex
	ids        map[string]struct{}
	records    map[key][]model.Assessment
	results    map[key][]model.ConsolidatedResult
	skills     map[string]map[string]struct{}
	maxHistory int
	closed     bool
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		ids:        make(map[string]struct{}),
		records:    make(map[key][]model.Assessment),
		results:    make(map[key][]model.ConsolidatedResult),
		skills:     make(map[string]map[string]struct{}),
		maxHistory: newOptions(opts).maxHistory,
	}
}

// Append implements Store.Append.
func (s *MemoryStore) Append(_ context.Context, a model.Assessment) (err error) {
	defer observe("append", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, dup := s.ids[a.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicate, a.ID)
	}
	s.ids[a.ID] = struct{}{}

	k := key{a.StudentID, a.SkillID}
	recs := s.records[k]
	// Records arrive roughly in order; insert from the back.
	i := len(recs)
	for i > 0 && recordAfter(recs[i-1], a) {
		i--
	}
	recs = append(recs, model.Assessment{})
	copy(recs[i+1:], recs[i:])
	recs[i] = a
	s.records[k] = recs

	if s.skills[a.StudentID] == nil {
		s.skills[a.StudentID] = make(map[string]struct{})
	}
	s.skills[a.StudentID][a.SkillID] = struct{}{}
	return nil
}

// recordAfter reports whether a sorts after b (time, then id).
func recordAfter(a, b model.Assessment) bool {
	if !a.At.Equal(b.At) {
		return a.At.After(b.At)
	}
	return a.ID > b.ID
}

// Records implements Store.Records.
func (s *MemoryStore) Records(_ context.Context, studentID, skillID string) ([]model.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	recs := s.records[key{studentID, skillID}]
	out := make([]model.Assessment, len(recs))
	copy(out, recs)
	return out, nil
}

// Latest implements Store.Latest.
func (s *MemoryStore) Latest(ctx context.Context, studentID, skillID string, source model.Source) (model.Assessment, error) {
	recs, err := s.Records(ctx, studentID, skillID)
	if err != nil {
		return model.Assessment{}, err
	}
	a, ok := selection.Latest(recs, source)
	if !ok {
		return model.Assessment{}, ErrNotFound
	}
	return a, nil
}

// RecentPeers implements Store.RecentPeers.
func (s *MemoryStore) RecentPeers(ctx context.Context, studentID, skillID string, n int) ([]model.Assessment, error) {
	recs, err := s.Records(ctx, studentID, skillID)
	if err != nil {
		return nil, err
	}
	return selection.RecentPeers(recs, n), nil
}

// SaveResult implements Store.SaveResult.
func (s *MemoryStore) SaveResult(_ context.Context, r model.ConsolidatedResult) (err error) {
	defer observe("save_result", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	k := key{r.StudentID, r.SkillID}
	hist := s.results[k]
	i := sort.Search(len(hist), func(i int) bool { return !hist[i].At.Before(r.At) })
	switch {
	case i < len(hist) && hist[i].At.Equal(r.At):
		hist[i] = r
	default:
		hist = append(hist, model.ConsolidatedResult{})
		copy(hist[i+1:], hist[i:])
		hist[i] = r
	}
	if s.maxHistory > 0 && len(hist) > s.maxHistory {
		hist = append([]model.ConsolidatedResult(nil), hist[len(hist)-s.maxHistory:]...)
	}
	s.results[k] = hist
	return nil
}

// History implements Store.History.
func (s *MemoryStore) History(_ context.Context, studentID, skillID string, limit int) ([]model.ConsolidatedResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	hist := s.results[key{studentID, skillID}]
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	out := make([]model.ConsolidatedResult, len(hist))
	copy(out, hist)
	return out, nil
}

// Skills implements Store.Skills.
func (s *MemoryStore) Skills(_ context.Context, studentID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]string, 0, len(s.skills[studentID]))
	for id := range s.skills[studentID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Students implements Store.Students.
func (s *MemoryStore) Students(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.skills)
}

// Close marks the store closed. Further calls return ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
