package pipeline

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/plaicube/video-pipeline/internal/model"
)

// Store is the process-wide keyed registry of pipeline records and the
// single source of truth for status queries. Mutations to the same id are
// serialized; mutations to different ids proceed independently. Reads always
// return deep-copied snapshots, never a record mid-mutation.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*storeEntry
}

type storeEntry struct {
	mu sync.Mutex
	p  *model.Pipeline
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*storeEntry)}
}

// Create registers a new pipeline. The record is cloned on the way in so the
// caller cannot mutate stored state afterwards.
func (s *Store) Create(p *model.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[p.ID]; exists {
		return fmt.Errorf("pipeline %s already exists", p.ID)
	}
	s.entries[p.ID] = &storeEntry{p: p.Clone()}
	return nil
}

// CreateForVideo registers the pipeline unless one already exists for its
// video id; the check and the insert happen under one lock, so concurrent
// submissions for the same video cannot both create. When a pipeline for
// the video exists its snapshot is returned and nothing is inserted.
func (s *Store) CreateForVideo(p *model.Pipeline) (*model.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[p.ID]; exists {
		return nil, fmt.Errorf("pipeline %s already exists", p.ID)
	}
	for _, e := range s.entries {
		e.mu.Lock()
		if e.p.VideoID == p.VideoID {
			snap := e.p.Clone()
			e.mu.Unlock()
			return snap, nil
		}
		e.mu.Unlock()
	}
	s.entries[p.ID] = &storeEntry{p: p.Clone()}
	return nil, nil
}

// Get returns a snapshot of the pipeline or ErrNotFound.
func (s *Store) Get(id string) (*model.Pipeline, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p.Clone(), nil
}

// List returns snapshots of all pipelines, most-recently-created first.
func (s *Store) List() []*model.Pipeline {
	s.mu.RLock()
	entries := make([]*storeEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*model.Pipeline, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.p.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// FindByVideo returns a snapshot of the oldest pipeline submitted for a
// video id, or nil when none exists.
func (s *Store) FindByVideo(videoID string) *model.Pipeline {
	var found *model.Pipeline
	// List is newest-first; scan to the end so the oldest match wins.
	for _, p := range s.List() {
		if p.VideoID == videoID {
			found = p
		}
	}
	return found
}

// Update applies fn to the pipeline atomically with respect to concurrent
// readers and other mutations of the same id. If fn returns an error the
// prior state is preserved untouched; otherwise UpdatedAt advances and the
// new snapshot is returned.
func (s *Store) Update(id string, fn func(p *model.Pipeline) error) (*model.Pipeline, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.p.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	e.p = next
	return next.Clone(), nil
}

// Delete removes a pipeline, reporting whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

func (s *Store) entry(id string) (*storeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}
