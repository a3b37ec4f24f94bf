// Package storage provides storage backends for the episodic memory engine.
//
// This file implements the in-memory backend: thread-safe storage using a
// read-write mutex, with retrieval methods returning copies of stored
// records. An episode copy has its own Steps, PatternIDs and HeuristicIDs
// slices and its own Outcome, Reward, Reflection and SalientFeatures
// structs; maps, slices and pointers nested inside those (step Parameters
// and Results, Context.Tags, Reflection's lists) are shared with the stored
// record. Patterns and relationships are returned as shallow struct copies.
package storage

import (
	"sort"
	"sync"
	"time"

	"unified-thinking/internal/errors"
	"unified-thinking/internal/types"
)

// MemoryStorage implements in-memory storage with thread-safe operations.
// All Get/List methods return copies (see the file comment for which
// nested fields are shared).
type MemoryStorage struct {
	mu            sync.RWMutex
	episodes      map[string]*types.Episode
	patterns      map[string]*types.Pattern
	relationships map[string]*types.EpisodeRelationship

	putEpisodeCalls     int64
	putPatternCalls     int64
	putRelationshipCalls int64
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		episodes:      make(map[string]*types.Episode),
		patterns:      make(map[string]*types.Pattern),
		relationships: make(map[string]*types.EpisodeRelationship),
	}
}

// PutEpisode stores or overwrites an episode by id (idempotent).
func (s *MemoryStorage) PutEpisode(episode *types.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes[episode.ID] = cloneEpisode(episode)
	s.putEpisodeCalls++
	return nil
}

// GetEpisode retrieves an episode by id.
func (s *MemoryStorage) GetEpisode(id string) (*types.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.episodes[id]
	if !ok {
		return nil, errors.NewStructuredError(errors.ErrEpisodeNotFound, "episode "+id+" not found")
	}
	return cloneEpisode(e), nil
}

// DeleteEpisode removes an episode by id.
func (s *MemoryStorage) DeleteEpisode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.episodes[id]; !ok {
		return errors.NewStructuredError(errors.ErrEpisodeNotFound, "episode "+id+" not found")
	}
	delete(s.episodes, id)
	return nil
}

// ListEpisodes returns episodes ordered by start time descending, paginated.
func (s *MemoryStorage) ListEpisodes(limit, offset int, completedOnly bool) ([]*types.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*types.Episode, 0, len(s.episodes))
	for _, e := range s.episodes {
		if completedOnly && !e.IsComplete() {
			continue
		}
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.After(all[j].StartTime) })

	if offset >= len(all) {
		return []*types.Episode{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*types.Episode, 0, end-offset)
	for _, e := range all[offset:end] {
		out = append(out, cloneEpisode(e))
	}
	return out, nil
}

// PutPattern stores or overwrites a pattern by id (idempotent).
func (s *MemoryStorage) PutPattern(p *types.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.patterns[p.ID] = &cp
	s.putPatternCalls++
	return nil
}

// GetPattern retrieves a pattern by id.
func (s *MemoryStorage) GetPattern(id string) (*types.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	if !ok {
		return nil, errors.NewStructuredError(errors.ErrPatternNotFound, "pattern "+id+" not found")
	}
	cp := *p
	return &cp, nil
}

// DeletePattern removes a pattern by id.
func (s *MemoryStorage) DeletePattern(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patterns[id]; !ok {
		return errors.NewStructuredError(errors.ErrPatternNotFound, "pattern "+id+" not found")
	}
	delete(s.patterns, id)
	return nil
}

// ListPatterns returns every stored pattern.
func (s *MemoryStorage) ListPatterns() ([]*types.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutRelationship stores or overwrites a relationship edge by id (idempotent).
func (s *MemoryStorage) PutRelationship(r *types.EpisodeRelationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.relationships[r.ID] = &cp
	s.putRelationshipCalls++
	return nil
}

// DeleteRelationship removes a relationship edge by id.
func (s *MemoryStorage) DeleteRelationship(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relationships[id]; !ok {
		return errors.NewStructuredError(errors.ErrRelationshipNotFound, "relationship "+id+" not found")
	}
	delete(s.relationships, id)
	return nil
}

// ListRelationships returns every stored relationship edge.
func (s *MemoryStorage) ListRelationships() ([]*types.EpisodeRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.EpisodeRelationship, 0, len(s.relationships))
	for _, r := range s.relationships {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Metrics reports storage-level operational counters.
type Metrics struct {
	TotalEpisodes      int       `json:"total_episodes"`
	CompletedEpisodes  int       `json:"completed_episodes"`
	TotalPatterns      int       `json:"total_patterns"`
	TotalRelationships int       `json:"total_relationships"`
	PutEpisodeCalls    int64     `json:"put_episode_calls"`
	PutPatternCalls    int64     `json:"put_pattern_calls"`
	PutRelationshipCalls int64   `json:"put_relationship_calls"`
	SampledAt          time.Time `json:"sampled_at"`
}

// GetMetrics returns current storage metrics.
func (s *MemoryStorage) GetMetrics() *Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	completed := 0
	for _, e := range s.episodes {
		if e.IsComplete() {
			completed++
		}
	}

	return &Metrics{
		TotalEpisodes:        len(s.episodes),
		CompletedEpisodes:    completed,
		TotalPatterns:        len(s.patterns),
		TotalRelationships:   len(s.relationships),
		PutEpisodeCalls:      s.putEpisodeCalls,
		PutPatternCalls:      s.putPatternCalls,
		PutRelationshipCalls: s.putRelationshipCalls,
		SampledAt:            time.Now(),
	}
}

func cloneEpisode(e *types.Episode) *types.Episode {
	cp := *e
	if e.Steps != nil {
		cp.Steps = make([]types.ExecutionStep, len(e.Steps))
		copy(cp.Steps, e.Steps)
	}
	if e.PatternIDs != nil {
		cp.PatternIDs = append([]string(nil), e.PatternIDs...)
	}
	if e.HeuristicIDs != nil {
		cp.HeuristicIDs = append([]string(nil), e.HeuristicIDs...)
	}
	if e.Outcome != nil {
		o := *e.Outcome
		cp.Outcome = &o
	}
	if e.Reward != nil {
		r := *e.Reward
		cp.Reward = &r
	}
	if e.Reflection != nil {
		r := *e.Reflection
		cp.Reflection = &r
	}
	if e.SalientFeatures != nil {
		sf := *e.SalientFeatures
		cp.SalientFeatures = &sf
	}
	return &cp
}
