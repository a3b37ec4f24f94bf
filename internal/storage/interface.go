package storage

import "unified-thinking/internal/types"

// EpisodeRepository manages durable episode persistence.
type EpisodeRepository interface {
	PutEpisode(episode *types.Episode) error
	GetEpisode(id string) (*types.Episode, error)
	ListEpisodes(limit, offset int, completedOnly bool) ([]*types.Episode, error)
	DeleteEpisode(id string) error
}

// PatternRepository manages durable pattern persistence.
type PatternRepository interface {
	PutPattern(pattern *types.Pattern) error
	GetPattern(id string) (*types.Pattern, error)
	DeletePattern(id string) error
	ListPatterns() ([]*types.Pattern, error)
}

// RelationshipRepository manages durable relationship-edge persistence.
type RelationshipRepository interface {
	PutRelationship(rel *types.EpisodeRelationship) error
	DeleteRelationship(id string) error
	ListRelationships() ([]*types.EpisodeRelationship, error)
}

// MetricsProvider reports storage-level operational counters.
type MetricsProvider interface {
	GetMetrics() *Metrics
}

// Storage combines all repository interfaces for unified access. It is
// write-through and durable; put_* is idempotent by id; list_* is eventually
// consistent with recent writes.
type Storage interface {
	EpisodeRepository
	PatternRepository
	RelationshipRepository
	MetricsProvider
}

// Verify MemoryStorage implements Storage interface
var _ Storage = (*MemoryStorage)(nil)
