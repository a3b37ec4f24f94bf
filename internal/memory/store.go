// Package memory implements the episode store and its learning cycle: the
// sole mutator of episodes in the episodic memory engine.
//
// Grounded on the teacher's internal/memory/episodic.go EpisodicMemoryStore
// (mutex-guarded maps + secondary indexes) and its StoreTrajectory →
// learning-pipeline shape, generalized from a flat trajectory store to a
// façade that wires the spatiotemporal index, hierarchical retriever,
// pattern miner, salient extractor, and adaptive cache behind one set of
// operations: start_episode, log_step, complete_episode, get_episode,
// list_episodes, retrieve_relevant_context, retrieve_relevant_patterns.
//
// Concurrency. Episodes themselves are durable records owned by
// internal/storage (already safe for concurrent use); Store layers a
// (domain, kind)-keyed mutex — a "façade shard" — over check-then-act
// sequences (step sequencing, completion freeze) so that two episodes in
// unrelated shards never contend, matching the teacher's per-key locking
// idiom generalized from a single global mutex to per-shard ones.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"unified-thinking/internal/audit"
	"unified-thinking/internal/embeddings"
	"unified-thinking/internal/errors"
	"unified-thinking/internal/extractor"
	"unified-thinking/internal/index"
	"unified-thinking/internal/pattern"
	"unified-thinking/internal/relationship"
	"unified-thinking/internal/retriever"
	"unified-thinking/internal/storage"
	"unified-thinking/internal/types"
	"unified-thinking/pkg/cache"
)

// Config bundles the sub-component configs Store wires together.
type Config struct {
	Retriever retriever.Config
	Index     index.Config
	Pattern   pattern.Config
	Cache     *cache.AdaptiveConfig
}

// DefaultConfig matches each sub-component's own default.
func DefaultConfig() Config {
	return Config{
		Retriever: retriever.DefaultConfig(),
		Index:     index.DefaultConfig(),
		Pattern:   pattern.DefaultConfig(),
		Cache:     cache.DefaultAdaptiveConfig(),
	}
}

type shardKey struct {
	domain string
	kind   types.TaskKind
}

// cacheFingerprint records the (domain, kind) a cached retrieval result was
// computed under, so a completing episode can tell which cache entries it
// might have invalidated. An empty domain or !hasKind is a wildcard: the
// query it came from didn't filter on that dimension, so any episode in
// that dimension can invalidate it.
type cacheFingerprint struct {
	domain  string
	kind    types.TaskKind
	hasKind bool
}

func (f cacheFingerprint) intersects(domain string, kind types.TaskKind) bool {
	domainOK := f.domain == "" || f.domain == domain
	kindOK := !f.hasKind || f.kind == kind
	return domainOK && kindOK
}

// Store is the episode store and learning-cycle façade.
type Store struct {
	shardMu sync.Mutex
	shards  map[shardKey]*sync.Mutex

	storage       storage.Storage
	index         *index.Index
	retrieverImpl *retriever.Retriever
	relationships *relationship.Manager
	patterns      *pattern.Miner
	embedder      embeddings.Embedder // optional: nil falls back to token-Jaccard retrieval
	auditSink     audit.Sink

	cacheMu   sync.Mutex
	ctxCache  *cache.AdaptiveCache[string, []retriever.Scored]
	patCache  *cache.AdaptiveCache[string, []*types.Pattern]
	cacheMeta map[string]cacheFingerprint

	patMu           sync.Mutex
	knownPatternIDs map[string]bool

	seq    atomic.Uint64
	logger *log.Logger
}

// New wires a Store over the given storage backend, optional embedder, and
// optional audit sink (a no-op sink is used if auditSink is nil).
func New(st storage.Storage, embedder embeddings.Embedder, auditSink audit.Sink, cfg Config) *Store {
	if auditSink == nil {
		auditSink = audit.NoopSink{}
	}
	return &Store{
		shards:          make(map[shardKey]*sync.Mutex),
		storage:         st,
		index:           index.New(cfg.Index),
		retrieverImpl:   retriever.New(cfg.Retriever),
		relationships:   relationship.NewManager(),
		patterns:        pattern.New(cfg.Pattern),
		embedder:        embedder,
		auditSink:       auditSink,
		ctxCache:        cache.NewAdaptive[string, []retriever.Scored](cfg.Cache),
		patCache:        cache.NewAdaptive[string, []*types.Pattern](cfg.Cache),
		cacheMeta:       make(map[string]cacheFingerprint),
		knownPatternIDs: make(map[string]bool),
		logger:          log.Default(),
	}
}

// Relationships exposes the relationship manager for callers (e.g. server
// tool handlers) that operate on relationship edges directly; Store itself
// only mutates episodes.
func (s *Store) Relationships() *relationship.Manager { return s.relationships }

// Patterns exposes the pattern miner for diagnostic/listing tools.
func (s *Store) Patterns() *pattern.Miner { return s.patterns }

// Index exposes the spatiotemporal index for diagnostic/listing tools.
func (s *Store) Index() *index.Index { return s.index }

func (s *Store) shardLock(domain string, kind types.TaskKind) *sync.Mutex {
	key := shardKey{domain, kind}
	s.shardMu.Lock()
	defer s.shardMu.Unlock()
	m, ok := s.shards[key]
	if !ok {
		m = &sync.Mutex{}
		s.shards[key] = m
	}
	return m
}

func (s *Store) nextID() string {
	return uuid.NewString()
}

// StartEpisode creates and persists a new open episode, returning its id.
func (s *Store) StartEpisode(ctx context.Context, desc string, tctx types.TaskContext, kind types.TaskKind) (string, error) {
	ep := &types.Episode{
		ID:              s.nextID(),
		TaskDescription: desc,
		Context:         tctx,
		Kind:            kind,
		StartTime:       time.Now(),
	}
	if err := s.storage.PutEpisode(ep); err != nil {
		return "", errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	s.auditSink.Log(ctx, audit.Event{Type: "episode.start", Subject: ep.ID})
	return ep.ID, nil
}

// LogStep appends one execution step, enforcing step-number monotonicity
// and the completion freeze invariant.
func (s *Store) LogStep(ctx context.Context, id string, step types.ExecutionStep) error {
	ep, err := s.storage.GetEpisode(id)
	if err != nil {
		return err
	}

	shard := s.shardLock(ep.Context.Domain, ep.Kind)
	shard.Lock()
	defer shard.Unlock()

	// Re-read under the shard lock: another writer to the same shard may
	// have logged a step or completed the episode since the read above.
	ep, err = s.storage.GetEpisode(id)
	if err != nil {
		return err
	}
	if ep.IsComplete() {
		return errors.NewStructuredError(errors.ErrEpisodeCompleted, "episode "+id+" is already complete")
	}
	want := len(ep.Steps) + 1
	if step.Number != want {
		return errors.NewStructuredError(errors.ErrInvalidParameter,
			fmt.Sprintf("step number %d out of sequence; expected %d", step.Number, want))
	}

	ep.Steps = append(ep.Steps, step)
	if err := s.storage.PutEpisode(ep); err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	s.auditSink.Log(ctx, audit.Event{Type: "episode.step", Subject: id})
	return nil
}

// CompleteEpisode finalizes an episode and runs the six-step learning cycle
// atomically (per shard). On a fatal storage error the episode remains
// open, per spec.md §4.1's failure semantics.
func (s *Store) CompleteEpisode(ctx context.Context, id string, outcome types.TaskOutcome) (*types.Episode, error) {
	ep, err := s.storage.GetEpisode(id)
	if err != nil {
		return nil, err
	}

	shard := s.shardLock(ep.Context.Domain, ep.Kind)
	shard.Lock()
	defer shard.Unlock()

	ep, err = s.storage.GetEpisode(id)
	if err != nil {
		return nil, err
	}
	if ep.IsComplete() {
		return nil, errors.NewStructuredError(errors.ErrEpisodeCompleted, "episode "+id+" is already complete")
	}

	now := time.Now()
	outcomeCopy := outcome
	ep.Outcome = &outcomeCopy
	ep.EndTime = &now

	s.runLearningCycle(ep, now)

	if err := s.storage.PutEpisode(ep); err != nil {
		ep.Outcome = nil
		ep.EndTime = nil
		return nil, errors.WrapError(errors.ErrStorageUnavailable, err)
	}

	s.auditSink.Log(ctx, audit.Event{Type: "episode.complete", Subject: id})
	return ep, nil
}

// GetEpisode retrieves an episode by id.
func (s *Store) GetEpisode(id string) (*types.Episode, error) {
	return s.storage.GetEpisode(id)
}

// ListEpisodes returns episodes, most recent first, paginated.
func (s *Store) ListEpisodes(limit, offset int, completedOnly bool) ([]*types.Episode, error) {
	return s.storage.ListEpisodes(limit, offset, completedOnly)
}

func (s *Store) invalidateCache(domain string, kind types.TaskKind) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	for key, fp := range s.cacheMeta {
		if fp.intersects(domain, kind) {
			s.ctxCache.Remove(key)
			s.patCache.Remove(key)
			delete(s.cacheMeta, key)
		}
	}
}

func contextCacheKey(text, domain string, kind *types.TaskKind, k int) string {
	kindStr := ""
	if kind != nil {
		kindStr = string(*kind)
	}
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("ctx|%s|%s|%d|%s", domain, kindStr, k, hex.EncodeToString(sum[:8]))
}

func patternCacheKey(domain string, kind *types.TaskKind, k int) string {
	kindStr := ""
	if kind != nil {
		kindStr = string(*kind)
	}
	return fmt.Sprintf("pat|%s|%s|%d", domain, kindStr, k)
}

func episodeView(ep *types.Episode) retriever.EpisodeView {
	v := retriever.EpisodeView{
		ID:              ep.ID,
		Domain:          ep.Context.Domain,
		Kind:            ep.Kind,
		Language:        ep.Context.Language,
		Framework:       ep.Context.Framework,
		Complexity:      ep.Context.Complexity,
		Tags:            ep.Context.Tags,
		TaskDescription: ep.TaskDescription,
		StepCount:       len(ep.Steps),
		Start:           ep.StartTime,
	}
	if ep.Reward != nil {
		v.RewardTotal = ep.Reward.Total
	}
	if ep.EndTime != nil {
		v.DurationSeconds = ep.EndTime.Sub(ep.StartTime).Seconds()
	}
	if ep.Outcome != nil {
		v.OutcomeCode = outcomeCode(ep.Outcome.Kind)
	}
	return v
}

func outcomeCode(k types.OutcomeKind) int {
	switch k {
	case types.OutcomeSuccess:
		return 2
	case types.OutcomePartialSuccess:
		return 1
	default:
		return 0
	}
}
