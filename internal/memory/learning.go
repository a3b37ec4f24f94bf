package memory

import (
	"time"

	"unified-thinking/internal/extractor"
	"unified-thinking/internal/types"
)

// runLearningCycle implements spec.md §4.1's six-step learning cycle,
// called once under the episode's shard lock by CompleteEpisode. Steps 1-3
// are pure and cannot fail; step 4 (pattern mining) is best-effort and logs
// rather than fails on error; steps 5-6 are infallible mutations of
// in-memory structures. The only fatal failure mode (a storage write error)
// is handled by the caller, which rolls the episode back to open.
func (s *Store) runLearningCycle(ep *types.Episode, now time.Time) {
	duration := now.Sub(ep.StartTime)

	// 1. Reward vector.
	ep.Reward = computeReward(ep.Kind, ep.Steps, ep.Outcome, duration)

	// 2. Reflection via the three analyzers.
	ep.Reflection = generateReflection(ep.Kind, ep.Context, ep.Steps, ep.Outcome, duration, now)

	// 3. Salient feature extraction.
	ep.SalientFeatures = extractor.Extract(ep.Steps, ep.Outcome, ep.Reflection)

	// 4. Pattern mining: logged, non-fatal on failure.
	s.minePatterns(ep)

	// 5. Spatiotemporal index insertion.
	s.index.InsertAt(ep.ID, ep.Context.Domain, ep.Kind, ep.StartTime, now)

	// 6. Cache invalidation for this episode's (domain, kind).
	s.invalidateCache(ep.Context.Domain, ep.Kind)
}

func (s *Store) minePatterns(ep *types.Episode) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("memory: pattern mining panicked for episode %s: %v", ep.ID, r)
		}
	}()

	s.patterns.Observe(ep)
	all := s.patterns.Derive()

	newIDs := s.diffNewPatternIDs(all)
	if len(newIDs) > 0 {
		ep.PatternIDs = append(ep.PatternIDs, newIDs...)
	}

	for _, p := range all {
		if err := s.storage.PutPattern(p); err != nil {
			s.logger.Printf("memory: failed to persist pattern %s: %v", p.ID, err)
		}
	}
}

// diffNewPatternIDs returns the ids in all that Store has not seen in a
// prior Derive() call, i.e. the patterns "newly accepted" by this learning
// cycle. spec.md §4.1 attaches newly-accepted pattern ids to the
// triggering episode; since the miner recomputes its full pattern set from
// scratch on every Derive() rather than reporting per-episode attribution,
// this diff against the previously-known id set is the closest faithful
// reading and is recorded as such in DESIGN.md.
func (s *Store) diffNewPatternIDs(all []*types.Pattern) []string {
	s.patMu.Lock()
	defer s.patMu.Unlock()
	var out []string
	for _, p := range all {
		if !s.knownPatternIDs[p.ID] {
			s.knownPatternIDs[p.ID] = true
			out = append(out, p.ID)
		}
	}
	return out
}
