package memory

import (
	"context"
	"sort"
	"time"

	"unified-thinking/internal/retriever"
	"unified-thinking/internal/types"
)

// RetrieveRelevantContext runs the hierarchical retriever (§4.3) over
// episodes indexed under the given domain/kind filters, caching the result
// under a fingerprint that CompleteEpisode's cache-invalidation step can
// later evict. If an embedder is configured and queryText is non-empty, the
// query is embedded for cosine-similarity scoring (L4); otherwise the
// retriever falls back to token-Jaccard against task descriptions.
func (s *Store) RetrieveRelevantContext(ctx context.Context, queryText string, tctx types.TaskContext, kind *types.TaskKind, k int) ([]retriever.Scored, error) {
	key := contextCacheKey(queryText, tctx.Domain, kind, k)

	s.cacheMu.Lock()
	if cached, ok := s.ctxCache.Get(key); ok {
		s.cacheMu.Unlock()
		return cached, nil
	}
	s.cacheMu.Unlock()

	var domainPtr *string
	if tctx.Domain != "" {
		domainPtr = &tctx.Domain
	}
	ids := s.index.Query(domainPtr, kind, nil)

	candidates := make([]retriever.EpisodeView, 0, len(ids))
	for _, id := range ids {
		ep, err := s.storage.GetEpisode(id)
		if err != nil {
			continue
		}
		candidates = append(candidates, episodeView(ep))
	}

	q := retriever.Query{
		Text:   queryText,
		Domain: tctx.Domain,
		Limit:  k,
	}
	if kind != nil {
		q.Kind = *kind
		q.HasKind = true
	}
	if s.embedder != nil && queryText != "" {
		if v, err := s.embedder.Embed(ctx, queryText); err == nil {
			q.Embedding = v
		}
	}

	results := s.retrieverImpl.Retrieve(ctx, candidates, q, time.Now())

	s.cacheMu.Lock()
	s.ctxCache.Insert(key, results)
	s.cacheMeta[key] = cacheFingerprint{domain: tctx.Domain, kind: q.Kind, hasKind: q.HasKind}
	s.cacheMu.Unlock()

	return results, nil
}

// RetrieveRelevantPatterns returns the current pattern set filtered to the
// given domain (all patterns if domain is empty) and ranked by confidence,
// up to k results. Results are cached the same way as
// RetrieveRelevantContext.
func (s *Store) RetrieveRelevantPatterns(ctx context.Context, tctx types.TaskContext, kind *types.TaskKind, k int) ([]*types.Pattern, error) {
	key := patternCacheKey(tctx.Domain, kind, k)

	s.cacheMu.Lock()
	if cached, ok := s.patCache.Get(key); ok {
		s.cacheMu.Unlock()
		return cached, nil
	}
	s.cacheMu.Unlock()

	all := s.patterns.Derive()
	matched := make([]*types.Pattern, 0, len(all))
	for _, p := range all {
		if tctx.Domain != "" && p.Context != tctx.Domain {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Confidence != matched[j].Confidence {
			return matched[i].Confidence > matched[j].Confidence
		}
		return matched[i].ID < matched[j].ID
	})
	if k > 0 && len(matched) > k {
		matched = matched[:k]
	}

	hasKind := kind != nil
	kindVal := types.TaskKind("")
	if hasKind {
		kindVal = *kind
	}

	s.cacheMu.Lock()
	s.patCache.Insert(key, matched)
	s.cacheMeta[key] = cacheFingerprint{domain: tctx.Domain, kind: kindVal, hasKind: hasKind}
	s.cacheMu.Unlock()

	return matched, nil
}
