// Package retriever implements the four-level coarse-to-fine scoring
// pipeline of SPEC_FULL.md §4.3: domain filter, kind filter, temporal
// cluster selection, similarity scoring, combined into a single relevance
// score with deterministic tie-breaks.
//
// Grounded on internal/memory/episodic.go's RetrieveSimilarTrajectories /
// calculateProblemSimilarity coarse-then-score shape and GetRecommendations'
// multi-stage filter-then-rank pipeline, generalized from a flat
// problem/domain similarity check to the distilled spec's explicit
// four-level pipeline with configurable weights.
package retriever

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"unified-thinking/internal/types"
)

// Config tunes the combined-score weights and the temporal shortlist size.
type Config struct {
	TemporalBiasWeight float64 // w_t, default 0.3
	MaxClusters        int     // default 10
}

// DefaultConfig matches the distilled spec's literal defaults.
func DefaultConfig() Config {
	return Config{TemporalBiasWeight: 0.3, MaxClusters: 10}
}

// Query narrows and ranks candidate episodes.
type Query struct {
	Text      string
	Domain    string // empty = no filter
	Kind      types.TaskKind
	HasKind   bool
	Embedding []float32 // optional query embedding; nil falls back to token-Jaccard
	Limit     int
}

// Scored pairs an episode id with its breakdown, for callers that want to
// display or test the components.
type Scored struct {
	EpisodeID  string
	Relevance  float64
	L1, L2, L3, L4 float64
}

// EpisodeView is the minimal read-only projection the retriever needs;
// internal/memory provides this from its Episode store without handing out
// a mutable pointer into façade-owned state.
type EpisodeView struct {
	ID              string
	Domain          string
	Kind            types.TaskKind
	Language        string
	Framework       string
	Complexity      types.ComplexityLevel
	Tags            []string
	TaskDescription string
	StepCount       int
	RewardTotal     float64
	DurationSeconds float64
	OutcomeCode     int
	Start           time.Time
}

// Retriever runs the four-level pipeline over a supplied candidate set. It
// holds no state of its own; internal/index and internal/memory own the
// corpus the retriever scores.
type Retriever struct {
	cfg Config
}

func New(cfg Config) *Retriever {
	return &Retriever{cfg: cfg}
}

// Retrieve scores candidates against q and returns up to q.Limit results,
// best first. now is the reference instant for temporal decay (L3).
// ctx is checked between levels and between candidates for caller-supplied
// deadlines, returning whatever best-effort partial result has been
// computed so far.
func (r *Retriever) Retrieve(ctx context.Context, candidates []EpisodeView, q Query, now time.Time) []Scored {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	// Level 1: domain filter (equality; neutral 0.5 if no domain given).
	l1 := make(map[string]float64, len(candidates))
	var afterL1 []EpisodeView
	for _, c := range candidates {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		score := 0.5
		if q.Domain != "" {
			if c.Domain == q.Domain {
				score = 1.0
			} else {
				score = 0.0
			}
		}
		if score > 0 {
			l1[c.ID] = score
			afterL1 = append(afterL1, c)
		}
	}
	if len(afterL1) == 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return partial(afterL1, l1, nil, nil, nil, limit)
	default:
	}

	// Level 2: kind filter.
	l2 := make(map[string]float64, len(afterL1))
	var afterL2 []EpisodeView
	for _, c := range afterL1 {
		score := 0.5
		if q.HasKind {
			if c.Kind == q.Kind {
				score = 1.0
			} else {
				score = 0.0
			}
		}
		if score > 0 {
			l2[c.ID] = score
			afterL2 = append(afterL2, c)
		}
	}
	if len(afterL2) == 0 {
		return partial(afterL1, l1, nil, nil, nil, limit)
	}

	select {
	case <-ctx.Done():
		return partial(afterL2, l1, l2, nil, nil, limit)
	default:
	}

	// Level 3: temporal cluster selection. Sort descending by start, take
	// the first ceil(N/maxClusters), floor >=10, capped at len(afterL2).
	sort.Slice(afterL2, func(i, j int) bool { return afterL2[i].Start.After(afterL2[j].Start) })
	maxClusters := r.cfg.MaxClusters
	if maxClusters <= 0 {
		maxClusters = 10
	}
	shortlistN := ceilDiv(len(afterL2), maxClusters)
	if shortlistN < 10 {
		shortlistN = 10
	}
	if shortlistN > len(afterL2) {
		shortlistN = len(afterL2)
	}
	shortlist := afterL2[:shortlistN]

	l3 := make(map[string]float64, len(shortlist))
	for _, c := range shortlist {
		ageDays := now.Sub(c.Start).Hours() / 24
		decay := 1.0 - math.Min(ageDays/30.0, 1.0)
		if decay < 0 {
			decay = 0
		}
		l3[c.ID] = decay
	}

	select {
	case <-ctx.Done():
		return partial(shortlist, l1, l2, l3, nil, limit)
	default:
	}

	// Level 4: similarity scoring.
	l4 := make(map[string]float64, len(shortlist))
	for _, c := range shortlist {
		select {
		case <-ctx.Done():
			return partial(shortlist, l1, l2, l3, l4, limit)
		default:
		}
		if q.Embedding != nil {
			l4[c.ID] = cosineSimilarity(q.Embedding, syntheticEmbedding(c))
		} else {
			l4[c.ID] = tokenJaccard(q.Text, c.TaskDescription)
		}
	}

	wt := r.cfg.TemporalBiasWeight
	if wt == 0 {
		wt = 0.3
	}
	ws := math.Max(0.1, 1-wt-0.6)

	results := make([]Scored, 0, len(shortlist))
	for _, c := range shortlist {
		sc := Scored{
			EpisodeID: c.ID,
			L1:        l1[c.ID],
			L2:        l2[c.ID],
			L3:        l3[c.ID],
			L4:        l4[c.ID],
		}
		sc.Relevance = 0.3*sc.L1 + 0.3*sc.L2 + wt*sc.L3 + ws*sc.L4
		results = append(results, sc)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		if a.L4 != b.L4 {
			return a.L4 > b.L4
		}
		if a.L3 != b.L3 {
			return a.L3 > b.L3
		}
		return a.EpisodeID > b.EpisodeID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// partial builds a best-effort result set from whichever levels finished
// before a deadline fired, using neutral 0.5 for any level not yet scored.
func partial(candidates []EpisodeView, l1, l2, l3, l4 map[string]float64, limit int) []Scored {
	out := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		sc := Scored{EpisodeID: c.ID, L1: lookup(l1, c.ID), L2: lookup(l2, c.ID), L3: lookup(l3, c.ID), L4: lookup(l4, c.ID)}
		sc.Relevance = 0.3*sc.L1 + 0.3*sc.L2 + 0.3*sc.L3 + 0.1*sc.L4
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func lookup(m map[string]float64, id string) float64 {
	if m == nil {
		return 0.5
	}
	if v, ok := m[id]; ok {
		return v
	}
	return 0.5
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// tokenJaccard computes Jaccard similarity over lowercased, whitespace-split
// token sets.
func tokenJaccard(a, b string) float64 {
	sa := tokenSet(a)
	sb := tokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if sb[t] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(s)) {
		out[f] = true
	}
	return out
}

// syntheticEmbedding assembles the 10-dim synthetic episode embedding:
// (domain hash, kind code, complexity, language-present, framework-present,
// normalized step count, reward total, duration, tag count, outcome code).
func syntheticEmbedding(c EpisodeView) []float32 {
	v := make([]float32, 10)
	v[0] = float32(stringHash(c.Domain)%1000) / 1000.0
	v[1] = float32(kindCode(c.Kind)) / 10.0
	v[2] = float32(complexityCode(c.Complexity)) / 4.0
	if c.Language != "" {
		v[3] = 1
	}
	if c.Framework != "" {
		v[4] = 1
	}
	v[5] = float32(math.Min(float64(c.StepCount)/50.0, 1.0))
	v[6] = float32((c.RewardTotal + 1) / 2) // normalize [-1,1] -> [0,1]
	v[7] = float32(math.Min(c.DurationSeconds/3600.0, 1.0))
	v[8] = float32(math.Min(float64(len(c.Tags))/10.0, 1.0))
	v[9] = float32(c.OutcomeCode) / 3.0
	return v
}

func kindCode(k types.TaskKind) int {
	switch k {
	case types.TaskCodeGen:
		return 1
	case types.TaskDebug:
		return 2
	case types.TaskRefactor:
		return 3
	case types.TaskTest:
		return 4
	case types.TaskDoc:
		return 5
	case types.TaskAnalysis:
		return 6
	default:
		return 0
	}
}

func complexityCode(c types.ComplexityLevel) int {
	switch c {
	case types.ComplexitySimple:
		return 1
	case types.ComplexityModerate:
		return 2
	case types.ComplexityComplex:
		return 3
	case types.ComplexityVeryComplex:
		return 4
	default:
		return 0
	}
}

func stringHash(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
