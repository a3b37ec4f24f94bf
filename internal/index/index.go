// Package index implements the three-level spatiotemporal hierarchical
// index (domain -> task-kind -> temporal clusters) of SPEC_FULL.md §4.2.
//
// Structurally grounded on internal/memory/episodic.go's nested
// map-of-slices secondary indexes (domainIndex, tagIndex: map[string][]string),
// generalized from two flat indexes to a three-level hierarchy with
// adaptive-granularity temporal clusters in place of a flat slice.
package index

import (
	"sort"
	"sync"
	"time"

	"unified-thinking/internal/types"
)

// Config tunes the age thresholds that select a new cluster's granularity.
type Config struct {
	WeeklyMaxAge  time.Duration // age < this => Weekly
	MonthlyMaxAge time.Duration // age < this => Monthly, else Quarterly
}

// DefaultConfig matches the distilled spec's literal thresholds (<30d,
// <180d).
func DefaultConfig() Config {
	return Config{
		WeeklyMaxAge:  30 * 24 * time.Hour,
		MonthlyMaxAge: 180 * 24 * time.Hour,
	}
}

// kindIndex maps task kind to its clusters, sorted by Start descending.
type kindIndex map[types.TaskKind][]*types.TemporalCluster

// Index is the three-level hierarchical spatiotemporal index. Safe for
// concurrent use.
type Index struct {
	mu     sync.RWMutex
	cfg    Config
	byDom  map[string]kindIndex
	// episodeLoc tracks, for O(1) Remove, which (domain, kind, cluster) an
	// episode id currently lives in.
	episodeLoc map[string]location
}

type location struct {
	domain  string
	kind    types.TaskKind
	cluster *types.TemporalCluster
}

// New creates an empty index.
func New(cfg Config) *Index {
	return &Index{
		cfg:        cfg,
		byDom:      make(map[string]kindIndex),
		episodeLoc: make(map[string]location),
	}
}

// granularityFor selects Weekly/Monthly/Quarterly from age at insertion
// (reference "now" is the second argument so tests are deterministic).
func (ix *Index) granularityFor(start, now time.Time) types.Granularity {
	age := now.Sub(start)
	switch {
	case age < ix.cfg.WeeklyMaxAge:
		return types.GranularityWeekly
	case age < ix.cfg.MonthlyMaxAge:
		return types.GranularityMonthly
	default:
		return types.GranularityQuarterly
	}
}

// Bucket returns the canonical [start,end) bounds containing t at the given
// granularity: weekly buckets are Monday-aligned, monthly first-of-month,
// quarterly first-of-quarter. Both bounds are UTC.
func Bucket(t time.Time, g types.Granularity) (time.Time, time.Time) {
	t = t.UTC()
	switch g {
	case types.GranularityWeekly:
		// ISO week starts Monday; time.Weekday has Sunday=0.
		offset := (int(t.Weekday()) + 6) % 7
		dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		start := dayStart.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case types.GranularityMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default: // Quarterly
		q := (int(t.Month()) - 1) / 3
		startMonth := time.Month(q*3 + 1)
		start := time.Date(t.Year(), startMonth, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, 0)
	}
}

// Insert adds episode id e under (domain, kind, time-bucket(start)). The
// cluster is created lazily if no existing cluster at the right
// granularity contains start.
func (ix *Index) Insert(id, domain string, kind types.TaskKind, start time.Time) {
	ix.InsertAt(id, domain, kind, start, time.Now())
}

// InsertAt is Insert with an explicit "now" reference for deterministic
// granularity selection in tests.
func (ix *Index) InsertAt(id, domain string, kind types.TaskKind, start, now time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	g := ix.granularityFor(start, now)
	bStart, bEnd := Bucket(start, g)

	ki, ok := ix.byDom[domain]
	if !ok {
		ki = make(kindIndex)
		ix.byDom[domain] = ki
	}
	clusters := ki[kind]

	var target *types.TemporalCluster
	for _, c := range clusters {
		if c.Granularity == g && !start.Before(c.Start) && start.Before(c.End) {
			target = c
			break
		}
	}
	if target == nil {
		target = &types.TemporalCluster{Start: bStart, End: bEnd, Granularity: g}
		clusters = append(clusters, target)
		sort.Slice(clusters, func(i, j int) bool { return clusters[i].Start.After(clusters[j].Start) })
		ki[kind] = clusters
	}

	target.EpisodeIDs = append(target.EpisodeIDs, id)
	ix.episodeLoc[id] = location{domain: domain, kind: kind, cluster: target}
}

// Remove deletes an episode id from wherever it lives, pruning empty
// clusters, then empty kinds, then empty domains.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	loc, ok := ix.episodeLoc[id]
	if !ok {
		return
	}
	delete(ix.episodeLoc, id)

	c := loc.cluster
	for i, eid := range c.EpisodeIDs {
		if eid == id {
			c.EpisodeIDs = append(c.EpisodeIDs[:i], c.EpisodeIDs[i+1:]...)
			break
		}
	}
	if len(c.EpisodeIDs) > 0 {
		return
	}

	ki := ix.byDom[loc.domain]
	clusters := ki[loc.kind]
	for i, cl := range clusters {
		if cl == c {
			clusters = append(clusters[:i], clusters[i+1:]...)
			break
		}
	}
	if len(clusters) == 0 {
		delete(ki, loc.kind)
	} else {
		ki[loc.kind] = clusters
	}
	if len(ki) == 0 {
		delete(ix.byDom, loc.domain)
	}
}

// TimeRange is an inclusive-of-overlap filter window.
type TimeRange struct {
	Start, End time.Time
}

// overlaps reports whether cluster c overlaps window w (any overlap
// qualifies, not full containment).
func overlaps(c *types.TemporalCluster, w TimeRange) bool {
	return c.Start.Before(w.End) && w.Start.Before(c.End)
}

// Query returns candidate episode ids filtered hierarchically, coarsest
// first: domain, then kind, then temporal-cluster overlap. A nil domain or
// kind skips that level (whole index, or whole domain, respectively). A nil
// time range skips temporal filtering.
func (ix *Index) Query(domain *string, kind *types.TaskKind, tr *TimeRange) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var domains []string
	if domain != nil {
		domains = []string{*domain}
	} else {
		for d := range ix.byDom {
			domains = append(domains, d)
		}
		sort.Strings(domains)
	}

	var out []string
	for _, d := range domains {
		ki, ok := ix.byDom[d]
		if !ok {
			continue
		}
		var kinds []types.TaskKind
		if kind != nil {
			kinds = []types.TaskKind{*kind}
		} else {
			for k := range ki {
				kinds = append(kinds, k)
			}
		}
		for _, k := range kinds {
			clusters := ki[k]
			for _, c := range clusters {
				if tr != nil && !overlaps(c, *tr) {
					continue
				}
				out = append(out, c.EpisodeIDs...)
			}
		}
	}
	return out
}

// Domains returns every domain currently present, sorted.
func (ix *Index) Domains() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []string
	for d := range ix.byDom {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Clusters returns the clusters for a (domain, kind) pair, sorted by Start
// descending, or nil if none exist.
func (ix *Index) Clusters(domain string, kind types.TaskKind) []*types.TemporalCluster {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ki, ok := ix.byDom[domain]
	if !ok {
		return nil
	}
	return append([]*types.TemporalCluster(nil), ki[kind]...)
}

// Len returns the total number of indexed episode ids.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.episodeLoc)
}
