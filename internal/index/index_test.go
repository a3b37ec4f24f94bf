package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unified-thinking/internal/types"
)

func TestBucket_WeeklyMondayAligned(t *testing.T) {
	tue := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	thu := time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

	s1, e1 := Bucket(tue, types.GranularityWeekly)
	s2, e2 := Bucket(thu, types.GranularityWeekly)

	assert.Equal(t, s1, s2)
	assert.Equal(t, e1, e2)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), s1)
	assert.Equal(t, time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC), e1)
}

func TestBucket_Idempotent(t *testing.T) {
	for _, g := range []types.Granularity{types.GranularityWeekly, types.GranularityMonthly, types.GranularityQuarterly} {
		now := time.Date(2024, 7, 15, 3, 0, 0, 0, time.UTC)
		s, _ := Bucket(now, g)
		s2, e2 := Bucket(s, g)
		assert.Equal(t, s, s2, "granularity %s", g)
		_ = e2
	}
}

func TestInsertAndQuery_ScenarioTemporalBucketing(t *testing.T) {
	ix := New(DefaultConfig())
	now := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)

	tue := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	thu := time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)
	nextWeek := time.Date(2024, 3, 18, 10, 0, 0, 0, time.UTC)

	ix.InsertAt("e1", "web-api", types.TaskCodeGen, tue, now)
	ix.InsertAt("e2", "web-api", types.TaskCodeGen, thu, now)
	ix.InsertAt("e3", "web-api", types.TaskCodeGen, nextWeek, now)

	clusters := ix.Clusters("web-api", types.TaskCodeGen)
	require.Len(t, clusters, 2)
	// Sorted descending by start: the later (nextWeek) cluster comes first.
	assert.Contains(t, clusters[0].EpisodeIDs, "e3")
	assert.ElementsMatch(t, []string{"e1", "e2"}, clusters[1].EpisodeIDs)
}

func TestRemove_PrunesEmptyParents(t *testing.T) {
	ix := New(DefaultConfig())
	now := time.Now()
	start := now.Add(-time.Hour)

	ix.InsertAt("e1", "d", types.TaskDebug, start, now)
	assert.Equal(t, 1, ix.Len())

	ix.Remove("e1")
	assert.Equal(t, 0, ix.Len())
	assert.Empty(t, ix.Domains())
}

func TestIndexRoundTrip_RestoresStructure(t *testing.T) {
	ix := New(DefaultConfig())
	now := time.Now()
	start := now.Add(-time.Hour)

	ix.InsertAt("e1", "d", types.TaskDebug, start, now)
	ix.InsertAt("e2", "d", types.TaskDebug, start, now)

	ix.Remove("e1")
	clusters := ix.Clusters("d", types.TaskDebug)
	require.Len(t, clusters, 1)
	assert.Equal(t, []string{"e2"}, clusters[0].EpisodeIDs)
}

func TestQuery_HierarchicalFilters(t *testing.T) {
	ix := New(DefaultConfig())
	now := time.Now()
	start := now.Add(-time.Hour)

	ix.InsertAt("e1", "web-api", types.TaskCodeGen, start, now)
	ix.InsertAt("e2", "data-science", types.TaskAnalysis, start, now)

	dom := "web-api"
	ids := ix.Query(&dom, nil, nil)
	assert.Equal(t, []string{"e1"}, ids)

	ids = ix.Query(nil, nil, nil)
	assert.ElementsMatch(t, []string{"e1", "e2"}, ids)
}

func TestQuery_TemporalRangeOverlap(t *testing.T) {
	ix := New(DefaultConfig())
	now := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	start := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)

	ix.InsertAt("e1", "d", types.TaskDebug, start, now)

	tr := TimeRange{
		Start: start.Add(-time.Minute),
		End:   start.Add(time.Minute),
	}
	ids := ix.Query(nil, nil, &tr)
	assert.Equal(t, []string{"e1"}, ids)

	tr2 := TimeRange{Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)}
	ids2 := ix.Query(nil, nil, &tr2)
	assert.Empty(t, ids2)
}

func TestGranularitySelection(t *testing.T) {
	ix := New(DefaultConfig())
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	recent := now.Add(-10 * 24 * time.Hour)
	mid := now.Add(-90 * 24 * time.Hour)
	old := now.Add(-400 * 24 * time.Hour)

	assert.Equal(t, types.GranularityWeekly, ix.granularityFor(recent, now))
	assert.Equal(t, types.GranularityMonthly, ix.granularityFor(mid, now))
	assert.Equal(t, types.GranularityQuarterly, ix.granularityFor(old, now))
}
