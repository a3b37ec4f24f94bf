package relationship

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unified-thinking/internal/errors"
	"unified-thinking/internal/types"
)

func TestAdd_SelfRelationshipRejected(t *testing.T) {
	m := NewManager()
	_, err := m.Add("E1", "E1", types.RelDependsOn, types.RelationshipMetadata{})
	require.Error(t, err)
	se, ok := errors.AsStructuredError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrSelfRelationship, se.Code)
}

func TestAdd_DuplicateTripleRejected(t *testing.T) {
	m := NewManager()
	_, err := m.Add("E1", "E2", types.RelRelatedTo, types.RelationshipMetadata{})
	require.NoError(t, err)

	_, err = m.Add("E1", "E2", types.RelRelatedTo, types.RelationshipMetadata{})
	require.Error(t, err)
	se, ok := errors.AsStructuredError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrDuplicateRelationship, se.Code)
}

func TestAdd_InvalidPriorityRejected(t *testing.T) {
	m := NewManager()
	bad := 11
	_, err := m.Add("E1", "E2", types.RelRelatedTo, types.RelationshipMetadata{Priority: &bad})
	require.Error(t, err)
	se, ok := errors.AsStructuredError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrInvalidPriority, se.Code)
}

// TestAdd_CycleRejectedButRelatedToAccepted mirrors the distilled spec's
// scenario: a DependsOn edge closing a triangle is rejected as a cycle,
// while a RelatedTo edge completing the same triangle is accepted because
// RelatedTo never enters the acyclic subgraph.
func TestAdd_CycleRejectedButRelatedToAccepted(t *testing.T) {
	m := NewManager()

	_, err := m.Add("A", "B", types.RelDependsOn, types.RelationshipMetadata{})
	require.NoError(t, err)
	_, err = m.Add("B", "C", types.RelDependsOn, types.RelationshipMetadata{})
	require.NoError(t, err)

	_, err = m.Add("C", "A", types.RelDependsOn, types.RelationshipMetadata{})
	require.Error(t, err)
	se, ok := errors.AsStructuredError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCycleDetected, se.Code)

	_, err = m.Add("C", "A", types.RelRelatedTo, types.RelationshipMetadata{})
	assert.NoError(t, err)
}

// TestAdd_CycleTakesPrecedenceOverInvalidPriority pins the validation order:
// self-relationship, duplicate triple, cycle check, then priority range. An
// edge that is both cycle-introducing and carries an out-of-range priority
// must be rejected as a cycle, not as an invalid priority.
func TestAdd_CycleTakesPrecedenceOverInvalidPriority(t *testing.T) {
	m := NewManager()

	_, err := m.Add("A", "B", types.RelDependsOn, types.RelationshipMetadata{})
	require.NoError(t, err)
	_, err = m.Add("B", "C", types.RelDependsOn, types.RelationshipMetadata{})
	require.NoError(t, err)

	bad := 99
	_, err = m.Add("C", "A", types.RelDependsOn, types.RelationshipMetadata{Priority: &bad})
	require.Error(t, err)
	se, ok := errors.AsStructuredError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCycleDetected, se.Code)
}

func TestRemove_RoundTrip(t *testing.T) {
	m := NewManager()
	edge, err := m.Add("A", "B", types.RelFollows, types.RelationshipMetadata{})
	require.NoError(t, err)

	require.NoError(t, m.Remove(edge.ID))
	assert.Empty(t, m.GetOutgoing("A"))
	assert.Empty(t, m.GetIncoming("B"))

	// Re-adding the identical triple must succeed: the existence set entry
	// was actually cleared, not just the edge struct.
	_, err = m.Add("A", "B", types.RelFollows, types.RelationshipMetadata{})
	assert.NoError(t, err)
}

func TestRemove_NotFound(t *testing.T) {
	m := NewManager()
	err := m.Remove("missing")
	require.Error(t, err)
	se, ok := errors.AsStructuredError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrRelationshipNotFound, se.Code)
}

func TestFindRelated_FilterByTypeAndDirectionAndPriority(t *testing.T) {
	m := NewManager()
	hi := 8
	lo := 2
	_, _ = m.Add("A", "B", types.RelBlocks, types.RelationshipMetadata{Priority: &hi})
	_, _ = m.Add("C", "A", types.RelBlocks, types.RelationshipMetadata{Priority: &lo})
	_, _ = m.Add("A", "D", types.RelRelatedTo, types.RelationshipMetadata{})

	typ := types.RelBlocks
	min := 5
	out := m.FindRelated("A", Filter{Type: &typ, Direction: DirectionOutgoing, MinPriority: &min})
	require.Len(t, out, 1)
	assert.Equal(t, "B", out[0].To)
}

func TestTopologicalOrder(t *testing.T) {
	m := NewManager()
	_, _ = m.Add("A", "B", types.RelDependsOn, types.RelationshipMetadata{})
	_, _ = m.Add("B", "C", types.RelDependsOn, types.RelationshipMetadata{})

	order, err := m.TopologicalOrder(context.Background())
	require.NoError(t, err)
	assert.Len(t, order, 3)

	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["A"], pos["B"])
	assert.Less(t, pos["B"], pos["C"])
}

func TestDependencyGraph_BoundedBFS(t *testing.T) {
	m := NewManager()
	_, _ = m.Add("A", "B", types.RelDependsOn, types.RelationshipMetadata{})
	_, _ = m.Add("B", "C", types.RelDependsOn, types.RelationshipMetadata{})
	_, _ = m.Add("C", "D", types.RelDependsOn, types.RelationshipMetadata{})

	nodes, edges := m.DependencyGraph("A", 2)
	assert.Contains(t, nodes, "A")
	assert.Contains(t, nodes, "B")
	assert.Contains(t, nodes, "C")
	assert.NotContains(t, nodes, "D")
	assert.Len(t, edges, 2)

	rendered := DOT(nodes, edges)
	assert.Contains(t, rendered, "digraph episodes")

	nl := NodeLinkJSON(nodes, edges)
	assert.Contains(t, nl, "nodes")
	assert.Contains(t, nl, "links")
}

func TestValidateCycles_HealthyManagerReportsNoCycle(t *testing.T) {
	m := NewManager()
	_, _ = m.Add("A", "B", types.RelParentChild, types.RelationshipMetadata{})
	cyclic, _ := m.ValidateCycles()
	assert.False(t, cyclic)
}
