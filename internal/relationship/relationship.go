// Package relationship implements the typed episode relationship graph:
// validation, acyclic enforcement for selected relationship kinds, and
// traversal/topological queries.
//
// Grounded on internal/modes/graph.go's GraphController, which wraps
// github.com/dominikbraun/graph. Where the teacher kept one graph per
// reasoning-mode session, this manager keeps one combined acyclic subgraph
// shared across every acyclic-typed relationship, plus forward/reverse
// adjacency maps dominikbraun/graph doesn't give for free.
package relationship

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dominikbraun/graph"
	"github.com/google/uuid"

	ourerrors "unified-thinking/internal/errors"
	"unified-thinking/internal/types"
)

// Direction constrains a query to one side of an edge, or both.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// Filter narrows a find_related query.
type Filter struct {
	Type        *types.RelationshipType
	Direction   Direction
	Limit       int
	MinPriority *int
}

type tripleKey struct {
	from string
	to   string
	typ  types.RelationshipType
}

// CycleError reports the path that would close a cycle among acyclic-typed
// edges, from the proposed edge's "to" back around to "from".
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %v", e.Path)
}

// Manager owns the episode relationship graph. It is safe for concurrent use.
type Manager struct {
	mu sync.RWMutex

	forward map[string][]*types.EpisodeRelationship // from -> edges
	reverse map[string][]*types.EpisodeRelationship // to -> edges
	exists  map[tripleKey]string                    // (from,to,type) -> edge id
	byID    map[string]*types.EpisodeRelationship

	// acyclic is the single combined subgraph holding only edges whose
	// RelationshipType.RequiresAcyclic() is true.
	acyclic graph.Graph[string, string]
}

// NewManager creates an empty relationship manager.
func NewManager() *Manager {
	return &Manager{
		forward: make(map[string][]*types.EpisodeRelationship),
		reverse: make(map[string][]*types.EpisodeRelationship),
		exists:  make(map[tripleKey]string),
		byID:    make(map[string]*types.EpisodeRelationship),
		acyclic: graph.New(graph.StringHash, graph.Directed(), graph.Acyclic()),
	}
}

// Add validates and inserts a new directed typed edge, following the
// validation order: self-relationship, duplicate triple, cycle check for
// acyclic types, then priority range.
func (m *Manager) Add(from, to string, typ types.RelationshipType, meta types.RelationshipMetadata) (*types.EpisodeRelationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if from == to {
		return nil, ourerrors.NewStructuredError(ourerrors.ErrSelfRelationship,
			fmt.Sprintf("from and to must differ, both were %q", from))
	}

	key := tripleKey{from: from, to: to, typ: typ}
	if _, ok := m.exists[key]; ok {
		return nil, ourerrors.NewStructuredError(ourerrors.ErrDuplicateRelationship,
			fmt.Sprintf("relationship %s --%s--> %s already exists", from, typ, to))
	}

	if typ.RequiresAcyclic() {
		_ = m.acyclic.AddVertex(from)
		_ = m.acyclic.AddVertex(to)
		if path, cyclic := m.wouldCycle(from, to); cyclic {
			return nil, ourerrors.NewStructuredError(ourerrors.ErrCycleDetected,
				fmt.Sprintf("adding %s --%s--> %s would create a cycle", from, typ, to)).
				WithDetails(fmt.Sprintf("path: %v", path))
		}
	}

	if meta.Priority != nil {
		if *meta.Priority < 1 || *meta.Priority > 10 {
			return nil, ourerrors.NewStructuredError(ourerrors.ErrInvalidPriority,
				fmt.Sprintf("priority must be in [1,10], got %d", *meta.Priority))
		}
	}

	if typ.RequiresAcyclic() {
		if err := m.acyclic.AddEdge(from, to); err != nil {
			return nil, ourerrors.NewStructuredError(ourerrors.ErrCycleDetected, err.Error())
		}
	}

	edge := &types.EpisodeRelationship{
		ID:       uuid.NewString(),
		From:     from,
		To:       to,
		Type:     typ,
		Metadata: meta,
	}

	m.forward[from] = append(m.forward[from], edge)
	m.reverse[to] = append(m.reverse[to], edge)
	m.exists[key] = edge.ID
	m.byID[edge.ID] = edge

	return edge, nil
}

// wouldCycle runs a DFS from "to" over the acyclic subgraph; if "from" is
// reachable, adding from->to would close a cycle. Records the parent map on
// the way down and reconstructs the path on hit, per the DFS-with-parent-map
// idiom.
func (m *Manager) wouldCycle(from, to string) ([]string, bool) {
	parent := map[string]string{to: ""}
	visited := map[string]bool{}
	stack := []string{to}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true

		if n == from {
			return reconstructPath(parent, to, from), true
		}

		adj, err := m.acyclic.AdjacencyMap()
		if err != nil {
			return nil, false
		}
		for next := range adj[n] {
			if !visited[next] {
				parent[next] = n
				stack = append(stack, next)
			}
		}
	}
	return nil, false
}

func reconstructPath(parent map[string]string, start, end string) []string {
	var path []string
	for n := end; ; {
		path = append([]string{n}, path...)
		if n == start {
			break
		}
		p, ok := parent[n]
		if !ok {
			break
		}
		n = p
	}
	return path
}

// Remove deletes an edge by id from both adjacencies, the existence set, and
// (if acyclic-typed) the acyclic subgraph.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	edge, ok := m.byID[id]
	if !ok {
		return ourerrors.NewStructuredError(ourerrors.ErrRelationshipNotFound,
			fmt.Sprintf("relationship %q not found", id))
	}

	m.forward[edge.From] = removeEdge(m.forward[edge.From], id)
	m.reverse[edge.To] = removeEdge(m.reverse[edge.To], id)
	delete(m.exists, tripleKey{from: edge.From, to: edge.To, typ: edge.Type})
	delete(m.byID, id)

	if edge.Type.RequiresAcyclic() {
		_ = m.acyclic.RemoveEdge(edge.From, edge.To)
	}
	return nil
}

func removeEdge(edges []*types.EpisodeRelationship, id string) []*types.EpisodeRelationship {
	out := edges[:0]
	for _, e := range edges {
		if e.ID != id {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// GetOutgoing returns all edges starting at id.
func (m *Manager) GetOutgoing(id string) []*types.EpisodeRelationship {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneEdges(m.forward[id])
}

// GetIncoming returns all edges ending at id.
func (m *Manager) GetIncoming(id string) []*types.EpisodeRelationship {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneEdges(m.reverse[id])
}

// GetByType returns edges of the given type touching id in either direction.
func (m *Manager) GetByType(id string, typ types.RelationshipType) []*types.EpisodeRelationship {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.EpisodeRelationship
	for _, e := range m.forward[id] {
		if e.Type == typ {
			out = append(out, cloneEdge(e))
		}
	}
	for _, e := range m.reverse[id] {
		if e.Type == typ {
			out = append(out, cloneEdge(e))
		}
	}
	return out
}

// FindRelated returns edges touching id matching the filter.
func (m *Manager) FindRelated(id string, f Filter) []*types.EpisodeRelationship {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dir := f.Direction
	if dir == "" {
		dir = DirectionBoth
	}

	var candidates []*types.EpisodeRelationship
	if dir == DirectionOutgoing || dir == DirectionBoth {
		candidates = append(candidates, m.forward[id]...)
	}
	if dir == DirectionIncoming || dir == DirectionBoth {
		candidates = append(candidates, m.reverse[id]...)
	}

	var out []*types.EpisodeRelationship
	for _, e := range candidates {
		if f.Type != nil && e.Type != *f.Type {
			continue
		}
		if f.MinPriority != nil {
			if e.Metadata.Priority == nil || *e.Metadata.Priority < *f.MinPriority {
				continue
			}
		}
		out = append(out, cloneEdge(e))
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// ListAll returns every relationship currently held, for persistence snapshots.
func (m *Manager) ListAll() []*types.EpisodeRelationship {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.EpisodeRelationship, 0, len(m.byID))
	for _, e := range m.byID {
		out = append(out, cloneEdge(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DependencyGraph performs bounded BFS over all edges (both directions) from
// root up to depth, returning the reached node set and the edges among them.
func (m *Manager) DependencyGraph(root string, depth int) (nodes []string, edges []*types.EpisodeRelationship) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	visited := map[string]bool{root: true}
	edgeSeen := map[string]bool{}
	frontier := []string{root}

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, n := range frontier {
			for _, e := range m.forward[n] {
				if !edgeSeen[e.ID] {
					edgeSeen[e.ID] = true
					edges = append(edges, cloneEdge(e))
				}
				if !visited[e.To] {
					visited[e.To] = true
					next = append(next, e.To)
				}
			}
			for _, e := range m.reverse[n] {
				if !edgeSeen[e.ID] {
					edgeSeen[e.ID] = true
					edges = append(edges, cloneEdge(e))
				}
				if !visited[e.From] {
					visited[e.From] = true
					next = append(next, e.From)
				}
			}
		}
		frontier = next
	}

	nodes = make([]string, 0, len(visited))
	for n := range visited {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes, edges
}

// NodeLinkJSON renders a dependency graph result as a node-link map, ready
// for json.Marshal.
func NodeLinkJSON(nodes []string, edges []*types.EpisodeRelationship) map[string]interface{} {
	links := make([]map[string]interface{}, 0, len(edges))
	for _, e := range edges {
		links = append(links, map[string]interface{}{
			"source": e.From,
			"target": e.To,
			"type":   e.Type,
			"id":     e.ID,
		})
	}
	return map[string]interface{}{
		"nodes": nodes,
		"links": links,
	}
}

// DOT renders a dependency graph result as a Graphviz DOT string, grounded
// on dominikbraun/graph/draw's companion rendering for drawable views.
func DOT(nodes []string, edges []*types.EpisodeRelationship) string {
	var b []byte
	b = append(b, "digraph episodes {\n"...)
	for _, n := range nodes {
		b = append(b, fmt.Sprintf("  %q;\n", n)...)
	}
	for _, e := range edges {
		b = append(b, fmt.Sprintf("  %q -> %q [label=%q];\n", e.From, e.To, e.Type)...)
	}
	b = append(b, "}\n"...)
	return string(b)
}

// ValidateCycles reports whether the acyclic subgraph currently contains a
// cycle, and if so the offending path. The manager's Add already rejects
// cycle-introducing edges, so a healthy manager always reports false; this
// is exposed for diagnostics and for verifying imported/restored state.
func (m *Manager) ValidateCycles() (cyclic bool, path []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	adj, err := m.acyclic.AdjacencyMap()
	if err != nil {
		return false, nil
	}
	visiting := map[string]bool{}
	visited := map[string]bool{}
	var stack []string

	var dfs func(n string) bool
	dfs = func(n string) bool {
		visiting[n] = true
		stack = append(stack, n)
		for next := range adj[n] {
			if visiting[next] {
				stack = append(stack, next)
				return true
			}
			if !visited[next] && dfs(next) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		visiting[n] = false
		visited[n] = true
		return false
	}

	for n := range adj {
		if !visited[n] {
			if dfs(n) {
				return true, append([]string(nil), stack...)
			}
		}
	}
	return false, nil
}

// TopologicalOrder returns the Kahn's-algorithm topological order of the
// acyclic subgraph (edges restricted to acyclic relationship types). Returns
// ErrCycleDetected if the graph is not currently acyclic (should not happen
// given Add's validation, but restored/imported state is checked the same
// way as any other caller-supplied state).
func (m *Manager) TopologicalOrder(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, err := graph.TopologicalSort(m.acyclic)
	if err != nil {
		return nil, ourerrors.NewStructuredError(ourerrors.ErrCycleDetected, err.Error())
	}
	return order, nil
}

func cloneEdge(e *types.EpisodeRelationship) *types.EpisodeRelationship {
	cp := *e
	if e.Metadata.CustomFields != nil {
		cp.Metadata.CustomFields = make(map[string]string, len(e.Metadata.CustomFields))
		for k, v := range e.Metadata.CustomFields {
			cp.Metadata.CustomFields[k] = v
		}
	}
	return &cp
}

func cloneEdges(edges []*types.EpisodeRelationship) []*types.EpisodeRelationship {
	if edges == nil {
		return nil
	}
	out := make([]*types.EpisodeRelationship, len(edges))
	for i, e := range edges {
		out[i] = cloneEdge(e)
	}
	return out
}
