package errors

// RecoveryGenerator provides recovery suggestions for common error scenarios
type RecoveryGenerator struct {
	suggestions  map[string][]string
	relatedTools map[string][]string
	examples     map[string]map[string]any
}

// NewRecoveryGenerator creates a new RecoveryGenerator with default suggestions
func NewRecoveryGenerator() *RecoveryGenerator {
	g := &RecoveryGenerator{
		suggestions:  make(map[string][]string),
		relatedTools: make(map[string][]string),
		examples:     make(map[string]map[string]any),
	}
	g.registerDefaults()
	return g
}

// registerDefaults sets up default recovery suggestions for all error codes
func (g *RecoveryGenerator) registerDefaults() {
	// Resource errors (1xxx)
	g.register(ErrEpisodeNotFound,
		[]string{
			"Use 'query_memory' or 'list_episodes' to find episodes matching your criteria",
			"Verify the episode id was not produced by a different storage backend",
		},
		[]string{"query_memory", "get_episode", "bulk_episodes"},
		map[string]any{"tool": "query_memory", "params": map[string]any{"query": "your search terms", "domain": "your-domain", "limit": 10}},
	)

	g.register(ErrPatternNotFound,
		[]string{
			"Use 'analyze_patterns' or 'search_patterns' to list available patterns",
			"Patterns below the confidence floor are decayed away; lower min_relevance",
		},
		[]string{"analyze_patterns", "search_patterns", "recommend_patterns"},
		map[string]any{"tool": "analyze_patterns", "params": map[string]any{"task_type": "code-gen"}},
	)

	g.register(ErrRelationshipNotFound,
		[]string{
			"Use 'list_relationships' to see all relationships for an episode",
			"Check whether the relationship id belongs to a since-removed edge",
		},
		[]string{"list_relationships", "find_related"},
		nil,
	)

	g.register(ErrCacheKeyNotFound,
		[]string{
			"The entry may have expired; adaptive TTL shrinks cold keys over time",
			"Re-issue the originating query to repopulate the cache",
		},
		[]string{"get_metrics"},
		nil,
	)

	g.register(ErrClusterNotFound,
		[]string{
			"Temporal clusters are created lazily; query a broader time range",
		},
		[]string{"query_memory"},
		nil,
	)

	// Validation errors (2xxx)
	g.register(ErrInvalidParameter,
		[]string{
			"Check the parameter type and range against the tool's schema",
		},
		nil, nil,
	)

	g.register(ErrMissingRequired,
		[]string{
			"Add the required parameter to your request",
		},
		nil, nil,
	)

	g.register(ErrInvalidPriority,
		[]string{
			"Priority must be an integer between 1 and 10",
		},
		[]string{"add_relationships"},
		nil,
	)

	g.register(ErrPathUnsafe,
		[]string{
			"Configuration paths must not escape the configured data directory",
			"Remove any '..' path traversal segments",
		},
		nil, nil,
	)

	// Conflict / state errors (3xxx)
	g.register(ErrSelfRelationship,
		[]string{
			"from and to must be different episode ids",
		},
		nil, nil,
	)

	g.register(ErrDuplicateRelationship,
		[]string{
			"An edge with this (from, to, type) triple already exists",
			"Use 'list_relationships' to inspect the existing edge",
		},
		[]string{"list_relationships"},
		nil,
	)

	g.register(ErrCycleDetected,
		[]string{
			"The proposed edge would create a cycle among acyclic-typed relationships",
			"Use 'validate_cycles' to see the conflicting path",
			"Consider a non-acyclic type such as RelatedTo if a cycle is intentional",
		},
		[]string{"validate_cycles", "topological_sort"},
		nil,
	)

	g.register(ErrEpisodeCompleted,
		[]string{
			"Completed episodes are immutable; steps and fields cannot be changed",
			"Start a new episode to record further action",
		},
		[]string{"create_episode"},
		nil,
	)

	// Storage / external errors (4xxx)
	g.register(ErrStorageUnavailable,
		[]string{
			"The storage backend did not respond after bounded retries",
			"Check connectivity to the configured database",
			"The episode remains open; retry complete_episode once storage recovers",
		},
		[]string{"health_check"},
		nil,
	)

	g.register(ErrEmbeddingUnavailable,
		[]string{
			"Retrieval will continue with token-Jaccard scoring instead of embeddings",
			"Check the configured embedding provider's API key",
		},
		[]string{"test_embeddings", "configure_embeddings"},
		nil,
	)

	g.register(ErrAuditUnavailable,
		[]string{
			"Audit events are fire-and-forget; this does not affect request outcomes",
			"Check the configured audit sink connection",
		},
		[]string{"health_check"},
		nil,
	)

	// Rate limit errors (5xxx)
	g.register(ErrRateLimited,
		[]string{
			"Wait retry_after_seconds before retrying",
			"Batch writes to reduce request volume",
		},
		[]string{"get_metrics"},
		nil,
	)

	// Timeout errors (6xxx)
	g.register(ErrSandboxTimeout,
		[]string{
			"Reduce the code's wall-clock budget requirements or simplify the code",
			"Check whether the code performs blocking I/O disallowed by the sandbox policy",
		},
		[]string{"get_metrics"},
		nil,
	)

	// Analytics precondition errors (7xxx)
	g.register(ErrInsufficientData,
		[]string{
			"Changepoint detection requires at least min_observations points",
			"Accumulate more episodes in this pattern before re-running analytics",
		},
		nil, nil,
	)

	g.register(ErrInvalidData,
		[]string{
			"The series contains NaN or infinite values; check upstream reward computation",
		},
		nil, nil,
	)
}

// register adds recovery information for an error code
func (g *RecoveryGenerator) register(code string, suggestions []string, tools []string, example map[string]any) {
	g.suggestions[code] = suggestions
	g.relatedTools[code] = tools
	if example != nil {
		g.examples[code] = example
	}
}

// GetSuggestions returns recovery suggestions for an error code
func (g *RecoveryGenerator) GetSuggestions(code string) []string {
	if suggestions, ok := g.suggestions[code]; ok {
		return suggestions
	}
	return []string{"Check the error code and message for more details"}
}

// GetRelatedTools returns related tools for an error code
func (g *RecoveryGenerator) GetRelatedTools(code string) []string {
	if tools, ok := g.relatedTools[code]; ok {
		return tools
	}
	return nil
}

// GetExample returns an example fix for an error code
func (g *RecoveryGenerator) GetExample(code string) map[string]any {
	if example, ok := g.examples[code]; ok {
		return example
	}
	return nil
}

// Enhance adds recovery information to a StructuredError
func (g *RecoveryGenerator) Enhance(err *StructuredError) *StructuredError {
	if err == nil {
		return nil
	}

	if len(err.RecoverySuggestions) == 0 {
		err.RecoverySuggestions = g.GetSuggestions(err.Code)
	}

	if len(err.RelatedTools) == 0 {
		err.RelatedTools = g.GetRelatedTools(err.Code)
	}

	if err.ExampleFix == nil {
		err.ExampleFix = g.GetExample(err.Code)
	}

	return err
}

// DefaultGenerator is the default recovery generator instance
var DefaultGenerator = NewRecoveryGenerator()

// EnhanceError adds recovery information using the default generator
func EnhanceError(err *StructuredError) *StructuredError {
	return DefaultGenerator.Enhance(err)
}
