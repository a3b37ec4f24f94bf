// Package types defines the core data structures for the episodic memory
// engine: episodes, their context and steps, outcomes, rewards, reflections,
// relationships, patterns, temporal clusters, and cache entries.
//
// Types in this package are plain data: no mutex, no method that mutates
// shared state. Every cross-structure reference is by id; callers that need
// to traverse relationships or patterns go through the owning component
// (internal/memory, internal/relationship, internal/pattern).
package types

import "time"

// Metadata is a free-form JSON object used at component boundaries that
// accept or report arbitrary key-value annotations (step parameters, cache
// diagnostics).
type Metadata = map[string]interface{}

// TaskKind categorizes the kind of work an episode represents.
type TaskKind string

const (
	TaskCodeGen   TaskKind = "code-gen"
	TaskDebug     TaskKind = "debug"
	TaskRefactor  TaskKind = "refactor"
	TaskTest      TaskKind = "test"
	TaskDoc       TaskKind = "doc"
	TaskAnalysis  TaskKind = "analysis"
	TaskOther     TaskKind = "other"
)

// ComplexityLevel is the declared difficulty of a task's context.
type ComplexityLevel string

const (
	ComplexitySimple     ComplexityLevel = "simple"
	ComplexityModerate   ComplexityLevel = "moderate"
	ComplexityComplex    ComplexityLevel = "complex"
	ComplexityVeryComplex ComplexityLevel = "very-complex"
)

// RelationshipType enumerates the directed edge kinds between episodes.
type RelationshipType string

const (
	RelParentChild RelationshipType = "ParentChild"
	RelDependsOn   RelationshipType = "DependsOn"
	RelFollows     RelationshipType = "Follows"
	RelRelatedTo   RelationshipType = "RelatedTo"
	RelBlocks      RelationshipType = "Blocks"
	RelDuplicates  RelationshipType = "Duplicates"
	RelReferences  RelationshipType = "References"
)

// RequiresAcyclic reports whether the subgraph restricted to this
// relationship type must remain a DAG.
func (t RelationshipType) RequiresAcyclic() bool {
	switch t {
	case RelParentChild, RelDependsOn, RelFollows, RelBlocks:
		return true
	default:
		return false
	}
}

// Granularity is the width class of a temporal cluster.
type Granularity string

const (
	GranularityWeekly    Granularity = "Weekly"
	GranularityMonthly   Granularity = "Monthly"
	GranularityQuarterly Granularity = "Quarterly"
)

// TaskContext is the where/when/how of a task.
type TaskContext struct {
	Domain     string          `json:"domain"`
	Language   string          `json:"language,omitempty"`
	Framework  string          `json:"framework,omitempty"`
	Complexity ComplexityLevel `json:"complexity"`
	Tags       []string        `json:"tags,omitempty"`
}

// StepResultKind discriminates the three shapes an execution step result may take.
type StepResultKind string

const (
	StepResultSuccess StepResultKind = "success"
	StepResultError   StepResultKind = "error"
	StepResultTimeout StepResultKind = "timeout"
)

// StepResult is the tagged-union outcome of one execution step.
type StepResult struct {
	Kind    StepResultKind `json:"kind"`
	Output  string         `json:"output,omitempty"`
	Message string         `json:"message,omitempty"`
}

// ExecutionStep is one agent action inside an episode.
type ExecutionStep struct {
	Number      int                    `json:"number"`
	Tool        string                 `json:"tool"`
	Action      string                 `json:"action"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Result      *StepResult            `json:"result,omitempty"`
	LatencyMS   int64                  `json:"latency_ms"`
	TokenCount  *int                   `json:"token_count,omitempty"`
	Metadata    map[string]string      `json:"metadata,omitempty"`
}

// Succeeded reports whether the step's result is a success.
func (s *ExecutionStep) Succeeded() bool {
	return s.Result != nil && s.Result.Kind == StepResultSuccess
}

// OutcomeKind discriminates the TaskOutcome tagged union.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomePartialSuccess OutcomeKind = "partial_success"
	OutcomeFailure        OutcomeKind = "failure"
)

// TaskOutcome is the tagged union: Success{verdict,artifacts}, PartialSuccess,
// or Failure{reason,error_details}.
type TaskOutcome struct {
	Kind      OutcomeKind `json:"kind"`
	Verdict   string      `json:"verdict,omitempty"`
	Artifacts []string    `json:"artifacts,omitempty"`
	Completed []string    `json:"completed,omitempty"`
	Failed    []string    `json:"failed,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	ErrorDetails string   `json:"error_details,omitempty"`
}

// Reward is the four-component scalar reward vector, each in [-1, 1].
type Reward struct {
	Total              float64 `json:"total"`
	SuccessComponent   float64 `json:"success_component"`
	EfficiencyComponent float64 `json:"efficiency_component"`
	QualityComponent   float64 `json:"quality_component"`
}

// Reflection is the post-hoc analysis of a completed episode.
type Reflection struct {
	Successes    []string  `json:"successes"`
	Improvements []string  `json:"improvements"`
	Insights     []string  `json:"insights"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// SalientFeatures is the curated extraction of the most important information
// in an episode, produced by internal/extractor.
type SalientFeatures struct {
	CriticalDecisions     []string          `json:"critical_decisions"`
	ToolCombinations      [][]string        `json:"tool_combinations"`
	ErrorRecoveryPatterns map[string]string `json:"error_recovery_patterns"`
	KeyInsights           []string          `json:"key_insights"`
}

// Episode is the unit of task execution.
type Episode struct {
	ID               string           `json:"id"`
	TaskDescription  string           `json:"task_description"`
	Context          TaskContext      `json:"context"`
	Kind             TaskKind         `json:"task_type"`
	Steps            []ExecutionStep  `json:"steps"`
	Outcome          *TaskOutcome     `json:"outcome,omitempty"`
	Reward           *Reward          `json:"reward,omitempty"`
	Reflection       *Reflection      `json:"reflection,omitempty"`
	SalientFeatures  *SalientFeatures `json:"salient_features,omitempty"`
	PatternIDs       []string         `json:"patterns,omitempty"`
	HeuristicIDs     []string         `json:"heuristics,omitempty"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          *time.Time       `json:"end_time,omitempty"`
}

// IsComplete reports whether the episode has been finalized.
func (e *Episode) IsComplete() bool {
	return e.Outcome != nil && e.EndTime != nil
}

// RelationshipMetadata is the free-form annotation carried by an edge.
type RelationshipMetadata struct {
	Reason       string            `json:"reason,omitempty"`
	CreatedBy    string            `json:"created_by,omitempty"`
	Priority     *int              `json:"priority,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// EpisodeRelationship is a directed typed edge between two episodes.
type EpisodeRelationship struct {
	ID        string               `json:"id"`
	From      string               `json:"from"`
	To        string               `json:"to"`
	Type      RelationshipType     `json:"type"`
	Metadata  RelationshipMetadata `json:"metadata"`
	CreatedAt time.Time            `json:"created_at"`
}

// PatternKind discriminates the four-variant Pattern tagged union.
type PatternKind string

const (
	PatternToolSequence   PatternKind = "ToolSequence"
	PatternDecisionPoint  PatternKind = "DecisionPoint"
	PatternErrorRecovery  PatternKind = "ErrorRecovery"
	PatternContextPattern PatternKind = "ContextPattern"
)

// Pattern is the tagged union of the four pattern families. Fields outside a
// variant's family are left zero.
type Pattern struct {
	ID         string      `json:"id"`
	Kind       PatternKind `json:"kind"`
	Confidence float64     `json:"confidence"`
	SampleSize int         `json:"sample_size"`

	// ToolSequence
	Tools           []string `json:"tools,omitempty"`
	Context         string   `json:"context,omitempty"`
	SuccessRate     float64  `json:"success_rate,omitempty"`
	AvgLatencyMS    float64  `json:"avg_latency_ms,omitempty"`
	OccurrenceCount int      `json:"occurrence_count,omitempty"`

	// DecisionPoint
	Condition   string             `json:"condition,omitempty"`
	Action      string             `json:"action,omitempty"`
	OutcomeStats map[string]int    `json:"outcome_stats,omitempty"`

	// ErrorRecovery
	ErrorType     string   `json:"error_type,omitempty"`
	RecoverySteps []string `json:"recovery_steps,omitempty"`

	// ContextPattern
	ContextFeatures    []string `json:"context_features,omitempty"`
	RecommendedApproach string  `json:"recommended_approach,omitempty"`
	Evidence           []string `json:"evidence,omitempty"`
}

// TemporalCluster is a time-bounded bucket of episode ids with canonical
// start/end bounds at a fixed granularity.
type TemporalCluster struct {
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Granularity Granularity `json:"granularity"`
	EpisodeIDs  []string    `json:"episode_ids"`
}

// CacheEntry is one adaptive-TTL cache slot. Value is stored as interface{}
// so pkg/cache.AdaptiveCache can be instantiated generically over it.
type CacheEntry struct {
	Value         interface{}   `json:"value"`
	CreatedAt     time.Time     `json:"created_at"`
	LastAccessed  time.Time     `json:"last_accessed"`
	AccessCount   int64         `json:"access_count"`
	CurrentTTL    time.Duration `json:"current_ttl"`
}
