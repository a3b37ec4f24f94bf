package memory

import (
	"strings"
	"testing"
	"time"

	"unified-thinking/internal/types"
)

func hasPrefixIn(list []string, substr string) bool {
	for _, s := range list {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func TestSuccessAnalyzer_FullSuccessWithArtifacts(t *testing.T) {
	steps := []types.ExecutionStep{
		{Number: 1, Tool: "a", Result: &types.StepResult{Kind: types.StepResultSuccess}, LatencyMS: 500},
		{Number: 2, Tool: "b", Result: &types.StepResult{Kind: types.StepResultSuccess}, LatencyMS: 500},
	}
	outcome := &types.TaskOutcome{Kind: types.OutcomeSuccess, Artifacts: []string{"x", "y"}}
	out := successAnalyzer(steps, outcome)
	if !hasPrefixIn(out, "Successfully completed") {
		t.Fatalf("expected a 'Successfully completed' message, got %v", out)
	}
	if !hasPrefixIn(out, "2 artifact") {
		t.Fatalf("expected the artifact count mentioned, got %v", out)
	}
	if !hasPrefixIn(out, "success rate") {
		t.Fatalf("expected a high success-rate message (100%%), got %v", out)
	}
}

func TestSuccessAnalyzer_EfficientStepDetected(t *testing.T) {
	steps := []types.ExecutionStep{
		{Number: 1, Tool: "a", Result: &types.StepResult{Kind: types.StepResultSuccess}, LatencyMS: 10},
	}
	out := successAnalyzer(steps, &types.TaskOutcome{Kind: types.OutcomeSuccess})
	if !hasPrefixIn(out, "Efficient execution") {
		t.Fatalf("expected an 'Efficient execution' message for a 10ms step, got %v", out)
	}
}

func TestSuccessAnalyzer_ThreeStepRunIsEffectiveSequence(t *testing.T) {
	steps := []types.ExecutionStep{
		{Number: 1, Tool: "a", Result: &types.StepResult{Kind: types.StepResultSuccess}, LatencyMS: 500},
		{Number: 2, Tool: "b", Result: &types.StepResult{Kind: types.StepResultSuccess}, LatencyMS: 500},
		{Number: 3, Tool: "c", Result: &types.StepResult{Kind: types.StepResultSuccess}, LatencyMS: 500},
	}
	out := successAnalyzer(steps, &types.TaskOutcome{Kind: types.OutcomeSuccess})
	if !hasPrefixIn(out, "Effective tool sequence") {
		t.Fatalf("expected an 'Effective tool sequence' message for a 3-step successful run, got %v", out)
	}
}

func TestImprovementAnalyzer_FailureAndFailedSteps(t *testing.T) {
	steps := []types.ExecutionStep{
		{Number: 1, Tool: "a", Result: &types.StepResult{Kind: types.StepResultError, Message: "boom"}},
	}
	outcome := &types.TaskOutcome{Kind: types.OutcomeFailure, Reason: "tool crashed"}
	out := improvementAnalyzer(types.TaskDebug, steps, outcome, time.Second)
	if !hasPrefixIn(out, "failed") {
		t.Fatalf("expected a message containing 'failed', got %v", out)
	}
	if !hasPrefixIn(out, "1 step(s) failed") {
		t.Fatalf("expected a failed-step-count message, got %v", out)
	}
}

func TestImprovementAnalyzer_SlowDurationDetected(t *testing.T) {
	outcome := &types.TaskOutcome{Kind: types.OutcomeSuccess}
	out := improvementAnalyzer(types.TaskDoc, nil, outcome, 10*time.Minute) // baseline 30s, factor 2 => >60s
	if !hasPrefixIn(out, "Slow") {
		t.Fatalf("expected a 'Slow' message for a duration far beyond baseline, got %v", out)
	}
}

func TestImprovementAnalyzer_FastSuccessHasNoImprovements(t *testing.T) {
	steps := []types.ExecutionStep{
		{Number: 1, Tool: "a", Result: &types.StepResult{Kind: types.StepResultSuccess}},
	}
	out := improvementAnalyzer(types.TaskCodeGen, steps, &types.TaskOutcome{Kind: types.OutcomeSuccess}, time.Second)
	if len(out) != 0 {
		t.Fatalf("expected no improvement messages for a fast full success, got %v", out)
	}
}

func TestInsightGenerator_ToolStrategyAndMinimalist(t *testing.T) {
	steps := []types.ExecutionStep{
		{Number: 1, Tool: "planner", Result: &types.StepResult{Kind: types.StepResultSuccess}},
		{Number: 2, Tool: "writer", Result: &types.StepResult{Kind: types.StepResultSuccess}},
	}
	ctx := types.TaskContext{Domain: "web-api"}
	out := insightGenerator(ctx, steps, &types.TaskOutcome{Kind: types.OutcomeSuccess})

	if !hasPrefixIn(out, "strategy") {
		t.Fatalf("expected an insight referencing 'strategy', got %v", out)
	}
	if !hasPrefixIn(out, "Minimalist") {
		t.Fatalf("expected a 'Minimalist' insight for a 2-step episode, got %v", out)
	}
}

func TestInsightGenerator_DomainKnowledgeRequiresFullContext(t *testing.T) {
	rich := types.TaskContext{Domain: "web-api", Language: "rust", Tags: []string{"auth"}}
	out := insightGenerator(rich, nil, &types.TaskOutcome{Kind: types.OutcomeSuccess})
	if !hasPrefixIn(out, "Domain knowledge") {
		t.Fatalf("expected a 'Domain knowledge' insight when language/domain/tags are all present, got %v", out)
	}

	sparse := types.TaskContext{Domain: "web-api"}
	out2 := insightGenerator(sparse, nil, &types.TaskOutcome{Kind: types.OutcomeSuccess})
	if hasPrefixIn(out2, "Domain knowledge") {
		t.Fatalf("did not expect a 'Domain knowledge' insight without language/tags, got %v", out2)
	}
}

func TestLongestSuccessfulToolRun_StopsAtFailure(t *testing.T) {
	steps := []types.ExecutionStep{
		{Number: 1, Tool: "a", Result: &types.StepResult{Kind: types.StepResultSuccess}},
		{Number: 2, Tool: "b", Result: &types.StepResult{Kind: types.StepResultError}},
		{Number: 3, Tool: "c", Result: &types.StepResult{Kind: types.StepResultSuccess}},
		{Number: 4, Tool: "d", Result: &types.StepResult{Kind: types.StepResultSuccess}},
	}
	run := longestSuccessfulToolRun(steps)
	if len(run) != 2 || run[0] != "c" || run[1] != "d" {
		t.Fatalf("expected the longest run [c d], got %v", run)
	}
}
