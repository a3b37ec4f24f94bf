package memory

import (
	"math"
	"testing"
	"time"

	"unified-thinking/internal/types"
)

func nearlyEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// TestComputeReward_Scenario1 hand-verifies spec.md §8 scenario 1's inputs
// against the closed-form reward formula: successComponent=1 (full
// success), efficiencyComponent=clamp(2-0/60,-1,1)=1 (near-zero duration),
// qualityComponent=clamp(2*1-1+ (1/5*0.2), -1, 1)=clamp(1.04,-1,1)=1, so
// total=(1+1+1)/3=1.0, which satisfies the required [0.6, 1.0] bound.
func TestComputeReward_Scenario1(t *testing.T) {
	steps := []types.ExecutionStep{
		{Number: 1, Tool: "planner", Result: &types.StepResult{Kind: types.StepResultSuccess}, LatencyMS: 100},
		{Number: 2, Tool: "writer", Result: &types.StepResult{Kind: types.StepResultSuccess}, LatencyMS: 200},
	}
	outcome := &types.TaskOutcome{Kind: types.OutcomeSuccess, Verdict: "done", Artifacts: []string{"auth.rs"}}

	r := computeReward(types.TaskCodeGen, steps, outcome, 300*time.Millisecond)

	if !nearlyEqual(r.SuccessComponent, 1.0) {
		t.Fatalf("successComponent = %v, want 1.0", r.SuccessComponent)
	}
	if !nearlyEqual(r.EfficiencyComponent, 1.0) {
		t.Fatalf("efficiencyComponent = %v, want 1.0", r.EfficiencyComponent)
	}
	if !nearlyEqual(r.QualityComponent, 1.0) {
		t.Fatalf("qualityComponent = %v, want 1.0", r.QualityComponent)
	}
	if r.Total < 0.6 || r.Total > 1.0 {
		t.Fatalf("total = %v, want in [0.6, 1.0]", r.Total)
	}
}

// TestComputeReward_Failure verifies a full failure with no steps succeeding
// yields a negative total: successComponent=-1, quality=clamp(2*0-1+0,-1,1)=-1,
// and efficiency near 1 for a fast failure, giving total=(-1-1+1)/3=-1/3.
func TestComputeReward_Failure(t *testing.T) {
	steps := []types.ExecutionStep{
		{Number: 1, Tool: "x", Result: &types.StepResult{Kind: types.StepResultError}},
	}
	outcome := &types.TaskOutcome{Kind: types.OutcomeFailure, Reason: "crashed"}

	r := computeReward(types.TaskDebug, steps, outcome, 1*time.Second)

	if !nearlyEqual(r.SuccessComponent, -1.0) {
		t.Fatalf("successComponent = %v, want -1.0", r.SuccessComponent)
	}
	if !nearlyEqual(r.QualityComponent, -1.0) {
		t.Fatalf("qualityComponent = %v, want -1.0", r.QualityComponent)
	}
	if r.Total >= 0 {
		t.Fatalf("total = %v, want negative for an across-the-board failure", r.Total)
	}
}

// TestComputeReward_PartialSuccessRatio verifies the partial-success
// successComponent formula (completed-failed)/(completed+failed).
func TestComputeReward_PartialSuccessRatio(t *testing.T) {
	outcome := &types.TaskOutcome{
		Kind:      types.OutcomePartialSuccess,
		Completed: []string{"a", "b", "c"},
		Failed:    []string{"d"},
	}
	r := computeReward(types.TaskTest, nil, outcome, 0)
	want := float64(3-1) / float64(3+1) // 0.5
	if !nearlyEqual(r.SuccessComponent, want) {
		t.Fatalf("successComponent = %v, want %v", r.SuccessComponent, want)
	}
}

// TestComputeReward_SlowEpisodeClampsEfficiencyToMinusOne verifies a
// duration far beyond baseline clamps efficiencyComponent at -1, not some
// more negative unclamped value.
func TestComputeReward_SlowEpisodeClampsEfficiencyToMinusOne(t *testing.T) {
	outcome := &types.TaskOutcome{Kind: types.OutcomeSuccess}
	r := computeReward(types.TaskDoc, nil, outcome, 10*time.Minute) // baseline for doc = 30s
	if !nearlyEqual(r.EfficiencyComponent, -1.0) {
		t.Fatalf("efficiencyComponent = %v, want -1.0 (clamped)", r.EfficiencyComponent)
	}
}
