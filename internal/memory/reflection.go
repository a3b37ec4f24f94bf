package memory

import (
	"fmt"
	"strings"
	"time"

	"unified-thinking/internal/types"
)

// The three analyzers below are grounded on the original implementation's
// reflection analyzer behavior (original_source/memory-core/src/reflection,
// exercised by its tests.rs): phrase-bearing observations keyed off outcome
// kind, step latency, successful-tool-run length, and task context richness.
// Reworked here as pure functions over steps/outcome/context, matching
// spec.md §4.1's requirement that reflection generation be one of three
// independent analyzers (success, improvement, insight) run over
// steps+outcome.

const efficientStepLatencyMS = 50
const longDurationFactor = 2.0 // duration > baseline*factor counts as slow

func generateReflection(kind types.TaskKind, ctx types.TaskContext, steps []types.ExecutionStep, outcome *types.TaskOutcome, duration time.Duration, now time.Time) *types.Reflection {
	return &types.Reflection{
		Successes:    successAnalyzer(steps, outcome),
		Improvements: improvementAnalyzer(kind, steps, outcome, duration),
		Insights:     insightGenerator(ctx, steps, outcome),
		GeneratedAt:  now,
	}
}

func successAnalyzer(steps []types.ExecutionStep, outcome *types.TaskOutcome) []string {
	var out []string
	succeeded, total := countSuccess(steps)

	switch outcome.Kind {
	case types.OutcomeSuccess:
		msg := "Successfully completed the task"
		if len(outcome.Artifacts) > 0 {
			msg += fmt.Sprintf(" and produced %d artifact(s)", len(outcome.Artifacts))
		}
		out = append(out, msg)
	case types.OutcomePartialSuccess:
		out = append(out, fmt.Sprintf("Partial success: %d of %d target(s) completed", len(outcome.Completed), len(outcome.Completed)+len(outcome.Failed)))
	}

	if outcome.Kind != types.OutcomeFailure && total > 0 && float64(succeeded)/float64(total) >= 0.8 {
		out = append(out, fmt.Sprintf("High success rate across steps: success rate %.0f%%", 100*float64(succeeded)/float64(total)))
	}

	for i := range steps {
		if steps[i].Succeeded() && steps[i].LatencyMS > 0 && steps[i].LatencyMS <= efficientStepLatencyMS {
			out = append(out, fmt.Sprintf("Efficient execution: step %d (%s) completed in %dms", steps[i].Number, steps[i].Tool, steps[i].LatencyMS))
			break
		}
	}

	if run := longestSuccessfulToolRun(steps); len(run) >= 3 {
		out = append(out, fmt.Sprintf("Effective tool sequence: %s", strings.Join(run, " -> ")))
	}

	return out
}

func improvementAnalyzer(kind types.TaskKind, steps []types.ExecutionStep, outcome *types.TaskOutcome, duration time.Duration) []string {
	var out []string

	if outcome.Kind == types.OutcomeFailure {
		out = append(out, fmt.Sprintf("Task failed: %s", firstNonEmpty(outcome.Reason, "no reason recorded")))
	}

	failedSteps := 0
	for i := range steps {
		if steps[i].Result != nil && steps[i].Result.Kind != types.StepResultSuccess {
			failedSteps++
		}
	}
	if failedSteps > 0 {
		out = append(out, fmt.Sprintf("%d step(s) failed during execution", failedSteps))
	}
	if outcome.Kind == types.OutcomePartialSuccess && len(outcome.Failed) > 0 {
		out = append(out, fmt.Sprintf("Partial success left %d target(s) incomplete: %s", len(outcome.Failed), strings.Join(outcome.Failed, ", ")))
	}

	baseline := baselineFor(kind)
	if baseline > 0 && duration.Seconds() > baseline.Seconds()*longDurationFactor {
		out = append(out, fmt.Sprintf("Slow: duration %.0fs significantly exceeded the %.0fs baseline for %s tasks", duration.Seconds(), baseline.Seconds(), kind))
	}

	return out
}

func insightGenerator(ctx types.TaskContext, steps []types.ExecutionStep, outcome *types.TaskOutcome) []string {
	var out []string

	if run := longestSuccessfulToolRun(steps); len(run) >= 2 && outcome.Kind != types.OutcomeFailure {
		out = append(out, fmt.Sprintf("Tool strategy: %s worked well for this %s task; consider reusing this approach", strings.Join(run, " -> "), ctx.Domain))
	}

	if ctx.Language != "" && ctx.Domain != "" && len(ctx.Tags) > 0 {
		out = append(out, fmt.Sprintf("Domain knowledge: %s tasks tagged %s in %s show a repeatable pattern", ctx.Domain, strings.Join(ctx.Tags, ","), ctx.Language))
	}

	if len(steps) <= 2 && outcome.Kind == types.OutcomeSuccess {
		out = append(out, "Minimalist approach: the task completed in very few steps, suggesting an efficient strategy")
	}

	return out
}

func longestSuccessfulToolRun(steps []types.ExecutionStep) []string {
	var best, cur []string
	for i := range steps {
		if steps[i].Succeeded() {
			cur = append(cur, steps[i].Tool)
		} else {
			if len(cur) > len(best) {
				best = cur
			}
			cur = nil
		}
	}
	if len(cur) > len(best) {
		best = cur
	}
	return best
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
