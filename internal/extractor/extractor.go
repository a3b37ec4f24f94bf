// Package extractor derives the salient-features bundle from a completed
// episode: critical decisions, tool combinations, error-recovery pairs, and
// insights, per SPEC_FULL.md §4.8.
//
// Grounded on internal/memory/episodic.go's generateStepDescription (verb
// and keyword matching over a step's tool/action/parameters) and
// truncateDescription (bounded-length summarization), generalized from
// human-readable trajectory descriptions to the four extraction rules.
// Extraction is a pure function of an episode's steps and outcome: no
// shared state, nothing to mock in tests.
package extractor

import (
	"strconv"
	"strings"

	"unified-thinking/internal/types"
)

const (
	maxCriticalDecisions = 10
	maxToolCombinations  = 5
	maxErrorRecoveries   = 10
	maxInsights          = 15
)

// decisionVerbs are the action-phrase markers that identify a decision step.
var decisionVerbs = []string{"choose", "decide", "select", "opt for"}

// strategyKeys are parameter keys that identify a decision step even when
// its action text doesn't contain a decision verb.
var strategyKeys = []string{"strategy", "approach", "method", "algorithm"}

// Extract produces the salient-features bundle for a completed episode.
// Callers must pass the episode's steps, outcome, and reflection (reflection
// may be nil if not yet generated).
func Extract(steps []types.ExecutionStep, outcome *types.TaskOutcome, reflection *types.Reflection) *types.SalientFeatures {
	sf := &types.SalientFeatures{
		CriticalDecisions:     criticalDecisions(steps, outcome),
		ToolCombinations:      toolCombinations(steps),
		ErrorRecoveryPatterns: errorRecoveryPatterns(steps),
		KeyInsights:           insights(reflection, outcome),
	}
	return sf
}

// isDecisionStep reports whether a step represents a decision point: its
// action phrase contains a decision verb, or its parameters carry a
// strategy-like key.
func isDecisionStep(s *types.ExecutionStep) bool {
	action := strings.ToLower(s.Action)
	for _, v := range decisionVerbs {
		if strings.Contains(action, v) {
			return true
		}
	}
	for _, k := range strategyKeys {
		if _, ok := s.Parameters[k]; ok {
			return true
		}
	}
	return false
}

// criticalDecisions collects up to maxCriticalDecisions strings: decision
// steps (by action, or by parameters), and outcome verdicts longer than 10
// characters.
func criticalDecisions(steps []types.ExecutionStep, outcome *types.TaskOutcome) []string {
	var out []string
	for i := range steps {
		s := &steps[i]
		if !isDecisionStep(s) {
			continue
		}
		out = append(out, decisionSummary(s))
		if len(out) >= maxCriticalDecisions {
			return out
		}
	}
	if outcome != nil && len(outcome.Verdict) > 10 {
		out = append(out, outcome.Verdict)
	}
	if len(out) > maxCriticalDecisions {
		out = out[:maxCriticalDecisions]
	}
	return out
}

func decisionSummary(s *types.ExecutionStep) string {
	for _, k := range strategyKeys {
		if v, ok := s.Parameters[k]; ok {
			return s.Tool + ": " + k + "=" + toString(v)
		}
	}
	return s.Action
}

// toString renders a step parameter value for a decision summary label.
// Extractor output is informational, not a wire format, so this is a
// best-effort label rather than a round-trippable encoding.
func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return "?"
	}
}

// toolCombinations finds runs of >=2 consecutive successful steps,
// deduplicated by joined tool list, order preserved, capped at
// maxToolCombinations.
func toolCombinations(steps []types.ExecutionStep) [][]string {
	var out [][]string
	seen := make(map[string]bool)

	i := 0
	for i < len(steps) {
		if !steps[i].Succeeded() {
			i++
			continue
		}
		j := i
		var run []string
		for j < len(steps) && steps[j].Succeeded() {
			run = append(run, steps[j].Tool)
			j++
		}
		if len(run) >= 2 {
			key := strings.Join(run, ">")
			if !seen[key] {
				seen[key] = true
				out = append(out, run)
				if len(out) >= maxToolCombinations {
					return out
				}
			}
		}
		i = j
	}
	return out
}

// errorRecoveryPatterns maps a failure step's error to the recovery action:
// single-step recoveries from (failure_i, success_i+1) adjacency,
// multi-step from (failure_i, success_i+1..i+k) with k<=3. Capped at
// maxErrorRecoveries entries.
func errorRecoveryPatterns(steps []types.ExecutionStep) map[string]string {
	out := make(map[string]string)
	for i := range steps {
		s := &steps[i]
		if s.Result == nil || s.Result.Kind == types.StepResultSuccess {
			continue
		}
		errKey := s.Result.Message
		if errKey == "" {
			errKey = s.Tool + " failed"
		}
		if _, exists := out[errKey]; exists {
			continue
		}

		var chain []string
		for k := 1; k <= 3 && i+k < len(steps); k++ {
			next := &steps[i+k]
			if next.Succeeded() {
				chain = append(chain, next.Tool+":"+next.Action)
			} else {
				break
			}
		}
		if len(chain) == 0 {
			continue
		}
		out[errKey] = strings.Join(chain, " -> ")
		if len(out) >= maxErrorRecoveries {
			break
		}
	}
	return out
}

// insights pulls reflection.insights[] verbatim, plus successes[]/
// improvements[] entries longer than 10 characters, plus a single insight
// summarizing an artifact list of <=5 entries. Capped at maxInsights.
func insights(reflection *types.Reflection, outcome *types.TaskOutcome) []string {
	var out []string
	if reflection != nil {
		out = append(out, reflection.Insights...)
		for _, s := range reflection.Successes {
			if len(s) > 10 {
				out = append(out, s)
			}
		}
		for _, s := range reflection.Improvements {
			if len(s) > 10 {
				out = append(out, s)
			}
		}
	}
	if outcome != nil && len(outcome.Artifacts) > 0 && len(outcome.Artifacts) <= 5 {
		out = append(out, "produced artifacts: "+strings.Join(outcome.Artifacts, ", "))
	}
	if len(out) > maxInsights {
		out = out[:maxInsights]
	}
	return out
}
