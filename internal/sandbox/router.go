package sandbox

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"unified-thinking/internal/reinforcement"
)

// Mode fixes routing behavior. Hybrid is the interesting case: a
// precondition-filter chain decides the obvious cases, and an unresolved
// remainder falls back to a Thompson-sampled choice between the backends.
type Mode string

const (
	ModeProcess Mode = "process"
	ModeWasm    Mode = "wasm"
	ModeHybrid  Mode = "hybrid"
)

// RouterConfig governs Router's backend selection.
type RouterConfig struct {
	Mode               Mode
	WasmRatio          float64 // wasm probability of the coin flip thompsonFallback uses only when the selector has no active arm
	IntelligentRouting bool    // if false, Hybrid skips the rule chain and always uses the Thompson-sampled fallback
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{Mode: ModeHybrid, WasmRatio: 0.5, IntelligentRouting: true}
}

// RoutingDecision records one routing choice for the rolling metrics buffer.
type RoutingDecision struct {
	Backend    Backend
	Reason     string
	CodeLength int
	HasJSToken bool
	Timestamp  time.Time
}

type backendMetrics struct {
	executions   int
	successes    int
	totalLatency time.Duration
}

// Router picks between the process and Wasm backends per execution and
// tracks a rolling window of routing decisions plus per-backend rolling
// success-rate/latency counters.
//
// Grounded on internal/reinforcement/thompson.go's ThompsonSelector: a
// deterministic precondition chain resolves the obvious cases (wasm magic
// header, JS tokens, code size), and the remainder — the genuinely
// ambiguous cases — is resolved by treating "process" and "wasm" as two
// arms of a Thompson Sampling bandit. Each arm's Beta(α,β) prior is updated
// with every execution's success/failure via selector.RecordOutcome, so the
// fallback drifts toward whichever backend empirically succeeds more often
// for this process's mix of submitted code.
type Router struct {
	cfg       RouterConfig
	process   Executor
	wasm      Executor
	rng       *rand.Rand
	selector  *reinforcement.ThompsonSelector

	mu        sync.Mutex
	decisions []RoutingDecision
	metrics   map[Backend]*backendMetrics
}

const decisionHistoryCap = 100

// NewDefaultRouter wires the two concrete backends (Docker-backed process
// execution, in-process wazero execution) behind a Router using cfg.
func NewDefaultRouter(ctx context.Context, cfg RouterConfig, seed int64) *Router {
	return NewRouter(cfg, NewProcessBackend(), NewWasmBackend(ctx), seed)
}

func NewRouter(cfg RouterConfig, process, wasm Executor, seed int64) *Router {
	selector := reinforcement.NewThompsonSelector(seed)
	selector.AddStrategy(&reinforcement.Strategy{ID: string(BackendProcess), Name: "process backend", Mode: string(BackendProcess), IsActive: true})
	selector.AddStrategy(&reinforcement.Strategy{ID: string(BackendWasm), Name: "wasm backend", Mode: string(BackendWasm), IsActive: true})

	return &Router{
		cfg:      cfg,
		process:  process,
		wasm:     wasm,
		rng:      rand.New(rand.NewSource(seed)), // #nosec G404 - routing heuristic, not security-sensitive
		selector: selector,
		metrics:  map[Backend]*backendMetrics{BackendProcess: {}, BackendWasm: {}},
	}
}

// decideBackend is the pure routing policy, factored out of Router so it is
// unit-testable without constructing real backends. fallback is the arm the
// caller already resolved for the ambiguous case (Thompson-sampled by Route;
// tests pass a fixed arm).
func decideBackend(code []byte, cfg RouterConfig, fallback Backend) (Backend, string) {
	switch cfg.Mode {
	case ModeProcess:
		return BackendProcess, "configured process-only mode"
	case ModeWasm:
		return BackendWasm, "configured wasm-only mode"
	}

	if !cfg.IntelligentRouting {
		return fallback, "bernoulli trial (intelligent routing disabled)"
	}

	if isWasmBinary(code) {
		return BackendWasm, "wasm magic header"
	}

	src := strings.TrimSpace(string(code))
	if looksLikeJS(src) {
		return BackendProcess, "javascript-like tokens"
	}

	lines := strings.Count(src, "\n") + 1
	simple := lines < 10 && len(src) < 500
	if simple {
		return BackendWasm, "simple and short code"
	}

	complexOrDependent := lines >= 30 || len(src) >= 2000 || strings.Contains(src, "require(")
	if complexOrDependent {
		return BackendProcess, "complex or dependency-bearing code"
	}

	return fallback, "bernoulli trial"
}

// thompsonFallback samples both arms' Beta posteriors and returns whichever
// backend the bandit currently favors. Falls back to a plain WasmRatio coin
// flip if the selector has no active strategies (should not happen once
// NewRouter has run).
func (r *Router) thompsonFallback() Backend {
	strategy, err := r.selector.SelectStrategy(reinforcement.ProblemContext{Type: "sandbox-routing"})
	if err != nil {
		if r.rng.Float64() < r.cfg.WasmRatio {
			return BackendWasm
		}
		return BackendProcess
	}
	return Backend(strategy.ID)
}

// Route executes code against whichever backend the policy selects,
// recording the decision and updating rolling metrics.
func (r *Router) Route(ctx context.Context, code []byte, opts Options) Result {
	r.mu.Lock()
	fallback := r.thompsonFallback()
	r.mu.Unlock()

	backend, reason := decideBackend(code, r.cfg, fallback)

	r.recordDecision(RoutingDecision{
		Backend:    backend,
		Reason:     reason,
		CodeLength: len(code),
		HasJSToken: looksLikeJS(string(code)),
		Timestamp:  time.Now(),
	})

	exec := r.process
	if backend == BackendWasm {
		exec = r.wasm
	}

	start := time.Now()
	result := exec.Execute(ctx, code, opts)
	elapsed := time.Since(start)

	success := result.Kind == ResultSuccess
	r.recordOutcome(backend, success, elapsed)
	if err := r.selector.RecordOutcome(string(backend), success); err != nil {
		// Both arms are registered in NewRouter; this only fires if a
		// caller bypassed it and constructed a bare Router.
		r.recordDecision(RoutingDecision{Backend: backend, Reason: "unregistered thompson arm: " + err.Error(), Timestamp: time.Now()})
	}
	return result
}

func (r *Router) recordDecision(d RoutingDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
	if len(r.decisions) > decisionHistoryCap {
		r.decisions = r.decisions[len(r.decisions)-decisionHistoryCap:]
	}
}

func (r *Router) recordOutcome(backend Backend, success bool, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.metrics[backend]
	if m == nil {
		m = &backendMetrics{}
		r.metrics[backend] = m
	}
	m.executions++
	if success {
		m.successes++
	}
	m.totalLatency += elapsed
}

// Decisions returns a snapshot of the rolling decision history, most recent
// last.
func (r *Router) Decisions() []RoutingDecision {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RoutingDecision, len(r.decisions))
	copy(out, r.decisions)
	return out
}

// BackendStats reports a backend's rolling success rate and mean latency.
type BackendStats struct {
	Executions  int
	SuccessRate float64
	MeanLatency time.Duration
}

func (r *Router) Stats(backend Backend) BackendStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.metrics[backend]
	if m == nil || m.executions == 0 {
		return BackendStats{}
	}
	return BackendStats{
		Executions:  m.executions,
		SuccessRate: float64(m.successes) / float64(m.executions),
		MeanLatency: m.totalLatency / time.Duration(m.executions),
	}
}
