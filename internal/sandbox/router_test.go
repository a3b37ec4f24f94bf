package sandbox

import (
	"context"
	"testing"
)

func TestDecideBackend_ModeProcessAlwaysProcess(t *testing.T) {
	cfg := RouterConfig{Mode: ModeProcess}
	backend, _ := decideBackend([]byte("1+2"), cfg, BackendProcess)
	if backend != BackendProcess {
		t.Fatalf("want process, got %s", backend)
	}
}

func TestDecideBackend_ModeWasmAlwaysWasm(t *testing.T) {
	cfg := RouterConfig{Mode: ModeWasm}
	backend, _ := decideBackend([]byte("function f(){}"), cfg, BackendWasm)
	if backend != BackendWasm {
		t.Fatalf("want wasm, got %s", backend)
	}
}

func TestDecideBackend_WasmMagicHeaderRoutesWasm(t *testing.T) {
	cfg := DefaultRouterConfig()
	code := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	backend, reason := decideBackend(code, cfg, BackendProcess)
	if backend != BackendWasm || reason != "wasm magic header" {
		t.Fatalf("got backend=%s reason=%s", backend, reason)
	}
}

func TestDecideBackend_JSTokensRouteProcess(t *testing.T) {
	cfg := DefaultRouterConfig()
	backend, reason := decideBackend([]byte("const x = 1; console.log(x);"), cfg, BackendWasm)
	if backend != BackendProcess || reason != "javascript-like tokens" {
		t.Fatalf("got backend=%s reason=%s", backend, reason)
	}
}

func TestDecideBackend_SimpleShortCodeRoutesWasm(t *testing.T) {
	cfg := DefaultRouterConfig()
	backend, reason := decideBackend([]byte("1 + 2 * 3"), cfg, BackendProcess)
	if backend != BackendWasm || reason != "simple and short code" {
		t.Fatalf("got backend=%s reason=%s", backend, reason)
	}
}

func TestDecideBackend_ComplexCodeRoutesProcess(t *testing.T) {
	cfg := DefaultRouterConfig()
	var long string
	for i := 0; i < 35; i++ {
		long += "a = a + 1\n"
	}
	backend, reason := decideBackend([]byte(long), cfg, BackendProcess)
	if backend != BackendProcess || reason != "complex or dependency-bearing code" {
		t.Fatalf("got backend=%s reason=%s", backend, reason)
	}
}

func TestDecideBackend_AmbiguousCodeDefersToFallback(t *testing.T) {
	cfg := RouterConfig{Mode: ModeHybrid, WasmRatio: 0.5, IntelligentRouting: true}
	// 12-20 line band avoids both the simple-short rule (<10 lines) and the
	// complex rule (>=30 lines), landing on the Thompson-sampled fallback.
	var mid string
	for i := 0; i < 15; i++ {
		mid += "a = a + 1\n"
	}
	code := []byte(mid)

	backendWasm, reasonWasm := decideBackend(code, cfg, BackendWasm)
	if backendWasm != BackendWasm || reasonWasm != "bernoulli trial" {
		t.Fatalf("wasm fallback: got backend=%s reason=%s", backendWasm, reasonWasm)
	}

	backendProcess, reasonProcess := decideBackend(code, cfg, BackendProcess)
	if backendProcess != BackendProcess || reasonProcess != "bernoulli trial" {
		t.Fatalf("process fallback: got backend=%s reason=%s", backendProcess, reasonProcess)
	}
}

func TestDecideBackend_IntelligentRoutingDisabledUsesFallback(t *testing.T) {
	cfg := RouterConfig{Mode: ModeHybrid, WasmRatio: 0.5, IntelligentRouting: false}
	backend, reason := decideBackend([]byte("function f(){}"), cfg, BackendWasm)
	if backend != BackendWasm || reason != "bernoulli trial (intelligent routing disabled)" {
		t.Fatalf("got backend=%s reason=%s", backend, reason)
	}
}

func TestRouter_ThompsonFallbackDriftsTowardSuccessfulBackend(t *testing.T) {
	process := stubExecutor{name: BackendProcess, result: Result{Kind: ResultError}}
	wasm := stubExecutor{name: BackendWasm, result: Result{Kind: ResultSuccess}}
	r := NewRouter(RouterConfig{Mode: ModeHybrid, WasmRatio: 0.5, IntelligentRouting: true}, process, wasm, 7)

	// Ambiguous-length code lands on the Thompson fallback every time.
	var mid string
	for i := 0; i < 15; i++ {
		mid += "a = a + 1\n"
	}
	code := []byte(mid)

	for i := 0; i < 40; i++ {
		r.Route(context.Background(), code, Options{})
	}

	wasmStats := r.Stats(BackendWasm)
	if wasmStats.Executions == 0 {
		t.Fatal("expected the bandit to route at least some executions to wasm")
	}
	// Wasm always succeeds and process always fails, so the bandit should
	// have converged toward routing the clear majority to wasm.
	if wasmStats.Executions < 25 {
		t.Fatalf("expected the bandit to favor wasm after observing its successes, got %d/40 wasm executions", wasmStats.Executions)
	}
}

type stubExecutor struct {
	name   Backend
	result Result
}

func (s stubExecutor) Name() Backend { return s.name }
func (s stubExecutor) Execute(ctx context.Context, code []byte, opts Options) Result {
	return s.result
}

func TestRouter_RouteRecordsDecisionAndMetrics(t *testing.T) {
	process := stubExecutor{name: BackendProcess, result: Result{Kind: ResultSuccess}}
	wasm := stubExecutor{name: BackendWasm, result: Result{Kind: ResultSuccess, Value: 3, HasValue: true}}
	r := NewRouter(DefaultRouterConfig(), process, wasm, 1)

	result := r.Route(context.Background(), []byte("1 + 2"), Options{})
	if result.Kind != ResultSuccess || !result.HasValue || result.Value != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}

	decisions := r.Decisions()
	if len(decisions) != 1 || decisions[0].Backend != BackendWasm {
		t.Fatalf("expected one wasm decision, got %+v", decisions)
	}

	stats := r.Stats(BackendWasm)
	if stats.Executions != 1 || stats.SuccessRate != 1.0 {
		t.Fatalf("unexpected wasm stats: %+v", stats)
	}
}

func TestRouter_DecisionHistoryCapsAtHundred(t *testing.T) {
	process := stubExecutor{name: BackendProcess, result: Result{Kind: ResultSuccess}}
	wasm := stubExecutor{name: BackendWasm, result: Result{Kind: ResultSuccess}}
	r := NewRouter(DefaultRouterConfig(), process, wasm, 1)

	for i := 0; i < 150; i++ {
		r.Route(context.Background(), []byte("1 + 2"), Options{})
	}

	if got := len(r.Decisions()); got != decisionHistoryCap {
		t.Fatalf("expected history capped at %d, got %d", decisionHistoryCap, got)
	}
}
