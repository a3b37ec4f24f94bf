// Package sandbox implements the sandboxed code executor of SPEC_FULL.md
// §4.9: a process backend (Docker-isolated out-of-process interpreter) and
// a WebAssembly backend (in-process wazero runtime), behind a router that
// picks between them.
//
// New to this domain: the teacher has no sandbox concept. The process
// backend is grounded on Heikkila-Pty-Ltd-cortex's
// internal/dispatch/docker.go (github.com/docker/docker/client
// container-create/start/inspect/remove lifecycle, bind-mount code
// injection, pkg/stdcopy stdout/stderr demultiplexing), repurposed from
// dispatching long-lived coding-agent containers to short-lived,
// resource-capped one-shot interpreter runs. The WebAssembly backend is
// out-of-pack (no example repo imports a WASM runtime); it is named, not
// grounded, per the dependency-wiring policy, and uses
// github.com/tetratelabs/wazero.
package sandbox

import (
	"context"
	"time"
)

// ResultKind discriminates the three-shape Result tagged union.
type ResultKind string

const (
	ResultSuccess ResultKind = "Success"
	ResultError   ResultKind = "Error"
	ResultTimeout ResultKind = "Timeout"
)

// Result is the outcome of one sandboxed execution.
type Result struct {
	Kind     ResultKind
	Stdout   string
	Value    float64
	HasValue bool
	Message  string
}

// Options enforces the resource limits and permission grants for one
// execution.
type Options struct {
	AllowNetwork      bool
	AllowFilesystem   bool
	AllowSubprocesses bool
	MemoryLimitMB     int64
	Timeout           time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 5 * time.Second
	}
	return o.Timeout
}

// Backend names one of the two execution environments.
type Backend string

const (
	BackendProcess Backend = "process"
	BackendWasm    Backend = "wasm"
)

// Executor runs code in one backend.
type Executor interface {
	Name() Backend
	Execute(ctx context.Context, code []byte, opts Options) Result
}

// runWithDeadline wraps an Executor call with a hard wall-clock deadline: if
// the underlying call does not return in time, the caller gets Timeout
// immediately rather than waiting indefinitely on a runaway backend. This
// mirrors the "Timeout within deadline+ε" safety invariant regardless of
// whether the backend itself honors ctx cancellation promptly.
func runWithDeadline(ctx context.Context, opts Options, fn func(context.Context) Result) Result {
	deadline := opts.timeout()
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return Result{Kind: ResultTimeout, Message: "execution exceeded deadline"}
	}
}
