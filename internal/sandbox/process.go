package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// interpreterImage is the image used to run one-shot sandboxed scripts. A
// real deployment would build and pin a minimal image bundling the
// interpreter; left as a constant here, analogous to the teacher's
// "chum-agent:latest" hardcoded image tag.
const interpreterImage = "episodic-sandbox-node:latest"

// ProcessBackend runs code out-of-process inside a short-lived Docker
// container: one container per execution, removed on completion.
//
// Grounded on Heikkila-Pty-Ltd-cortex's internal/dispatch/docker.go
// DockerDispatcher: container-create/start/inspect/remove lifecycle,
// bind-mount-based input injection, and stdcopy demultiplexing of combined
// stdout/stderr — repurposed from dispatching long-lived coding-agent
// sessions to single-shot, resource-capped interpreter runs whose result is
// read back once the container exits rather than polled as a live session.
type ProcessBackend struct {
	cli      *client.Client
	image    string
	hostTemp string
	seq      atomic.Uint64
}

// NewProcessBackend constructs a backend using the ambient Docker
// environment (DOCKER_HOST, TLS certs, etc., via client.FromEnv), matching
// NewDockerDispatcher's construction. cli is nil (and Execute fails fast)
// only if the client cannot be built from the environment; construction
// does not contact the daemon.
func NewProcessBackend() *ProcessBackend {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		cli = nil
	}
	return &ProcessBackend{cli: cli, image: interpreterImage, hostTemp: os.TempDir()}
}

func (p *ProcessBackend) Name() Backend { return BackendProcess }

func (p *ProcessBackend) Execute(ctx context.Context, code []byte, opts Options) Result {
	return runWithDeadline(ctx, opts, func(ctx context.Context) Result {
		return p.run(ctx, code, opts)
	})
}

func (p *ProcessBackend) run(ctx context.Context, code []byte, opts Options) Result {
	if p.cli == nil {
		return Result{Kind: ResultError, Message: "docker client unavailable"}
	}

	runID := fmt.Sprintf("sandbox-run-%d-%d", p.seq.Add(1), time.Now().UnixNano())
	hostCtxDir := filepath.Join(p.hostTemp, runID)
	if err := os.MkdirAll(hostCtxDir, 0o755); err != nil {
		return Result{Kind: ResultError, Message: fmt.Sprintf("failed to stage execution context: %v", err)}
	}
	defer os.RemoveAll(hostCtxDir)

	scriptPath := filepath.Join(hostCtxDir, "main.js")
	if err := os.WriteFile(scriptPath, code, 0o644); err != nil {
		return Result{Kind: ResultError, Message: fmt.Sprintf("failed to write script: %v", err)}
	}

	containerConfig := &container.Config{
		Image:      p.image,
		Cmd:        []string{"node", "/sandbox/main.js"},
		Tty:        false,
		WorkingDir: "/sandbox",
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: hostCtxDir, Target: "/sandbox", ReadOnly: !opts.AllowFilesystem},
		},
		AutoRemove:     false,
		NetworkMode:    "none",
		ReadonlyRootfs: !opts.AllowFilesystem,
		Resources: container.Resources{
			Memory: opts.MemoryLimitMB * 1024 * 1024,
		},
	}
	if opts.AllowNetwork {
		hostConfig.NetworkMode = "bridge"
	}
	if !opts.AllowSubprocesses {
		hostConfig.CapDrop = []string{"ALL"}
	}

	resp, err := p.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, runID)
	if err != nil {
		return Result{Kind: ResultError, Message: fmt.Sprintf("failed to create sandbox container: %v", err)}
	}
	defer p.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return Result{Kind: ResultError, Message: fmt.Sprintf("failed to start sandbox container: %v", err)}
	}

	statusCh, errCh := p.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case <-ctx.Done():
		return Result{Kind: ResultTimeout, Message: "sandbox execution exceeded deadline"}
	case err := <-errCh:
		if err != nil {
			return Result{Kind: ResultError, Message: fmt.Sprintf("error waiting for sandbox container: %v", err)}
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := p.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Result{Kind: ResultError, Message: fmt.Sprintf("failed to read sandbox output: %v", err)}
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return Result{Kind: ResultError, Message: fmt.Sprintf("failed to demultiplex sandbox output: %v", err)}
	}

	if exitCode != 0 {
		return Result{
			Kind:    ResultError,
			Stdout:  stdout.String(),
			Message: strings.TrimSpace(stderr.String()),
		}
	}

	out := strings.TrimSpace(stdout.String())
	value, hasValue := trailingNumericLine(out)
	return Result{Kind: ResultSuccess, Stdout: out, Value: value, HasValue: hasValue}
}

// trailingNumericLine extracts the last line of stdout as a float64, the
// convention the interpreter harness uses to surface an expression's
// result value (mirroring how the Wasm backend reports Value).
func trailingNumericLine(stdout string) (float64, bool) {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
