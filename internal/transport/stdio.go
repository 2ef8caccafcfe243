package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/joestump/dapclient/internal/dap"
)

// ProcessRunner abstracts spawning the adapter subprocess so tests can
// substitute a mock implementation — the same seam the teacher uses for
// its Claude CLI invocation (session.ProcessRunner / session.CLIRunner).
type ProcessRunner interface {
	Start(ctx context.Context, command string, args []string, cwd string, env []string) (stdin io.WriteCloser, stdout io.ReadCloser, wait func() error, err error)
}

// ExecProcessRunner implements ProcessRunner by spawning a real OS process.
type ExecProcessRunner struct{}

// Start builds and starts the adapter process, returning its stdin/stdout
// pipes and a wait function that blocks until it exits.
func (ExecProcessRunner) Start(ctx context.Context, command string, args []string, cwd string, env []string) (io.WriteCloser, io.ReadCloser, func() error, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = cwd
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}
	return stdin, stdout, cmd.Wait, nil
}

// StdioTransport runs the adapter as a subprocess and frames DAP messages
// over its stdin/stdout pipes.
type StdioTransport struct {
	base  baseTransport
	stdin io.WriteCloser
	wait  func() error
}

// NewStdioTransport spawns command (with args, in cwd, with extra env vars)
// via runner and returns a Transport ready for Start.
func NewStdioTransport(ctx context.Context, runner ProcessRunner, command string, args []string, cwd string, env []string) (*StdioTransport, error) {
	stdin, stdout, wait, err := runner.Start(ctx, command, args, cwd, env)
	if err != nil {
		return nil, fmt.Errorf("transport: spawn adapter: %w", err)
	}
	t := &StdioTransport{stdin: stdin, wait: wait}
	t.base.framer = dap.NewFramer(stdout, stdin)
	t.base.closeFn = func() error {
		closeErr := stdin.Close()
		if t.wait != nil {
			_ = t.wait()
		}
		return closeErr
	}
	return t, nil
}

func (t *StdioTransport) Start(onMessage OnMessage, onClose OnClose) error {
	t.base.pump(onMessage, onClose)
	return nil
}

func (t *StdioTransport) Send(raw []byte) error { return t.base.send(raw) }
func (t *StdioTransport) Close() error          { return t.base.close() }
