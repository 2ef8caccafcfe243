package transport

import (
	"context"
	"io"
	"strconv"
	"testing"
	"time"
)

// fakeRunner is a fake ProcessRunner backed by in-memory pipes instead of a
// real subprocess — the same substitution seam the teacher uses for its
// Claude CLI invocation (session.ProcessRunner / session.CLIRunner).
type fakeRunner struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (f fakeRunner) Start(ctx context.Context, command string, args []string, cwd string, env []string) (io.WriteCloser, io.ReadCloser, func() error, error) {
	return f.stdin, f.stdout, func() error { return nil }, nil
}

func TestStdioTransportSendAndReceive(t *testing.T) {
	stdoutR, stdoutW := io.Pipe()
	stdinR, stdinW := io.Pipe()

	runner := fakeRunner{stdin: stdinW, stdout: stdoutR}
	tr, err := NewStdioTransport(context.Background(), runner, "fake-adapter", nil, "", nil)
	if err != nil {
		t.Fatalf("NewStdioTransport: %v", err)
	}

	received := make(chan []byte, 1)
	if err := tr.Start(func(raw []byte) { received <- raw }, func(error) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// "Adapter" writes a framed message on its stdout.
	body := `{"seq":1,"a":1}`
	go func() {
		_, _ = stdoutW.Write([]byte("Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body))
	}()

	select {
	case raw := <-received:
		if string(raw) != body {
			t.Fatalf("unexpected message: %s", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	// Client sends a message; "adapter" reads it back off stdin.
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := stdinR.Read(buf)
		done <- buf[:n]
	}()
	if err := tr.Send([]byte(`{"seq":1,"command":"x"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case got := <-done:
		if len(got) == 0 {
			t.Fatal("expected to read framed bytes on stdin")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for send to reach stdin")
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
