// Package transport owns the adapter connection — a subprocess with piped
// stdio, or a TCP socket (often fronted by a server the adapter process
// itself spawns and announces on stdout) — and pumps parsed DAP frames
// into a caller-supplied callback.
package transport

import (
	"fmt"
	"io"
	"sync"

	"github.com/joestump/dapclient/internal/dap"
)

// OnMessage is invoked once per parsed inbound frame, from the single read
// pump goroutine. It must not block for long; Session dispatches quickly
// and hands slow work to its own Hookable listeners.
type OnMessage func(raw []byte)

// OnClose is invoked exactly once when the read pump exits, whether from a
// clean close, a protocol error, or the underlying process/socket dying.
// err is nil when the read side ended with a clean EOF at a frame
// boundary; otherwise it is the read error that stopped the pump.
type OnClose func(err error)

// Transport is the interface Session depends on. Both StdioTransport and
// TCPTransport satisfy it.
type Transport interface {
	// Start begins the read pump. It must be called at most once.
	Start(onMessage OnMessage, onClose OnClose) error
	// Send writes one already-framed-ready JSON body. Safe to call from
	// any goroutine concurrently with the read pump and with other Sends.
	Send(raw []byte) error
	// Close terminates the underlying process/socket and drops any
	// buffered inbound bytes. Idempotent.
	Close() error
}

// baseTransport centralizes the framer + close-once bookkeeping shared by
// both transport kinds.
type baseTransport struct {
	mu       sync.Mutex
	framer   *dap.Framer
	closed   bool
	closeFn  func() error
	pumpOnce sync.Once
}

func (b *baseTransport) send(raw []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("transport: send after close")
	}
	return b.framer.WriteMessage(raw)
}

func (b *baseTransport) close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	fn := b.closeFn
	b.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

func (b *baseTransport) pump(onMessage OnMessage, onClose OnClose) {
	b.pumpOnce.Do(func() {
		go func() {
			var exitErr error
			for {
				raw, err := b.framer.ReadMessage()
				if err != nil {
					if err != io.EOF {
						exitErr = err
					}
					break
				}
				onMessage(raw)
			}
			_ = b.close()
			if onClose != nil {
				onClose(exitErr)
			}
		}()
	})
}
