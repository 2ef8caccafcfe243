// Package correlator assigns outbound DAP request sequence numbers, holds
// pending requests until a matching response arrives, and dispatches
// adapter-originated (reverse) requests to registered handlers.
package correlator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/joestump/dapclient/internal/dap"
	"github.com/joestump/dapclient/internal/dapclienterr"
)

// FrameWriter is the narrow seam the Correlator needs from the transport:
// serialize one message and hand it off. Session's Transport satisfies it.
type FrameWriter interface {
	Send(raw []byte) error
}

// ReverseHandler answers a request the adapter sent to the client. It
// returns the response body, the success flag, and the message sent back
// with a failed response. The command it answers is the one it was
// registered for with RegisterHandler.
type ReverseHandler func(ctx context.Context, arguments json.RawMessage) (body any, success bool, message string)

type pending struct {
	resultCh chan result
}

type result struct {
	body    json.RawMessage
	success bool
	message string
	closed  bool
}

// Correlator is safe for concurrent use: SendRequest may be called from
// any goroutine while Receive is fed by the transport's single read pump.
type Correlator struct {
	mu       sync.Mutex
	writer   FrameWriter
	seq      int
	pending  map[int]*pending
	handlers map[string]ReverseHandler
	closed   bool
	closeErr error
}

// New creates a Correlator that writes outbound messages via writer.
func New(writer FrameWriter) *Correlator {
	return &Correlator{
		writer:   writer,
		pending:  make(map[int]*pending),
		handlers: make(map[string]ReverseHandler),
	}
}

// RegisterHandler installs the handler invoked when the adapter sends a
// reverse request named command. Registering the same command twice
// replaces the prior handler.
func (c *Correlator) RegisterHandler(command string, handler ReverseHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[command] = handler
}

// SendRequest allocates the next outbound seq, writes the framed request,
// and blocks until a matching response arrives, ctx is cancelled, or the
// Correlator is closed. On success=false it returns an AdapterError
// wrapping the adapter's message; a request still pending when the
// Correlator is closed fails with ConnectionClosed.
func (c *Correlator) SendRequest(ctx context.Context, command string, arguments any) (json.RawMessage, error) {
	req, err := dap.NewRequest(command, arguments)
	if err != nil {
		return nil, dapclienterr.Wrap(dapclienterr.KindProtocol, command, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, dapclienterr.ConnectionClosed(command)
	}
	c.seq++
	req.Seq = c.seq
	p := &pending{resultCh: make(chan result, 1)}
	c.pending[req.Seq] = p
	c.mu.Unlock()

	raw, err := json.Marshal(req)
	if err != nil {
		c.removePending(req.Seq)
		return nil, dapclienterr.Wrap(dapclienterr.KindProtocol, command, err)
	}
	if err := c.writer.Send(raw); err != nil {
		c.removePending(req.Seq)
		return nil, dapclienterr.Wrap(dapclienterr.KindConnectionClosed, command, err)
	}

	select {
	case <-ctx.Done():
		c.removePending(req.Seq)
		return nil, ctx.Err()
	case r := <-p.resultCh:
		if r.closed {
			return nil, dapclienterr.New(dapclienterr.KindConnectionClosed, command, r.message)
		}
		if !r.success {
			return nil, dapclienterr.Adapter(command, r.message)
		}
		return r.body, nil
	}
}

func (c *Correlator) removePending(seq int) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
}

// Answer sends a response for a reverse request identified by requestSeq.
func (c *Correlator) Answer(requestSeq int, command string, success bool, body any, message string) error {
	resp, err := dap.NewResponse(requestSeq, command, success, body, message)
	if err != nil {
		return dapclienterr.Wrap(dapclienterr.KindProtocol, command, err)
	}
	c.mu.Lock()
	c.seq++
	resp.Seq = c.seq
	c.mu.Unlock()

	raw, err := json.Marshal(resp)
	if err != nil {
		return dapclienterr.Wrap(dapclienterr.KindProtocol, command, err)
	}
	return c.writer.Send(raw)
}

// Receive routes one parsed inbound message: responses are matched to the
// pending waiter by request_seq (failing it if success=false); requests
// are dispatched to the registered handler for their command (or answered
// success=false, message="unsupported" if none is registered); events are
// not handled here — callers consult msg.Event themselves, since event
// fan-out is the Session's Hookable's job, not the Correlator's.
func (c *Correlator) Receive(ctx context.Context, msg dap.Parsed) {
	switch msg.Kind {
	case dap.TypeResponse:
		c.receiveResponse(msg.Response)
	case dap.TypeRequest:
		c.receiveRequest(ctx, msg.Request)
	}
}

func (c *Correlator) receiveResponse(resp *dap.Response) {
	c.mu.Lock()
	p, ok := c.pending[resp.RequestSeq]
	if ok {
		delete(c.pending, resp.RequestSeq)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	p.resultCh <- result{body: resp.Body, success: resp.Success, message: resp.Message}
}

func (c *Correlator) receiveRequest(ctx context.Context, req *dap.Request) {
	c.mu.Lock()
	handler, ok := c.handlers[req.Command]
	c.mu.Unlock()

	if !ok {
		_ = c.Answer(req.Seq, req.Command, false, nil, "unsupported")
		return
	}

	body, success, message := handler(ctx, req.Arguments)
	_ = c.Answer(req.Seq, req.Command, success, body, message)
}

// Close fails every pending request with ConnectionClosed and marks the
// Correlator closed: further SendRequest calls fail immediately.
func (c *Correlator) Close(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = cause
	pendingCopy := make([]*pending, 0, len(c.pending))
	for _, p := range c.pending {
		pendingCopy = append(pendingCopy, p)
	}
	c.pending = make(map[int]*pending)
	c.mu.Unlock()

	for _, p := range pendingCopy {
		p.resultCh <- result{success: false, closed: true, message: fmt.Sprintf("connection closed: %v", c.closeErr)}
	}
}
