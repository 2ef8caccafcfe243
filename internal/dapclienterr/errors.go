// Package dapclienterr defines the typed error kinds a Session or any of
// its owned objects can surface, per the error handling design: recoverable
// AdapterErrors, capability gating failures, fatal protocol errors, and the
// terminal connection/timeout/depth conditions that tear a session down.
package dapclienterr

import (
	"errors"
	"fmt"
)

// Kind identifies which of the error categories an error belongs to, so
// callers can branch with errors.Is against Sentinel(kind) without
// string-matching messages.
type Kind int

const (
	// KindProtocol marks a malformed frame or unparseable JSON body. Fatal:
	// the owning session must be torn down.
	KindProtocol Kind = iota
	// KindAdapter marks a response the adapter answered with success=false.
	// Recoverable: the caller decides whether to retry or fall back.
	KindAdapter
	// KindCapability marks a call to a feature the adapter did not
	// advertise in its initialize response. No request reaches the
	// adapter.
	KindCapability
	// KindConnectionClosed marks a transport that closed with requests
	// still pending.
	KindConnectionClosed
	// KindTimeout marks the 30s session-startup deadline being exceeded.
	KindTimeout
	// KindDepthExceeded marks a startDebugging reverse request beyond the
	// maximum session nesting depth.
	KindDepthExceeded
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "ProtocolError"
	case KindAdapter:
		return "AdapterError"
	case KindCapability:
		return "CapabilityError"
	case KindConnectionClosed:
		return "ConnectionClosed"
	case KindTimeout:
		return "Timeout"
	case KindDepthExceeded:
		return "DepthExceeded"
	default:
		return "UnknownError"
	}
}

// Error is the concrete error type returned across the module. Build one
// around an underlying cause with Wrap so errors.Unwrap keeps working.
type Error struct {
	Kind    Kind
	Message string
	Command string // the DAP command/event in flight, if any
	Cause   error
}

func (e *Error) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("%s: %s (command=%s)", e.Kind, e.Message, e.Command)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, dapclienterr.Sentinel(dapclienterr.KindAdapter))
// style checks: it matches a target built by Sentinel with the same Kind.
func (e *Error) Is(target error) bool {
	var k *kindSentinel
	if errors.As(target, &k) {
		return e.Kind == k.kind
	}
	return false
}

// kindSentinel lets callers write errors.Is(err, dapclienterr.Sentinel(KindAdapter)).
type kindSentinel struct{ kind Kind }

func (s *kindSentinel) Error() string { return s.kind.String() }

// Sentinel returns an error value suitable for errors.Is comparisons
// against a Kind, e.g. errors.Is(err, dapclienterr.Sentinel(dapclienterr.KindTimeout)).
func Sentinel(k Kind) error { return &kindSentinel{kind: k} }

// New builds an Error of the given kind with a plain message.
func New(k Kind, command, message string) *Error {
	return &Error{Kind: k, Command: command, Message: message}
}

// Wrap builds an Error of the given kind wrapping cause.
func Wrap(k Kind, command string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: k, Command: command, Message: msg, Cause: cause}
}

// Protocol is a convenience constructor for KindProtocol errors.
func Protocol(message string) *Error { return New(KindProtocol, "", message) }

// Adapter is a convenience constructor for KindAdapter errors, carrying the
// command that failed and the adapter's message (from response.message).
func Adapter(command, message string) *Error { return New(KindAdapter, command, message) }

// Capability is a convenience constructor for KindCapability errors.
func Capability(command, feature string) *Error {
	return New(KindCapability, command, fmt.Sprintf("adapter does not advertise %s", feature))
}

// ConnectionClosed is a convenience constructor for KindConnectionClosed.
func ConnectionClosed(command string) *Error {
	return New(KindConnectionClosed, command, "connection closed")
}

// Timeout is a convenience constructor for KindTimeout.
func Timeout(message string) *Error { return New(KindTimeout, "", message) }

// DepthExceeded is a convenience constructor for KindDepthExceeded.
func DepthExceeded(max int) *Error {
	return New(KindDepthExceeded, "startDebugging", fmt.Sprintf("maximum session depth %d exceeded", max))
}
