// Package source implements the unified Source identity (file path or
// adapter-assigned sourceReference), the Location/SourceIdentifier
// canonical equality keys, and content retrieval/caching.
package source

import (
	"fmt"
	"path/filepath"
)

// Kind distinguishes a file-backed Source from an adapter-provided
// virtual one.
type Kind int

const (
	KindFile Kind = iota
	KindVirtual
)

// Identifier is the canonical equality key for a Source: either an
// absolute filesystem path, or the (sessionID, sourceReference) pair plus
// an optional stability hash the adapter's name/origin/content implies.
// It is a plain comparable struct so it can be used directly as a map key.
type Identifier struct {
	Kind          Kind
	Path          string
	SessionID     int
	SourceRef     int
	StabilityHash string
}

// FileIdentifier builds the Identifier for a file-backed source, cleaning
// and absolute-ifying path so two Source references to the same file on
// disk always produce an equal Identifier.
func FileIdentifier(path string) Identifier {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return Identifier{Kind: KindFile, Path: filepath.Clean(abs)}
}

// VirtualIdentifier builds the Identifier for an adapter-provided virtual
// source. stabilityHash may be empty when the adapter gives no basis for
// cross-restart correlation (see design notes: do not attempt cross-session
// reuse without one).
func VirtualIdentifier(sessionID, sourceRef int, stabilityHash string) Identifier {
	return Identifier{Kind: KindVirtual, SessionID: sessionID, SourceRef: sourceRef, StabilityHash: stabilityHash}
}

func (id Identifier) String() string {
	if id.Kind == KindFile {
		return id.Path
	}
	return fmt.Sprintf("ref:%d:%d", id.SessionID, id.SourceRef)
}

// Location is a (SourceIdentifier, line, column) triple; equality is
// structural. It may exist independent of any loaded Source (user intent
// on a file that isn't open in any session).
type Location struct {
	Source Identifier
	Line   int
	Column int
}

// String produces the stable "path-or-ref:line:column" key used as a
// Breakpoint's id.
func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.Source, l.Line, l.Column)
}
