package errors

import (
	"fmt"
)

// ParseError represents a YAML parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures pipeline definition validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KeypathError reports an invalid or unknown parameter keypath.
type KeypathError struct {
	Keypath string
	Message string
	Err     error
}

// NewKeypathError constructs a KeypathError for the given keypath.
func NewKeypathError(keypath, message string, err error) error {
	return &KeypathError{Keypath: keypath, Message: message, Err: err}
}

func (e *KeypathError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %s", e.Keypath, e.Message)
}

// Unwrap exposes the underlying error.
func (e *KeypathError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// GraphError represents a structural flowgraph failure, such as a cycle or
// an edge referencing an undeclared node.
type GraphError struct {
	Flow    string
	Message string
	Err     error
}

// NewGraphError constructs a GraphError for the given flow.
func NewGraphError(flow, message string, err error) error {
	return &GraphError{Flow: flow, Message: message, Err: err}
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Flow != "" {
		return fmt.Sprintf("graph error [%s]: %s", e.Flow, e.Message)
	}
	return fmt.Sprintf("graph error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *GraphError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// LockReason identifies which level of the cache locking protocol refused
// access.
type LockReason int

const (
	// LockHeldByThread means another goroutine in this process holds the
	// cache entry.
	LockHeldByThread LockReason = iota
	// LockHeldByProcess means the inter-process lock file stayed locked for
	// the whole timeout.
	LockHeldByProcess
	// LockHeldBySentinel means the fallback marker file never cleared.
	LockHeldBySentinel
)

// LockError reports a failure to acquire the cache lock for a remote data
// source.
type LockError struct {
	Path     string
	LockFile string
	Reason   LockReason
	Err      error
}

// NewLockError constructs a LockError for the given cache path.
func NewLockError(path, lockFile string, reason LockReason, err error) error {
	return &LockError{Path: path, LockFile: lockFile, Reason: reason, Err: err}
}

func (e *LockError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Reason {
	case LockHeldByThread:
		return fmt.Sprintf("failed to access %s: another thread is currently holding the lock", e.Path)
	case LockHeldByProcess:
		return fmt.Sprintf("failed to access %s: %s is still locked, delete the lock file if this is a mistake", e.Path, e.LockFile)
	case LockHeldBySentinel:
		return fmt.Sprintf("failed to access %s: lock %s still exists", e.Path, e.LockFile)
	}
	return fmt.Sprintf("failed to access %s", e.Path)
}

// Unwrap exposes the underlying error.
func (e *LockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ResolveError reports a failure to resolve a data source to a local path.
type ResolveError struct {
	Name    string
	Message string
	Err     error
}

// NewResolveError constructs a ResolveError for the named data source.
func NewResolveError(name, message string, err error) error {
	return &ResolveError{Name: name, Message: message, Err: err}
}

func (e *ResolveError) Error() string {
	if e == nil {
		return ""
	}
	if e.Name != "" {
		return fmt.Sprintf("resolve error [%s]: %s", e.Name, e.Message)
	}
	return fmt.Sprintf("resolve error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ResolveError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ReplayError represents a fatal failure while replaying a journal onto a
// parameter store.
type ReplayError struct {
	Op      string
	Keypath string
	Err     error
}

// NewReplayError constructs a ReplayError.
func NewReplayError(op, keypath string, err error) error {
	return &ReplayError{Op: op, Keypath: keypath, Err: err}
}

func (e *ReplayError) Error() string {
	if e == nil {
		return ""
	}
	if e.Keypath != "" {
		return fmt.Sprintf("replay error: %s on %s: %v", e.Op, e.Keypath, e.Err)
	}
	return fmt.Sprintf("replay error: unknown record type '%s'", e.Op)
}

// Unwrap exposes the root error.
func (e *ReplayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
