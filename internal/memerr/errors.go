// Package memerr defines the logical error taxonomy shared across the memory
// core so callers can classify failures without string matching.
package memerr

import "errors"

// StorageError wraps a failure raised by the Store.
type StorageError struct {
	Kind string // "not_open", "migration_failed", "conflict", "prepare", "execute"
	Err  error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return "storage error: " + e.Kind
	}
	return "storage error (" + e.Kind + "): " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

func NewStorageError(kind string, err error) *StorageError {
	return &StorageError{Kind: kind, Err: err}
}

// IsConflict reports whether err is a StorageError raised by a primary-key
// or uniqueness collision.
func IsConflict(err error) bool {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Kind == "conflict"
	}
	return false
}

// ParseError marks a recoverable failure to parse model output as JSON.
type ParseError struct {
	Stage string // "strict", "lenient", "extract"
	Err   error
}

func (e *ParseError) Error() string { return "parse error (" + e.Stage + "): " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// ErrExtractionEmpty is a sentinel, not a true failure: the model produced no
// extractable entries for a turn.
var ErrExtractionEmpty = errors.New("extraction produced no entries")

// CoreModelUnavailable indicates the router could not resolve a ModelService
// for the requested model. IsRetryable reports false for it, so it is
// returned without any retry.
type CoreModelUnavailable struct {
	Model string
	Err   error
}

func (e *CoreModelUnavailable) Error() string {
	return "core model unavailable: " + e.Model + ": " + e.Err.Error()
}
func (e *CoreModelUnavailable) Unwrap() error { return e.Err }

// ErrModelCallTimedOut marks a model call that was cancelled by its
// per-call deadline. It counts against the retry budget.
var ErrModelCallTimedOut = errors.New("model call timed out")

// ErrCircuitBreakerOpen is returned fast, without attempting I/O, while the
// breaker's cooldown window is active.
var ErrCircuitBreakerOpen = errors.New("circuit breaker open")

// ErrEmbedderUnavailable indicates the configured embedding backend is the
// "none" backend or failed its health probe; callers degrade to
// lexical-only behavior rather than propagating this as a fatal error.
var ErrEmbedderUnavailable = errors.New("embedder unavailable")

// IsRetryable reports whether a model-call failure should be retried under
// the MemoryService retry budget (timeouts and transient errors), as
// opposed to a permanent model error that should break out immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrModelCallTimedOut) {
		return true
	}
	var cmu *CoreModelUnavailable
	if errors.As(err, &cmu) {
		return false
	}
	return true
}
