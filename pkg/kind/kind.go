// Copyright 2026 The Scopegraph Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package kind defines the error taxonomy shared across scopegraph's
// ingestion, change tracking, and query components.
//
// scopegraph's components report failures as an *Error carrying one of
// the Kind values below, plus a human-facing Message, an optional Entity
// naming the subject of the failure, and an optional Cause explaining the
// underlying failure. *Error implements Unwrap so errors.Is/errors.As work
// across the chain. Some lower-level helpers (git delta detection,
// checkpoint persistence, the LLM provider clients) return plain wrapped
// errors instead.
package kind

import "fmt"

// Kind classifies why an operation failed.
type Kind string

const (
	// ConfigInvalid means the loaded configuration failed validation
	// (missing required field, out-of-range value, unknown provider).
	ConfigInvalid Kind = "config_invalid"

	// GraphStoreUnavailable means the graph store could not be reached at
	// all (connection refused, auth failure, DNS failure).
	GraphStoreUnavailable Kind = "graph_store_unavailable"

	// TransientGraphError means a graph store operation failed in a way
	// that retrying may resolve (deadlock, timeout, leader election).
	TransientGraphError Kind = "transient_graph_error"

	// SchemaViolation means a write was rejected by a constraint the
	// graph store enforces (uniqueness, required property).
	SchemaViolation Kind = "schema_violation"

	// ParseError means a source file could not be parsed into a ScopeInfo
	// set by the configured parser adapter.
	ParseError Kind = "parse_error"

	// ReferenceUnresolved marks a reference that could not be resolved to
	// any known scope. Callers treat this as informational, not fatal:
	// the reference is dropped rather than surfaced as a failure.
	ReferenceUnresolved Kind = "reference_unresolved"

	// LLMQuotaExceeded means the configured LLM provider rejected a
	// request due to rate limiting or quota exhaustion.
	LLMQuotaExceeded Kind = "llm_quota_exceeded"

	// LLMUnavailable means the configured LLM or embedding provider could
	// not be reached. A response that cannot be parsed is EmptySummary,
	// not LLMUnavailable.
	LLMUnavailable Kind = "llm_unavailable"

	// EmptySummary means a structured LLM response had no parseable JSON
	// object, or omitted or left empty a required field. It is returned
	// on the first such response; no caller retries it with a smaller
	// batch.
	EmptySummary Kind = "empty_summary"

	// Cancelled means the operation's context was cancelled or its
	// deadline exceeded before completion.
	Cancelled Kind = "cancelled"

	// NotFound means a mutation targeted an entity by its unique field
	// and no matching node existed (Update, and AddRelationship for either
	// endpoint). Delete and RemoveRelationship treat a missing target as a
	// no-op.
	NotFound Kind = "not_found"
)

// Error is the structured error type returned by scopegraph components.
type Error struct {
	// Kind classifies the failure for programmatic handling.
	Kind Kind

	// Message describes what went wrong in user-facing language.
	Message string

	// Entity identifies the subject of the failure when known (a uuid,
	// a file path, a provider name). Empty when not applicable.
	Entity string

	// Cause explains the underlying reason, if any, distinct from Err.
	Cause string

	// Err is the wrapped underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Entity != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Entity)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, kind.New(kind.ParseError, "")) style checks work without
// comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error of the given kind.
func New(k Kind, message string) *Error {
	return &Error{Kind: k, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping err.
func Wrap(k Kind, message string, err error) *Error {
	return &Error{Kind: k, Message: message, Err: err}
}

// WithEntity returns a copy of e with Entity set, for attaching the uuid,
// path, or provider name a failure concerns once it is known.
func (e *Error) WithEntity(entity string) *Error {
	cp := *e
	cp.Entity = entity
	return &cp
}

// WithCause returns a copy of e with Cause set.
func (e *Error) WithCause(cause string) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

// Of reports the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func Of(err error) (k Kind, ok bool) {
	var e *Error
	for err != nil {
		if ae, isA := err.(*Error); isA {
			e = ae
			break
		}
		u, isU := err.(interface{ Unwrap() error })
		if !isU {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}

// Retryable reports whether an error of this kind is worth retrying with
// backoff (§5 concurrency model: transient graph errors and LLM
// unavailability are retried; everything else is not).
func (k Kind) Retryable() bool {
	switch k {
	case TransientGraphError, LLMUnavailable:
		return true
	default:
		return false
	}
}
