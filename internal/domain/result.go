package domain

import (
	"encoding/json"
)

// FailureKind classifies why a Result failed.
type FailureKind string

const (
	FailureInvalidInput     FailureKind = "invalid_input"
	FailureEmptyResponse    FailureKind = "empty_response"
	FailureMaxRetries       FailureKind = "max_retries"
	FailureNotHealthRelated FailureKind = "not_health_related"
	FailureMissingFields    FailureKind = "missing_fields"
	FailureParse            FailureKind = "parse_failure"
	FailureUnexpected       FailureKind = "unexpected"
)

// Result is the outcome of one logical operation: either a success carrying
// data or a failure carrying a message. The zero value is a failure of kind
// FailureUnexpected with no message; build values with Succeed or Fail.
type Result[T any] struct {
	ok      bool
	data    T
	kind    FailureKind
	message string
}

// Succeed returns a successful Result holding data.
func Succeed[T any](data T) Result[T] {
	return Result[T]{ok: true, data: data}
}

// Fail returns a failed Result.
func Fail[T any](kind FailureKind, message string) Result[T] {
	return Result[T]{kind: kind, message: message}
}

// Ok reports whether the operation succeeded.
func (r Result[T]) Ok() bool { return r.ok }

// Data returns the payload and whether it is present.
func (r Result[T]) Data() (T, bool) {
	return r.data, r.ok
}

// Message returns the failure message; empty on success.
func (r Result[T]) Message() string { return r.message }

// Kind returns the failure classification; empty on success.
func (r Result[T]) Kind() FailureKind {
	if r.ok {
		return ""
	}
	if r.kind == "" {
		return FailureUnexpected
	}
	return r.kind
}

// Recast carries a failure over to a Result of another payload type.
// It must only be called on failures.
func Recast[U, T any](r Result[T]) Result[U] {
	return Fail[U](r.Kind(), r.message)
}

type resultJSON[T any] struct {
	Success bool        `json:"success"`
	Data    *T          `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Kind    FailureKind `json:"kind,omitempty"`
}

// MarshalJSON renders {"success":true,"data":...} or
// {"success":false,"message":...,"kind":...}.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if r.ok {
		data := r.data
		return json.Marshal(resultJSON[T]{Success: true, Data: &data})
	}
	return json.Marshal(resultJSON[T]{Message: r.message, Kind: r.Kind()})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Result[T]) UnmarshalJSON(b []byte) error {
	var raw resultJSON[T]
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Success {
		var data T
		if raw.Data != nil {
			data = *raw.Data
		}
		*r = Succeed(data)
		return nil
	}
	*r = Fail[T](raw.Kind, raw.Message)
	return nil
}
