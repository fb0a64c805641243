// Package apperr defines the error kinds from spec.md §7 and the structured
// error object returned to callers when a request fails.
package apperr

import (
	"errors"
	"fmt"
)

// Code is one of the error kinds enumerated in spec.md §7.
type Code string

const (
	CodeInvalidRequest       Code = "InvalidRequest"
	CodeStoreUnavailable     Code = "StoreUnavailable"
	CodeProviderUnavailable  Code = "ProviderUnavailable"
	CodeAgentTimeout         Code = "AgentTimeout"
	CodeAgentError           Code = "AgentError"
	CodeOrchestrationTimeout Code = "OrchestrationTimeout"
	CodeUnknownWorkflow      Code = "UnknownWorkflow"
	CodeOverloaded           Code = "Overloaded"
)

// Error is the structured error surfaced to callers: {code, message,
// query_id, partial_metrics?}.
type Error struct {
	Code           Code
	Message        string
	QueryID        string
	PartialMetrics any // *metrics.EnhancedResponse, set by the dispatcher when available
	Cause          error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithQueryID returns a copy of e with QueryID set.
func (e *Error) WithQueryID(queryID string) *Error {
	cp := *e
	cp.QueryID = queryID
	return &cp
}

// WithPartialMetrics returns a copy of e carrying partial metrics for
// caller-side correlation.
func (e *Error) WithPartialMetrics(m any) *Error {
	cp := *e
	cp.PartialMetrics = m
	return &cp
}

// Is reports whether err carries the given code, unwrapping as needed.
func Is(err error, code Code) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// HTTPStatus maps a Code to the HTTP status class named in spec.md §7.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidRequest:
		return 400
	case CodeOverloaded:
		return 503
	case CodeProviderUnavailable, CodeStoreUnavailable:
		return 502
	case CodeUnknownWorkflow, CodeAgentTimeout, CodeAgentError, CodeOrchestrationTimeout:
		return 500
	default:
		return 500
	}
}
