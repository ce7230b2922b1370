package aisdk

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies a terminal error event.
type ErrorKind string

const (
	KindNetwork                 ErrorKind = "network"
	KindHTTP                    ErrorKind = "http"
	KindDecode                  ErrorKind = "decode_error"
	KindToolExecution           ErrorKind = "tool_execution"
	KindToolDepthExceeded       ErrorKind = "tool_depth_exceeded"
	KindInvalidStructuredOutput ErrorKind = "invalid_structured_output"
	KindExhausted               ErrorKind = "exhausted"
	KindCancelled               ErrorKind = "cancelled"
	KindRateLimited             ErrorKind = "rate_limited"
	KindInternal                ErrorKind = "internal"
)

// Common error variables
var (
	// ErrDecode indicates a structurally invalid stream unit
	ErrDecode = errors.New("malformed stream unit")

	// ErrToolDepthExceeded indicates the tool loop hit its configured maximum
	ErrToolDepthExceeded = errors.New("tool call depth exceeded")

	// ErrInvalidStructuredOutput indicates a strict monadic response did not parse
	ErrInvalidStructuredOutput = errors.New("invalid structured output")

	// ErrRateLimited indicates the caller exceeded its request budget
	ErrRateLimited = errors.New("rate limited")

	// ErrUnknownVendor indicates no adapter is registered under the name
	ErrUnknownVendor = errors.New("unknown vendor")
)

// Error is the payload of a terminal error event.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an Error from a cause, deriving the message from it.
func NewError(kind ErrorKind, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// AsError classifies an arbitrary error into an Error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var apiErr *APIError
	var netErr *NetworkError
	switch {
	case errors.Is(err, context.Canceled):
		return NewError(KindCancelled, err)
	case errors.Is(err, ErrDecode):
		return NewError(KindDecode, err)
	case errors.Is(err, ErrToolDepthExceeded):
		return NewError(KindToolDepthExceeded, err)
	case errors.Is(err, ErrInvalidStructuredOutput):
		return NewError(KindInvalidStructuredOutput, err)
	case errors.Is(err, ErrRateLimited):
		return NewError(KindRateLimited, err)
	case errors.As(err, &apiErr):
		return NewError(KindHTTP, err)
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return NewError(KindNetwork, err)
	}
	return NewError(KindInternal, err)
}

// APIError represents a non-2xx response from a vendor API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	Code       string
	RequestID  string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error is retryable.
func (e *APIError) IsRetryable() bool {
	// 5xx errors are generally retryable
	if e.StatusCode >= 500 && e.StatusCode < 600 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests
}

// IsRateLimit returns true if this is a rate limit error.
func (e *APIError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == "rate_limit_exceeded"
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ParseRetryAfter reads a Retry-After header given in seconds.
func ParseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// NetworkError wraps a transport failure: dial, TLS, reset, or read timeout.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var opErr net.Error
	return errors.As(err, &opErr)
}
