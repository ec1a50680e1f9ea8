package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransportError wraps a network-level failure (timeout, 5xx, connection
// reset). Safe to retry.
type TransportError struct {
	Err        error
	StatusCode int
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps an error as transport-level with an optional HTTP
// status code.
func NewTransportError(err error, statusCode int) *TransportError {
	return &TransportError{Err: err, StatusCode: statusCode}
}

// ProviderRejectedError wraps a provider-side rejection: bad credentials,
// exhausted quota, invalid request. Not retryable within the same request.
type ProviderRejectedError struct {
	Err        error
	StatusCode int
}

func (e *ProviderRejectedError) Error() string {
	return e.Err.Error()
}

func (e *ProviderRejectedError) Unwrap() error {
	return e.Err
}

// NewProviderRejectedError wraps an error as a provider rejection.
func NewProviderRejectedError(err error, statusCode int) *ProviderRejectedError {
	return &ProviderRejectedError{Err: err, StatusCode: statusCode}
}

// ParseFailureError marks model output that did not conform to the requested
// schema. Treated downstream as a zero-confidence candidate, not a hard
// failure, and never counted by the circuit breaker.
type ParseFailureError struct {
	Err error
	Raw string
}

func (e *ParseFailureError) Error() string {
	return e.Err.Error()
}

func (e *ParseFailureError) Unwrap() error {
	return e.Err
}

// NewParseFailureError wraps an error as a parse failure, keeping the raw
// model output for diagnostics.
func NewParseFailureError(err error, raw string) *ParseFailureError {
	return &ParseFailureError{Err: err, Raw: raw}
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransportError, or if it matches common transient network patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsRejected returns true if the error chain contains a provider rejection.
func IsRejected(err error) bool {
	var pe *ProviderRejectedError
	return errors.As(err, &pe)
}

// IsParseFailure returns true if the error chain contains a parse failure.
func IsParseFailure(err error) bool {
	var pf *ParseFailureError
	return errors.As(err, &pf)
}

// CountsAsFailure reports whether an error should count against a provider's
// circuit breaker. Parse failures are the model declining to cooperate, not a
// provider outage; cancellation and circuit-open rejections never count.
func CountsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if IsParseFailure(err) {
		return false
	}
	return true
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
