package model

import (
	"errors"
	"fmt"
)

// ErrKind is the component-agnostic error taxonomy from the error-handling
// design: every failure from an exchange adapter is classified into one of
// these kinds so retry policy can dispatch on it without string matching.
type ErrKind string

const (
	KindNetwork  ErrKind = "network"
	KindRateLim  ErrKind = "rate_limited"
	KindTimeout  ErrKind = "timeout"
	KindExchange ErrKind = "exchange_error"
	KindParse    ErrKind = "parse_error"
	KindServer   ErrKind = "server_error"
)

// CollectorError is a typed, wrapped error carrying the retry-relevant
// classification plus exchange context. Use errors.As to recover one from a
// wrapped error chain.
type CollectorError struct {
	Kind       ErrKind
	Exchange   string
	Endpoint   string
	StatusCode int
	RetryAfter int // seconds, 0 if not supplied by the server
	Err        error
}

func (e *CollectorError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s %s", e.Kind, e.Exchange, e.Endpoint)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Exchange, e.Endpoint, e.Err)
}

func (e *CollectorError) Unwrap() error { return e.Err }

// NewCollectorError builds a CollectorError wrapping err with component
// context. err may be nil for synthetic classifications (e.g. a parsed
// Retry-After header with no underlying Go error).
func NewCollectorError(kind ErrKind, exchange, endpoint string, statusCode int, err error) *CollectorError {
	return &CollectorError{Kind: kind, Exchange: exchange, Endpoint: endpoint, StatusCode: statusCode, Err: err}
}

// Retryable reports whether the error's kind is eligible for the REST
// collector's backoff retry loop (§4.1 retry policy).
func (e *CollectorError) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindRateLim, KindServer:
		return true
	default:
		return false
	}
}

// ClassOf extracts the ErrKind from err via errors.As, defaulting to
// KindNetwork for errors that were never classified (e.g. a raw context
// deadline exceeded from a lower layer).
func ClassOf(err error) ErrKind {
	var ce *CollectorError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindNetwork
}

// ErrSequenceGap signals an order-book update id discontinuity; it is
// recoverable and triggers a resync rather than a retry (§4.3, §7).
var ErrSequenceGap = errors.New("order book sequence gap")

// ErrShutdown signals a graceful shutdown in progress; never logged as an
// error (§7 "Shutdown requested: not an error").
var ErrShutdown = errors.New("shutdown requested")
