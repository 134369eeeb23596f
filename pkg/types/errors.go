package types

import (
	"errors"
	"fmt"
)

// DataError marks a market record that cannot be evaluated (missing fields or settled prices).
// Detectors skip the record; the scan cycle continues.
type DataError struct {
	MarketID string
	Field    string
	Reason   string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("market %s: invalid %s: %s", e.MarketID, e.Field, e.Reason)
}

// ExternalServiceError is returned when an auxiliary feed cannot be reached.
// Detectors that depend on the feed emit nothing for the current cycle.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// ExecutionErrorKind separates retryable failures from terminal ones.
type ExecutionErrorKind int

const (
	// Transient covers network errors, timeouts and venue overload. Retried with backoff.
	Transient ExecutionErrorKind = iota
	// Permanent covers invalid markets and insufficient funds. Never retried.
	Permanent
)

func (k ExecutionErrorKind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// ExecutionError represents an error that occurred during order placement.
type ExecutionError struct {
	Kind    ExecutionErrorKind
	Code    string // API error code or internal error code
	Message string // Human-readable error message
	OrderID string // Order ID if available
	Err     error
}

func (e *ExecutionError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.OrderID != "" {
		return fmt.Sprintf("%s order failure (ID: %s): %s (%s)", e.Kind, e.OrderID, msg, e.Code)
	}
	return fmt.Sprintf("%s order failure: %s (%s)", e.Kind, msg, e.Code)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a retryable execution failure.
func NewTransientError(code string, err error) *ExecutionError {
	return &ExecutionError{Kind: Transient, Code: code, Err: err}
}

// NewPermanentError builds a non-retryable execution failure.
func NewPermanentError(code string, message string) *ExecutionError {
	return &ExecutionError{Kind: Permanent, Code: code, Message: message}
}

// IsTransient reports whether err (or anything it wraps) is a transient execution error.
func IsTransient(err error) bool {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind == Transient
	}
	return false
}

// IsPermanent reports whether err is a permanent execution error.
func IsPermanent(err error) bool {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind == Permanent
	}
	return false
}

// Known Polymarket CLOB API error codes
const (
	ErrInvalidMinTickSize = "INVALID_ORDER_MIN_TICK_SIZE"
	ErrNotEnoughBalance   = "INVALID_ORDER_NOT_ENOUGH_BALANCE"
	ErrFOKNotFilled       = "FOK_ORDER_NOT_FILLED_ERROR"
	ErrMarketNotReady     = "MARKET_NOT_READY"
	ErrUnmatched          = "UNMATCHED"
	ErrUnknownStatus      = "UNKNOWN_STATUS"

	// Internal codes.
	ErrCodeNetwork     = "NETWORK"
	ErrCodeTimeout     = "TIMEOUT"
	ErrCodeRateLimited = "RATE_LIMITED"
	ErrCodeServer      = "SERVER_ERROR"
	ErrCodeInvalidLeg  = "INVALID_LEG"
	ErrCodeRejected    = "REJECTED"
)

// ClassifyCLOBError maps a CLOB error code to the execution error kind.
func ClassifyCLOBError(code string) ExecutionErrorKind {
	switch code {
	case ErrUnmatched, ErrFOKNotFilled, ErrCodeNetwork, ErrCodeTimeout, ErrCodeRateLimited, ErrCodeServer:
		return Transient
	default:
		return Permanent
	}
}
