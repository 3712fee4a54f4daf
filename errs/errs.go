// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package errs defines the error kinds shared by every coordination
// component and the propagation helpers built on top of them.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of the propagation policy in
// spec section 7: boundary errors never mutate state, in-session errors
// reject a single operation, and storage/transport errors drive retries or
// session failure depending on where they occur.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindNotFound
	KindUnauthorized
	KindInvalidSignature
	KindInvalidState
	KindTimeout
	KindQuorumFailure
	KindStorageFailure
	KindTransportFailure
	KindRateLimited
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidSignature:
		return "invalid_signature"
	case KindInvalidState:
		return "invalid_state"
	case KindTimeout:
		return "timeout"
	case KindQuorumFailure:
		return "quorum_failure"
	case KindStorageFailure:
		return "storage_failure"
	case KindTransportFailure:
		return "transport_failure"
	case KindRateLimited:
		return "rate_limited"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with the component and transaction it
// occurred against, so logs carry full context while callers can still
// errors.Is / errors.As against Kind and the wrapped cause.
type Error struct {
	Kind      Kind
	Component string
	TxID      string
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	if e.TxID != "" {
		return fmt.Sprintf("%s[%s]: %s: %s", e.Component, e.TxID, e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error with a formatted reason and no wrapped cause.
func New(kind Kind, component, reason string) *Error {
	return &Error{Kind: kind, Component: component, Reason: reason}
}

// Wrap constructs an Error around an existing cause.
func Wrap(kind Kind, component string, err error, reason string) *Error {
	return &Error{Kind: kind, Component: component, Reason: reason, Err: err}
}

// WithTx attaches a transaction id to an Error for logging and is a no-op
// on any other error type.
func WithTx(err error, txID string) error {
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		cp.TxID = txID
		return &cp
	}
	return err
}

// Is reports whether err carries the given Kind, unwrapping through any
// number of wrapped causes.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
