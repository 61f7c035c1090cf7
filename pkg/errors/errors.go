// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured error handling for mhttp.
package errors

import (
	"errors"
	"fmt"

	"github.com/absmach/mhttp/pkg/codec"
)

// Common error types
var (
	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates valid credentials without permission.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput indicates invalid input data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timeout.
	ErrTimeout = errors.New("timeout")

	// ErrConnectionClosed indicates the connection was closed.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrBackendUnavailable indicates the backend is unavailable.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrRateLimited indicates rate limit exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrMessageTooLarge indicates a message did not fit in the read buffer.
	ErrMessageTooLarge = errors.New("message too large")
)

// ProxyError wraps an error with additional context.
type ProxyError struct {
	Op         string // Operation that failed
	Direction  string // upstream or downstream
	SessionID  string
	RemoteAddr string
	Err        error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s %s [%s] %s: %v", e.Direction, e.Op, e.SessionID, e.RemoteAddr, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Direction, e.Op, e.RemoteAddr, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Err
}

// New creates a new ProxyError.
func New(op, direction, sessionID, remoteAddr string, err error) error {
	if err == nil {
		return nil
	}
	return &ProxyError{
		Op:         op,
		Direction:  direction,
		SessionID:  sessionID,
		RemoteAddr: remoteAddr,
		Err:        err,
	}
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// StatusFor returns the status a client should receive for err.
func StatusFor(err error) codec.Status {
	var perr *codec.ParseError
	switch {
	case errors.As(err, &perr),
		errors.Is(err, ErrMessageTooLarge),
		errors.Is(err, ErrInvalidInput):
		return codec.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return codec.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return codec.StatusForbidden
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrBackendUnavailable),
		errors.Is(err, ErrTimeout):
		return codec.StatusServiceUnavailable
	default:
		return codec.StatusInternalServerError
	}
}
