// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrNotEnoughData indicates the buffer does not yet hold a complete message.
	// It is the only error after which the caller should read more bytes and
	// parse the same buffer again.
	ErrNotEnoughData = errors.New("not enough data")

	// ErrInvalidUTF8 indicates the header region is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid utf-8")

	// ErrInvalidHeader indicates a malformed start line, header line or Content-Length.
	ErrInvalidHeader = errors.New("invalid header")

	// ErrUnknownStatus indicates a status code outside the supported set.
	ErrUnknownStatus = fmt.Errorf("%w: unknown status code", ErrInvalidHeader)
)

// ParseError is returned by the message parsers.
type ParseError struct {
	Message string // "request" or "response"
	Err     error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Message, e.Err)
}

// Unwrap returns the underlying error kind.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsNotEnoughData reports whether err means more input is needed.
func IsNotEnoughData(err error) bool {
	return errors.Is(err, ErrNotEnoughData)
}

func parseError(message string, err error) error {
	return &ParseError{Message: message, Err: err}
}
