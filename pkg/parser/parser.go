// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/absmach/mhttp/pkg/codec"
	"github.com/absmach/mhttp/pkg/handler"
)

// Direction indicates the direction of message flow.
type Direction int

const (
	// Upstream represents requests flowing from client to backend server.
	Upstream Direction = iota

	// Downstream represents responses flowing from backend server to client.
	Downstream
)

// String returns a string representation of the direction.
func (d Direction) String() string {
	switch d {
	case Upstream:
		return "upstream"
	case Downstream:
		return "downstream"
	default:
		return "unknown"
	}
}

// Parser handles message inspection between client and backend.
//
// Parse is called in a loop for each direction of a connection. It should:
// - Read exactly one message from r
// - Process and authorize it
// - Write exactly one message to w
// - Return an error to close the connection
// - Return io.EOF for clean connection closure
type Parser interface {
	// Parse reads one message from r, processes it, and writes it to w.
	// The reader is owned by the connection, so bytes past the message stay
	// buffered for the next call.
	//
	// An upstream message that must not reach the backend is reported as a
	// *RejectError so the caller can answer the client.
	Parse(ctx context.Context, r *bufio.Reader, w io.Writer, dir Direction, h handler.Handler, hctx *handler.Context) error
}

// RejectError is returned by a Parser when a client message is refused.
// Status is the response the client should receive before the connection closes.
type RejectError struct {
	Status codec.Status
	Err    error
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("rejected with %s: %v", e.Status, e.Err)
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

// Response returns the message sent to the client.
func (e *RejectError) Response() *codec.Response {
	return codec.BuildResponse(e.Status).
		Header("Connection", "close").
		Finish()
}
