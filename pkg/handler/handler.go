// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"crypto/x509"

	"github.com/absmach/mhttp/pkg/codec"
)

// Context contains connection metadata and credentials extracted from requests.
// It is passed to Handler methods to provide auth context.
type Context struct {
	// SessionID is a unique identifier for this connection
	SessionID string

	// Username extracted from Basic authorization
	Username string

	// Password extracted from Basic authorization, or the raw token
	Password []byte

	// RemoteAddr is the client's network address
	RemoteAddr string

	// Protocol is the wire protocol, "http" for HTTP/1.x
	Protocol string

	// Cert is the client's TLS certificate (if using mTLS)
	Cert *x509.Certificate

	// Requests counts the requests seen on this connection
	Requests uint64
}

// Handler defines authorization and notification callbacks for HTTP traffic.
// Parsers call these methods at appropriate points in the message lifecycle.
//
// Authorization methods (AuthConnect, AuthRequest) are called BEFORE
// forwarding a request to the backend. They can:
// - Return an error to reject the request
// - Modify the request (URI, headers, body) in place
// - Update the handler context
//
// Notification methods (OnConnect, OnRequest, OnResponse, OnDisconnect) are
// called for audit logging, metrics or post-processing. Errors from OnConnect,
// OnRequest and OnDisconnect are logged but don't stop the traffic. OnResponse
// may rewrite the response and an error from it drops the connection.
type Handler interface {
	// AuthConnect authorizes a client connection.
	// Called once, with the credentials of the first request.
	// Return an error to reject the connection.
	AuthConnect(ctx context.Context, hctx *Context) error

	// AuthRequest authorizes a single request.
	// The request can be modified before forwarding. Content-Length is
	// recomputed from the final body.
	// Return an error to reject the request.
	AuthRequest(ctx context.Context, hctx *Context, req *codec.Request) error

	// OnConnect is called after a successful AuthConnect.
	OnConnect(ctx context.Context, hctx *Context) error

	// OnRequest is called after a request was forwarded.
	OnRequest(ctx context.Context, hctx *Context, req *codec.Request) error

	// OnResponse is called for every backend response before it is written
	// to the client. The response can be modified.
	OnResponse(ctx context.Context, hctx *Context, res *codec.Response) error

	// OnDisconnect is called when a client disconnects (gracefully or due to error).
	OnDisconnect(ctx context.Context, hctx *Context) error
}

// NoopHandler is a Handler implementation that allows all operations.
// Useful for testing or when no authorization is needed.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) AuthConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) AuthRequest(ctx context.Context, hctx *Context, req *codec.Request) error {
	return nil
}

func (h *NoopHandler) OnConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnRequest(ctx context.Context, hctx *Context, req *codec.Request) error {
	return nil
}

func (h *NoopHandler) OnResponse(ctx context.Context, hctx *Context, res *codec.Response) error {
	return nil
}

func (h *NoopHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	return nil
}
