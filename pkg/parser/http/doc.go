// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package http implements the HTTP/1.x message parser for mhttp.
//
// # Overview
//
// The parser reads whole messages with package wire, hands them to the
// handler and re-serializes them with the codec builders. Bodies are framed
// by Content-Length only, and the header sent on is recomputed from the body
// a handler leaves behind.
//
// # Authentication Sources
//
// Credentials are taken from the first request of a connection, in order of
// precedence:
//
//  1. HTTP Basic Auth header:
//     Authorization: Basic base64(username:password)
//
//  2. Authorization query parameter:
//     /path?authorization=token123
//
//  3. Authorization header (Bearer token, etc.):
//     Authorization: Bearer token123
//
// # Request Flow
//
//	1. Client sends a request
//	2. First request only: credentials extracted, handler.AuthConnect()
//	3. handler.AuthRequest() may rewrite the request
//	4. Request forwarded to the backend
//	5. handler.OnRequest()
//	6. Backend response read, handler.OnResponse(), forwarded to the client
//
// # Rejections
//
// A malformed or oversized request becomes a *parser.RejectError with status
// 400. Failed authorization yields 401 for AuthConnect and 403 for
// AuthRequest unless the handler error maps to a more specific status via
// errors.StatusFor. A malformed backend response yields 500.
package http
