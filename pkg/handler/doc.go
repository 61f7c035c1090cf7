// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the interface that links the HTTP parser to business logic.
//
// # Data Flow
//
//	Client → Parser (extracts auth) → Handler (authorizes) → Server → Backend
//	Backend → Server → Parser → Handler (notifies, may rewrite) → Client
//
// # Handler Methods
//
// Authorization methods are called before a request is forwarded:
//   - AuthConnect: verifies client credentials on the first request
//   - AuthRequest: authorizes, and may rewrite, every request
//
// Notification methods:
//   - OnConnect: successful connection
//   - OnRequest: request forwarded
//   - OnResponse: backend response about to reach the client
//   - OnDisconnect: connection closed
//
// # Example
//
//	type ACL struct {
//		handler.NoopHandler
//		tokens map[string]string
//	}
//
//	func (a *ACL) AuthRequest(ctx context.Context, hctx *handler.Context, req *codec.Request) error {
//		if req.Method != codec.MethodGet && a.tokens[string(hctx.Password)] == "" {
//			return errors.ErrForbidden
//		}
//		req.Header.Set("X-User", a.tokens[string(hctx.Password)])
//		return nil
//	}
package handler
