// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tcp implements the TCP proxy server for mhttp.
//
// # Connection Flow
//
//  1. Client connects to server
//  2. Server dials the backend (through Config.Dial and Config.Breaker)
//  3. Server spawns two goroutines, each with its own bufio.Reader of
//     MaxMessageSize bytes:
//     - Upstream: Client → Backend (calls parser.Parse(Upstream))
//     - Downstream: Backend → Client (calls parser.Parse(Downstream))
//  4. When the client stops sending, outstanding responses are drained
//  5. A *parser.RejectError is answered with its response
//  6. Server calls handler.OnDisconnect()
//  7. Backend connection is closed, or returned to its pool when it sits
//     on a message boundary
//
// A backend that cannot be dialed, including an open circuit breaker, is
// answered with 503 Service Unavailable.
//
// # Graceful Shutdown
//
// When the context is canceled:
//
//  1. Server stops accepting new connections
//  2. Server waits for existing connections (with timeout)
//  3. After ShutdownTimeout, forcefully closes remaining connections
//  4. Returns ErrShutdownTimeout if timeout exceeded
//
// # Example
//
//	cfg := tcp.Config{
//		Address:         ":8080",
//		TargetAddress:   "localhost:8081",
//		MaxMessageSize:  64 << 10,
//		ShutdownTimeout: 30 * time.Second,
//	}
//
//	server := tcp.New(cfg, http.New(), handler)
//	if err := server.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
package tcp
