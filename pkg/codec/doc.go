// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package codec converts HTTP/1.x messages between raw bytes and structured
// values. It performs no I/O and keeps no state between calls, so every
// function is safe for concurrent use on distinct inputs.
//
// # Parsing
//
// ParseRequest and ParseResponse take a buffer that starts with a message:
//
//	req, err := codec.ParseRequest(buf)
//	switch {
//	case codec.IsNotEnoughData(err):
//		// read more bytes into buf and parse again
//	case err != nil:
//		// malformed: answer 400 Bad Request
//	default:
//		buf = buf[req.Size():] // the rest belongs to the next message
//	}
//
// The body is exactly Content-Length bytes long; a message without
// Content-Length has no body. Chunked transfer coding is not supported.
//
// # Owned and borrowed messages
//
// Request and Response own their data. RawRequest and RawResponse, returned by
// ParseRawRequest and ParseRawResponse, alias the input buffer instead and are
// only valid until that buffer changes. Code that reads into a reused buffer
// must use the owned forms (or call Own).
//
// # Building
//
//	b := codec.OK().Header("Content-Type", "text/plain")
//	fmt.Fprint(b, "Hello World")
//	wire := b.Bytes() // "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 11\r\n\r\nHello World"
//
// Builders never fail. Finish fills in the default version (HTTP/1.1), the
// default request URI ("/") and the Content-Length header, which is omitted
// entirely for an empty body. A builder can be finished only once.
//
// # Errors
//
// Parse errors are *ParseError values wrapping one of ErrNotEnoughData,
// ErrInvalidUTF8 or ErrInvalidHeader. Only ErrNotEnoughData means the input
// may still become a valid message.
package codec
