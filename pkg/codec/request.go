// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
)

// Request is an owned HTTP request. Its fields do not reference the buffer it
// was parsed from.
type Request struct {
	Method  Method
	URI     string
	Version Version
	Header  Header
	Body    []byte

	size int
}

// Size returns the number of input bytes consumed when the request was parsed.
// Bytes past Size belong to the next message on the connection.
func (r *Request) Size() int {
	return r.size
}

// RawRequest is a request whose URI, header block and body alias the parsed
// buffer. It must not be used after the buffer is modified or reused.
type RawRequest struct {
	Method  Method
	URI     string
	Version Version
	Header  HeaderMap
	Body    []byte

	size int
}

// Size returns the number of input bytes consumed by the request.
func (r *RawRequest) Size() int {
	return r.size
}

// Own copies r into a Request that is independent of the parsed buffer.
func (r *RawRequest) Own() *Request {
	return &Request{
		Method:  r.Method,
		URI:     strings.Clone(r.URI),
		Version: r.Version,
		Header:  r.Header.Clone(),
		Body:    bytes.Clone(r.Body),
		size:    r.size,
	}
}

// ParseRequest parses the request at the start of buf into an owned Request.
//
// It returns an error wrapping ErrNotEnoughData when buf does not yet hold the
// whole request, ErrInvalidUTF8 when the header region is not UTF-8, and
// ErrInvalidHeader for any other malformation.
func ParseRequest(buf []byte) (*Request, error) {
	raw, err := ParseRawRequest(buf)
	if err != nil {
		return nil, err
	}
	return raw.Own(), nil
}

// ParseRawRequest parses the request at the start of buf without copying.
func ParseRawRequest(buf []byte) (*RawRequest, error) {
	startLine, block, rest, headLen, err := splitMessage(buf)
	if err != nil {
		return nil, parseError("request", err)
	}

	tokens := strings.Fields(bytesView(startLine))
	if len(tokens) != 3 {
		return nil, parseError("request", ErrInvalidHeader)
	}
	method, err := ParseMethod(tokens[0])
	if err != nil {
		return nil, parseError("request", err)
	}
	version, err := ParseVersion(tokens[2])
	if err != nil {
		return nil, parseError("request", err)
	}

	header, body, err := parseBody(block, rest)
	if err != nil {
		return nil, parseError("request", err)
	}

	return &RawRequest{
		Method:  method,
		URI:     tokens[1],
		Version: version,
		Header:  header,
		Body:    body,
		size:    headLen + len(body),
	}, nil
}
