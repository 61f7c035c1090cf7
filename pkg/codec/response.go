// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
)

// Response is an owned HTTP response. Body is nil when the response declared
// no Content-Length, and empty but non-nil for "Content-Length: 0".
type Response struct {
	Version Version
	Status  Status
	Header  Header
	Body    []byte

	size int
}

// Size returns the number of input bytes consumed when the response was parsed.
func (r *Response) Size() int {
	return r.size
}

// RawResponse is a response whose header block and body alias the parsed buffer.
type RawResponse struct {
	Version Version
	Status  Status
	Header  HeaderMap
	Body    []byte

	size int
}

// Size returns the number of input bytes consumed by the response.
func (r *RawResponse) Size() int {
	return r.size
}

// Own copies r into a Response that is independent of the parsed buffer.
func (r *RawResponse) Own() *Response {
	return &Response{
		Version: r.Version,
		Status:  r.Status,
		Header:  r.Header.Clone(),
		Body:    bytes.Clone(r.Body),
		size:    r.size,
	}
}

// ParseResponse parses the response at the start of buf into an owned Response.
// Errors follow the same taxonomy as ParseRequest; an unsupported status code
// yields ErrUnknownStatus, which is also an ErrInvalidHeader.
func ParseResponse(buf []byte) (*Response, error) {
	raw, err := ParseRawResponse(buf)
	if err != nil {
		return nil, err
	}
	return raw.Own(), nil
}

// ParseRawResponse parses the response at the start of buf without copying.
func ParseRawResponse(buf []byte) (*RawResponse, error) {
	startLine, block, rest, headLen, err := splitMessage(buf)
	if err != nil {
		return nil, parseError("response", err)
	}

	version, status, ok := strings.Cut(bytesView(startLine), " ")
	if !ok {
		return nil, parseError("response", ErrInvalidHeader)
	}
	v, err := ParseVersion(strings.TrimSpace(version))
	if err != nil {
		return nil, parseError("response", err)
	}
	st, err := ParseStatus(strings.TrimSpace(status))
	if err != nil {
		return nil, parseError("response", err)
	}

	header, body, err := parseBody(block, rest)
	if err != nil {
		return nil, parseError("response", err)
	}

	return &RawResponse{
		Version: v,
		Status:  st,
		Header:  header,
		Body:    body,
		size:    headLen + len(body),
	}, nil
}
