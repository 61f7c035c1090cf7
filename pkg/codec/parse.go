// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strconv"
	"unicode/utf8"
)

// ContentLength is the header that governs body size.
const ContentLength = "Content-Length"

var boundary = []byte("\r\n\r\n")

// splitMessage locates the header/body boundary and separates the start line.
// headLen is the length of the header region including the boundary.
func splitMessage(buf []byte) (startLine, block, rest []byte, headLen int, err error) {
	i := bytes.Index(buf, boundary)
	if i < 0 {
		return nil, nil, nil, 0, ErrNotEnoughData
	}
	headLen = i + len(boundary)

	head := buf[:headLen]
	if !utf8.Valid(head) {
		return nil, nil, nil, 0, ErrInvalidUTF8
	}

	startLine, block, _ = bytes.Cut(head, crlf)
	return startLine, block, buf[headLen:], headLen, nil
}

// parseBody builds the header view and slices exactly Content-Length bytes
// from rest. The body is nil when no Content-Length was declared.
func parseBody(block, rest []byte) (HeaderMap, []byte, error) {
	header, err := NewHeaderMap(block)
	if err != nil {
		return HeaderMap{}, nil, err
	}

	v, ok := header.Get(ContentLength)
	if !ok {
		return header, nil, nil
	}
	n, err := strconv.ParseUint(v, 10, strconv.IntSize-1)
	if err != nil {
		return HeaderMap{}, nil, ErrInvalidHeader
	}
	if uint64(len(rest)) < n {
		return HeaderMap{}, nil, ErrNotEnoughData
	}

	return header, rest[:n:n], nil
}
