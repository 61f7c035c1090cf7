// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"iter"
	"strings"
	"unsafe"
)

var (
	crlf           = []byte("\r\n")
	fieldSeparator = []byte(": ")
)

// HeaderMap is a read-only view over a raw header block. It never copies the
// block, so it is only valid while the buffer it was built from is unchanged.
// When a name occurs more than once the last occurrence wins.
type HeaderMap struct {
	block []byte
	n     int
}

// NewHeaderMap validates block and returns a view over it. Leading
// whitespace, trailing blank lines and empty lines are ignored; every other
// line must contain ": ". Values keep their trailing whitespace.
func NewHeaderMap(block []byte) (HeaderMap, error) {
	block = trimBlock(block)

	seen := make(map[string]struct{})
	for line := range headerLines(block) {
		name, _, ok := bytes.Cut(line, fieldSeparator)
		if !ok {
			return HeaderMap{}, ErrInvalidHeader
		}
		seen[bytesView(name)] = struct{}{}
	}

	return HeaderMap{block: block, n: len(seen)}, nil
}

// Get returns the value of the named header. Names are case-sensitive.
func (h HeaderMap) Get(name string) (value string, ok bool) {
	for k, v := range h.fields() {
		if bytesView(k) == name {
			value, ok = bytesView(v), true
		}
	}
	return value, ok
}

// Contains reports whether the named header is present.
func (h HeaderMap) Contains(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Len returns the number of distinct header names.
func (h HeaderMap) Len() int {
	return h.n
}

// IsEmpty reports whether there are no headers.
func (h HeaderMap) IsEmpty() bool {
	return h.n == 0
}

// All yields every distinct name with its effective value, in order of the
// name's last occurrence. Each call starts over from the stored block.
func (h HeaderMap) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		rest := h.block
		for len(rest) > 0 {
			var line []byte
			line, rest = nextLine(rest)
			name, value, ok := bytes.Cut(line, fieldSeparator)
			if !ok || redefined(name, rest) {
				continue
			}
			if !yield(bytesView(name), bytesView(value)) {
				return
			}
		}
	}
}

// Raw returns the trimmed header block the map was built from.
func (h HeaderMap) Raw() []byte {
	return h.block
}

// Clone copies the headers into an owned Header.
func (h HeaderMap) Clone() Header {
	var hdr Header
	hdr.fields = make([]field, 0, h.n)
	for k, v := range h.All() {
		hdr.fields = append(hdr.fields, field{name: strings.Clone(k), value: strings.Clone(v)})
	}
	return hdr
}

func (h HeaderMap) fields() iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		for line := range headerLines(h.block) {
			name, value, _ := bytes.Cut(line, fieldSeparator)
			if !yield(name, value) {
				return
			}
		}
	}
}

// redefined reports whether name appears again in the remaining lines.
func redefined(name, rest []byte) bool {
	for line := range headerLines(rest) {
		if k, _, ok := bytes.Cut(line, fieldSeparator); ok && bytes.Equal(k, name) {
			return true
		}
	}
	return false
}

// trimBlock drops leading whitespace and any whitespace after the CRLF that
// ends the last non-blank line.
func trimBlock(b []byte) []byte {
	b = bytes.TrimLeft(b, " \t\r\n")
	last := len(bytes.TrimRight(b, " \t\r\n"))
	if i := bytes.Index(b[last:], crlf); i >= 0 {
		return b[:last+i]
	}
	return b
}

// headerLines yields the non-empty CRLF separated lines of b.
func headerLines(b []byte) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for len(b) > 0 {
			var line []byte
			line, b = nextLine(b)
			if len(line) == 0 {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}

func nextLine(b []byte) (line, rest []byte) {
	line, rest, _ = bytes.Cut(b, crlf)
	return line, rest
}

// bytesView returns a string sharing memory with b.
func bytesView(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}
