// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"iter"
)

// AppendTo appends the wire form of r to dst.
func (r *Request) AppendTo(dst []byte) []byte {
	dst = append(dst, r.Method.String()...)
	dst = append(dst, ' ')
	dst = append(dst, r.URI...)
	dst = append(dst, ' ')
	dst = append(dst, r.Version.orDefault().String()...)
	return appendRest(dst, r.Header.All(), r.Body)
}

// Bytes returns the wire form of r.
func (r *Request) Bytes() []byte {
	return r.AppendTo(make([]byte, 0, r.wireSizeHint()))
}

// WriteTo writes the wire form of r to w.
func (r *Request) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Bytes())
	return int64(n), err
}

// AppendTo appends the wire form of r to dst.
func (r *Response) AppendTo(dst []byte) []byte {
	dst = append(dst, r.Version.orDefault().String()...)
	dst = append(dst, ' ')
	dst = append(dst, r.Status.String()...)
	return appendRest(dst, r.Header.All(), r.Body)
}

// Bytes returns the wire form of r.
func (r *Response) Bytes() []byte {
	return r.AppendTo(make([]byte, 0, r.wireSizeHint()))
}

// WriteTo writes the wire form of r to w.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Bytes())
	return int64(n), err
}

// appendRest writes the CRLF ending the start line, the header lines, the
// blank line and the body.
func appendRest(dst []byte, header iter.Seq2[string, string], body []byte) []byte {
	dst = append(dst, crlf...)
	for name, value := range header {
		dst = append(dst, name...)
		dst = append(dst, fieldSeparator...)
		dst = append(dst, value...)
		dst = append(dst, crlf...)
	}
	dst = append(dst, crlf...)
	return append(dst, body...)
}

func (r *Request) wireSizeHint() int {
	return len(r.URI) + headerSizeHint(&r.Header) + len(r.Body) + 32
}

func (r *Response) wireSizeHint() int {
	return headerSizeHint(&r.Header) + len(r.Body) + 48
}

func headerSizeHint(h *Header) int {
	n := 0
	for name, value := range h.All() {
		n += len(name) + len(value) + 4
	}
	return n
}
