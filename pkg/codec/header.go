// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import "iter"

// Header is an owned header collection with unique, case-sensitive names.
// It keeps insertion order; Set on an existing name replaces the value in place.
// The zero value is an empty Header ready to use.
type Header struct {
	fields []field
}

type field struct {
	name  string
	value string
}

// ParseHeader builds an owned Header from a raw header block using the same
// rules as NewHeaderMap.
func ParseHeader(block []byte) (Header, error) {
	hm, err := NewHeaderMap(block)
	if err != nil {
		return Header{}, err
	}
	return hm.Clone(), nil
}

// Get returns the value of the named header.
func (h *Header) Get(name string) (string, bool) {
	if i := h.index(name); i >= 0 {
		return h.fields[i].value, true
	}
	return "", false
}

// Contains reports whether the named header is present.
func (h *Header) Contains(name string) bool {
	return h.index(name) >= 0
}

// Set assigns value to name, replacing any previous value.
func (h *Header) Set(name, value string) {
	if i := h.index(name); i >= 0 {
		h.fields[i].value = value
		return
	}
	h.fields = append(h.fields, field{name: name, value: value})
}

// Del removes the named header.
func (h *Header) Del(name string) {
	if i := h.index(name); i >= 0 {
		h.fields = append(h.fields[:i], h.fields[i+1:]...)
	}
}

// Len returns the number of headers.
func (h *Header) Len() int {
	return len(h.fields)
}

// IsEmpty reports whether there are no headers.
func (h *Header) IsEmpty() bool {
	return len(h.fields) == 0
}

// All yields the headers in insertion order.
func (h *Header) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, f := range h.fields {
			if !yield(f.name, f.value) {
				return
			}
		}
	}
}

// Clone returns a deep copy of h.
func (h *Header) Clone() Header {
	if h.fields == nil {
		return Header{}
	}
	return Header{fields: append([]field(nil), h.fields...)}
}

// Equal reports whether h and other hold the same name/value pairs,
// regardless of order.
func (h Header) Equal(other Header) bool {
	if len(h.fields) != len(other.fields) {
		return false
	}
	for _, f := range h.fields {
		if v, ok := other.Get(f.name); !ok || v != f.value {
			return false
		}
	}
	return true
}

func (h *Header) index(name string) int {
	for i := range h.fields {
		if h.fields[i].name == name {
			return i
		}
	}
	return -1
}
