// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type pair struct {
	Name, Value string
}

func collect(h HeaderMap) []pair {
	var out []pair
	for k, v := range h.All() {
		out = append(out, pair{k, v})
	}
	return out
}

func TestNewHeaderMap_MissingDelimiter(t *testing.T) {
	for _, block := range []string{
		"Key1: V1\r\nKey2\r\n",
		"Key1:V1",
		"Key1: V1\r\n: \r\nBroken\r\n",
	} {
		if _, err := NewHeaderMap([]byte(block)); !errors.Is(err, ErrInvalidHeader) {
			t.Errorf("NewHeaderMap(%q) error = %v, want ErrInvalidHeader", block, err)
		}
	}
}

func TestNewHeaderMap_LastWins(t *testing.T) {
	h, err := NewHeaderMap([]byte("Key1: V1\r\nKey1: V2\r\n"))
	if err != nil {
		t.Fatalf("NewHeaderMap() error = %v", err)
	}

	if v, ok := h.Get("Key1"); !ok || v != "V2" {
		t.Errorf("Get(Key1) = %q, %v, want V2", v, ok)
	}
	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.Len())
	}
	if diff := cmp.Diff([]pair{{"Key1", "V2"}}, collect(h)); diff != "" {
		t.Errorf("All() mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderMap_Lookup(t *testing.T) {
	h, err := NewHeaderMap([]byte("  \r\nHost: example.com\r\n\r\nAccept: */*\r\nX-Colon: a: b\r\n\r\n  "))
	if err != nil {
		t.Fatalf("NewHeaderMap() error = %v", err)
	}

	if h.Len() != 3 || h.IsEmpty() {
		t.Errorf("Len() = %d, IsEmpty() = %v", h.Len(), h.IsEmpty())
	}
	if !h.Contains("Host") || h.Contains("host") {
		t.Error("lookup must be exact and case-sensitive")
	}
	if v, _ := h.Get("X-Colon"); v != "a: b" {
		t.Errorf("Get(X-Colon) = %q, want split on first delimiter", v)
	}
	if _, ok := h.Get("Missing"); ok {
		t.Error("Get(Missing) should report absence")
	}

	want := []pair{{"Host", "example.com"}, {"Accept", "*/*"}, {"X-Colon", "a: b"}}
	if diff := cmp.Diff(want, collect(h)); diff != "" {
		t.Errorf("All() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, collect(h)); diff != "" {
		t.Errorf("second All() mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderMap_AllOrderWithDuplicates(t *testing.T) {
	h, err := NewHeaderMap([]byte("A: 1\r\nB: 2\r\nA: 3"))
	if err != nil {
		t.Fatalf("NewHeaderMap() error = %v", err)
	}

	want := []pair{{"B", "2"}, {"A", "3"}}
	if diff := cmp.Diff(want, collect(h)); diff != "" {
		t.Errorf("All() mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderMap_Empty(t *testing.T) {
	for _, block := range []string{"", "\r\n", "  \r\n\r\n "} {
		h, err := NewHeaderMap([]byte(block))
		if err != nil {
			t.Fatalf("NewHeaderMap(%q) error = %v", block, err)
		}
		if !h.IsEmpty() || h.Len() != 0 {
			t.Errorf("NewHeaderMap(%q) should be empty", block)
		}
	}
}

func TestHeaderMap_TrailingWhitespaceValues(t *testing.T) {
	cases := []struct {
		block string
		want  []pair
	}{
		{"X-Empty: \r\n\r\n", []pair{{"X-Empty", ""}}},
		{"A: 1\r\nX-Pad: a \r\n\r\n  ", []pair{{"A", "1"}, {"X-Pad", "a "}}},
		{"X-Tab: \t", []pair{{"X-Tab", "\t"}}},
	}

	for _, tc := range cases {
		h, err := NewHeaderMap([]byte(tc.block))
		if err != nil {
			t.Fatalf("NewHeaderMap(%q) error = %v", tc.block, err)
		}
		if diff := cmp.Diff(tc.want, collect(h)); diff != "" {
			t.Errorf("NewHeaderMap(%q) mismatch (-want +got):\n%s", tc.block, diff)
		}
	}
}

func TestHeaderMap_BorrowsAndClones(t *testing.T) {
	buf := []byte("Name: value")
	h, err := NewHeaderMap(buf)
	if err != nil {
		t.Fatalf("NewHeaderMap() error = %v", err)
	}
	owned := h.Clone()

	copy(buf[6:], "VALUE")

	if v, _ := h.Get("Name"); v != "VALUE" {
		t.Errorf("borrowed Get() = %q, want view of the modified buffer", v)
	}
	if v, _ := owned.Get("Name"); v != "value" {
		t.Errorf("owned Get() = %q, want original value", v)
	}
}

func TestHeader_SetDelOrder(t *testing.T) {
	var h Header
	if !h.IsEmpty() {
		t.Fatal("zero Header should be empty")
	}

	h.Set("A", "1")
	h.Set("B", "2")
	h.Set("C", "3")
	h.Set("A", "4")
	h.Del("B")
	h.Del("Missing")

	var got []pair
	for k, v := range h.All() {
		got = append(got, pair{k, v})
	}
	want := []pair{{"A", "4"}, {"C", "3"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("All() mismatch (-want +got):\n%s", diff)
	}
	if h.Len() != 2 || !h.Contains("C") || h.Contains("B") {
		t.Errorf("unexpected header state: %+v", h)
	}
}

func TestHeader_CloneAndEqual(t *testing.T) {
	var a Header
	a.Set("X", "1")
	a.Set("Y", "2")

	b := a.Clone()
	b.Set("X", "changed")
	if v, _ := a.Get("X"); v != "1" {
		t.Errorf("Clone shares storage: a[X] = %q", v)
	}

	var c Header
	c.Set("Y", "2")
	c.Set("X", "1")
	if !a.Equal(c) {
		t.Error("Equal should ignore order")
	}
	if a.Equal(b) {
		t.Error("Equal should compare values")
	}
}

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader([]byte("K: 1\r\nK: 2\r\nL: 3\r\n"))
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if v, _ := h.Get("K"); v != "2" || h.Len() != 2 {
		t.Errorf("ParseHeader() = %+v", h)
	}

	if _, err := ParseHeader([]byte("bad")); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("ParseHeader(bad) error = %v", err)
	}
}
