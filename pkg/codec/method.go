// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

// Method is an HTTP request method.
type Method uint8

const (
	MethodGet Method = iota + 1
	MethodPost
	MethodPut
	MethodDelete
)

// ParseMethod maps a wire token to a Method. Matching is exact and case-sensitive.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "GET":
		return MethodGet, nil
	case "POST":
		return MethodPost, nil
	case "PUT":
		return MethodPut, nil
	case "DELETE":
		return MethodDelete, nil
	default:
		return 0, ErrInvalidHeader
	}
}

// String returns the wire token of the method.
func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}
