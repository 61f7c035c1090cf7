// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import "strings"

// Status is an HTTP response status: a code paired with its reason phrase.
type Status uint8

const (
	// 2xx
	StatusOK Status = iota + 1

	// 3xx
	StatusMultipleChoices

	// 4xx
	StatusBadRequest
	StatusUnauthorized
	StatusForbidden
	StatusNotFound
	StatusMethodNotAllowed
	StatusTeapot

	// 5xx
	StatusInternalServerError
	StatusNotImplemented
	StatusServiceUnavailable
	StatusHTTPVersionNotSupported
)

// ParseStatus parses the status part of a status line, "<code> <reason>".
// Only the numeric code is matched; the reason phrase is not checked.
func ParseStatus(s string) (Status, error) {
	code, _, ok := strings.Cut(s, " ")
	if !ok {
		return 0, ErrInvalidHeader
	}
	st, ok := lookupStatus(code)
	if !ok {
		return 0, ErrUnknownStatus
	}
	return st, nil
}

// StatusFromCode returns the Status with the given numeric code.
func StatusFromCode(code int) (Status, bool) {
	for st := StatusOK; st <= StatusHTTPVersionNotSupported; st++ {
		if st.Code() == code {
			return st, true
		}
	}
	return 0, false
}

func lookupStatus(code string) (Status, bool) {
	switch code {
	case "200":
		return StatusOK, true
	case "300":
		return StatusMultipleChoices, true
	case "400":
		return StatusBadRequest, true
	case "401":
		return StatusUnauthorized, true
	case "403":
		return StatusForbidden, true
	case "404":
		return StatusNotFound, true
	case "405":
		return StatusMethodNotAllowed, true
	case "418":
		return StatusTeapot, true
	case "500":
		return StatusInternalServerError, true
	case "501":
		return StatusNotImplemented, true
	case "503":
		return StatusServiceUnavailable, true
	case "505":
		return StatusHTTPVersionNotSupported, true
	}
	return 0, false
}

// Code returns the numeric status code, or 0 for an invalid Status.
func (s Status) Code() int {
	switch s {
	case StatusOK:
		return 200
	case StatusMultipleChoices:
		return 300
	case StatusBadRequest:
		return 400
	case StatusUnauthorized:
		return 401
	case StatusForbidden:
		return 403
	case StatusNotFound:
		return 404
	case StatusMethodNotAllowed:
		return 405
	case StatusTeapot:
		return 418
	case StatusInternalServerError:
		return 500
	case StatusNotImplemented:
		return 501
	case StatusServiceUnavailable:
		return 503
	case StatusHTTPVersionNotSupported:
		return 505
	default:
		return 0
	}
}

// Reason returns the reason phrase.
func (s Status) Reason() string {
	str := s.String()
	return str[strings.IndexByte(str, ' ')+1:]
}

// String returns the status as written on a status line, e.g. "404 Not Found".
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "200 OK"
	case StatusMultipleChoices:
		return "300 Multiple Choices"
	case StatusBadRequest:
		return "400 Bad Request"
	case StatusUnauthorized:
		return "401 Unauthorized"
	case StatusForbidden:
		return "403 Forbidden"
	case StatusNotFound:
		return "404 Not Found"
	case StatusMethodNotAllowed:
		return "405 Method Not Allowed"
	case StatusTeapot:
		return "418 I'm a teapot"
	case StatusInternalServerError:
		return "500 Internal Server Error"
	case StatusNotImplemented:
		return "501 Not Implemented"
	case StatusServiceUnavailable:
		return "503 Service Unavailable"
	case StatusHTTPVersionNotSupported:
		return "505 HTTP Version Not Supported"
	default:
		return "000 Unknown"
	}
}
