// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

// Version is an HTTP protocol version as it appears on the wire.
// The zero value means "not set"; builders replace it with DefaultVersion.
type Version uint8

const (
	HTTP10 Version = iota + 1
	HTTP11
	HTTP2
	HTTP3
)

// DefaultVersion is used by builders when no version is set.
const DefaultVersion = HTTP11

// ParseVersion maps a wire token to a Version.
func ParseVersion(s string) (Version, error) {
	switch s {
	case "HTTP/1.0":
		return HTTP10, nil
	case "HTTP/1.1":
		return HTTP11, nil
	case "HTTP/2":
		return HTTP2, nil
	case "HTTP/3":
		return HTTP3, nil
	default:
		return 0, ErrInvalidHeader
	}
}

// String returns the wire token of the version.
func (v Version) String() string {
	switch v {
	case HTTP10:
		return "HTTP/1.0"
	case HTTP11:
		return "HTTP/1.1"
	case HTTP2:
		return "HTTP/2"
	case HTTP3:
		return "HTTP/3"
	default:
		return "HTTP/?"
	}
}

func (v Version) orDefault() Version {
	if v == 0 {
		return DefaultVersion
	}
	return v
}
