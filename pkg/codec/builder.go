// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import "strconv"

// RequestBuilder stages a Request. Setters overwrite and return the builder.
// A builder is consumed by Finish or Bytes; any later call panics.
type RequestBuilder struct {
	method  Method
	uri     string
	version Version
	header  Header
	body    []byte
	done    bool
}

// BuildRequest starts a request with the given method.
func BuildRequest(m Method) *RequestBuilder {
	return &RequestBuilder{method: m}
}

// Get starts a GET request for uri.
func Get(uri string) *RequestBuilder { return BuildRequest(MethodGet).URI(uri) }

// Post starts a POST request for uri.
func Post(uri string) *RequestBuilder { return BuildRequest(MethodPost).URI(uri) }

// Put starts a PUT request for uri.
func Put(uri string) *RequestBuilder { return BuildRequest(MethodPut).URI(uri) }

// Delete starts a DELETE request for uri.
func Delete(uri string) *RequestBuilder { return BuildRequest(MethodDelete).URI(uri) }

// Method sets the request method.
func (b *RequestBuilder) Method(m Method) *RequestBuilder {
	b.check()
	b.method = m
	return b
}

// Version sets the protocol version.
func (b *RequestBuilder) Version(v Version) *RequestBuilder {
	b.check()
	b.version = v
	return b
}

// URI sets the request target, stored verbatim.
func (b *RequestBuilder) URI(uri string) *RequestBuilder {
	b.check()
	b.uri = uri
	return b
}

// Header sets a header, replacing an earlier value for the same name.
func (b *RequestBuilder) Header(name, value string) *RequestBuilder {
	b.check()
	b.header.Set(name, value)
	return b
}

// Body replaces the body with a copy of p.
func (b *RequestBuilder) Body(p []byte) *RequestBuilder {
	b.check()
	b.body = append(b.body[:0], p...)
	return b
}

// AppendBody appends p to the body.
func (b *RequestBuilder) AppendBody(p []byte) *RequestBuilder {
	b.check()
	b.body = append(b.body, p...)
	return b
}

// Write appends p to the body. It never fails.
func (b *RequestBuilder) Write(p []byte) (int, error) {
	b.AppendBody(p)
	return len(p), nil
}

// Finish consumes the builder and returns the request. The version defaults to
// DefaultVersion and the URI to "/". Content-Length is set to the body length,
// or removed when the body is empty.
func (b *RequestBuilder) Finish() *Request {
	b.check()
	b.done = true

	if b.uri == "" {
		b.uri = "/"
	}
	body := syncContentLength(&b.header, b.body)

	req := &Request{
		Method:  b.method,
		URI:     b.uri,
		Version: b.version.orDefault(),
		Header:  b.header,
		Body:    body,
	}
	b.header, b.body = Header{}, nil
	return req
}

// Bytes consumes the builder and returns the serialized request.
func (b *RequestBuilder) Bytes() []byte {
	return b.Finish().Bytes()
}

func (b *RequestBuilder) check() {
	if b.done {
		panic("codec: request builder used after Finish")
	}
}

// ResponseBuilder stages a Response. Setters overwrite and return the builder.
// A builder is consumed by Finish or Bytes; any later call panics.
type ResponseBuilder struct {
	status  Status
	version Version
	header  Header
	body    []byte
	done    bool
}

// BuildResponse starts a response with the given status.
func BuildResponse(s Status) *ResponseBuilder {
	return &ResponseBuilder{status: s}
}

// OK starts a 200 OK response.
func OK() *ResponseBuilder { return BuildResponse(StatusOK) }

// BadRequest starts a 400 Bad Request response.
func BadRequest() *ResponseBuilder { return BuildResponse(StatusBadRequest) }

// Unauthorized starts a 401 Unauthorized response.
func Unauthorized() *ResponseBuilder { return BuildResponse(StatusUnauthorized) }

// Forbidden starts a 403 Forbidden response.
func Forbidden() *ResponseBuilder { return BuildResponse(StatusForbidden) }

// NotFound starts a 404 Not Found response.
func NotFound() *ResponseBuilder { return BuildResponse(StatusNotFound) }

// MethodNotAllowed starts a 405 Method Not Allowed response.
func MethodNotAllowed() *ResponseBuilder { return BuildResponse(StatusMethodNotAllowed) }

// InternalServerError starts a 500 Internal Server Error response.
func InternalServerError() *ResponseBuilder { return BuildResponse(StatusInternalServerError) }

// Status sets the response status.
func (b *ResponseBuilder) Status(s Status) *ResponseBuilder {
	b.check()
	b.status = s
	return b
}

// Version sets the protocol version.
func (b *ResponseBuilder) Version(v Version) *ResponseBuilder {
	b.check()
	b.version = v
	return b
}

// Header sets a header, replacing an earlier value for the same name.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.check()
	b.header.Set(name, value)
	return b
}

// Body replaces the body with a copy of p.
func (b *ResponseBuilder) Body(p []byte) *ResponseBuilder {
	b.check()
	b.body = append(b.body[:0], p...)
	return b
}

// AppendBody appends p to the body.
func (b *ResponseBuilder) AppendBody(p []byte) *ResponseBuilder {
	b.check()
	b.body = append(b.body, p...)
	return b
}

// Write appends p to the body. It never fails.
func (b *ResponseBuilder) Write(p []byte) (int, error) {
	b.AppendBody(p)
	return len(p), nil
}

// Finish consumes the builder and returns the response. The version defaults
// to DefaultVersion. Content-Length is set to the body length, or removed when
// the body is empty.
func (b *ResponseBuilder) Finish() *Response {
	b.check()
	b.done = true

	body := syncContentLength(&b.header, b.body)

	res := &Response{
		Version: b.version.orDefault(),
		Status:  b.status,
		Header:  b.header,
		Body:    body,
	}
	b.header, b.body = Header{}, nil
	return res
}

// Bytes consumes the builder and returns the serialized response.
func (b *ResponseBuilder) Bytes() []byte {
	return b.Finish().Bytes()
}

func (b *ResponseBuilder) check() {
	if b.done {
		panic("codec: response builder used after Finish")
	}
}

func syncContentLength(h *Header, body []byte) []byte {
	if len(body) == 0 {
		h.Del(ContentLength)
		return nil
	}
	h.Set(ContentLength, strconv.Itoa(len(body)))
	return body
}
