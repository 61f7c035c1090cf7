// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/absmach/mhttp/pkg/codec"
	mperrors "github.com/absmach/mhttp/pkg/errors"
	"github.com/absmach/mhttp/pkg/handler"
	"github.com/absmach/mhttp/pkg/metrics"
	"github.com/absmach/mhttp/pkg/parser"
	"github.com/absmach/mhttp/pkg/wire"
)

const protocol = "http"

var _ parser.Parser = (*Parser)(nil)

// Parser inspects HTTP/1.x traffic one message at a time.
type Parser struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the parser logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records message and parse error metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Parser) {
		p.metrics = m
	}
}

// New creates an HTTP parser.
func New(opts ...Option) *Parser {
	p := &Parser{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse implements parser.Parser.
func (p *Parser) Parse(ctx context.Context, r *bufio.Reader, w io.Writer, dir parser.Direction, h handler.Handler, hctx *handler.Context) error {
	switch dir {
	case parser.Upstream:
		return p.upstream(ctx, r, w, h, hctx)
	case parser.Downstream:
		return p.downstream(ctx, r, w, h, hctx)
	default:
		return fmt.Errorf("unsupported direction %s", dir)
	}
}

func (p *Parser) upstream(ctx context.Context, r *bufio.Reader, w io.Writer, h handler.Handler, hctx *handler.Context) error {
	req, err := wire.ReadRequest(r)
	if err != nil {
		return p.readError(parser.Upstream, codec.StatusBadRequest, err)
	}
	if p.metrics != nil {
		p.metrics.ObserveRequest(req)
	}

	hctx.Requests++
	if hctx.Requests == 1 {
		hctx.Protocol = protocol
		hctx.Username, hctx.Password = credentials(req)
		if err := h.AuthConnect(ctx, hctx); err != nil {
			p.logger.Debug("connection authorization failed",
				slog.String("session", hctx.SessionID),
				slog.String("remote", hctx.RemoteAddr),
				slog.String("error", err.Error()))
			return reject(err, codec.StatusUnauthorized)
		}
		if err := h.OnConnect(ctx, hctx); err != nil {
			p.logger.Error("connection notification error",
				slog.String("session", hctx.SessionID),
				slog.String("error", err.Error()))
		}
	}

	if err := h.AuthRequest(ctx, hctx, req); err != nil {
		p.logger.Debug("request authorization failed",
			slog.String("session", hctx.SessionID),
			slog.String("method", req.Method.String()),
			slog.String("uri", req.URI),
			slog.String("error", err.Error()))
		return reject(err, codec.StatusForbidden)
	}

	if err := wire.WriteRequest(w, rebuildRequest(req)); err != nil {
		return err
	}

	if err := h.OnRequest(ctx, hctx, req); err != nil {
		p.logger.Error("request notification error",
			slog.String("session", hctx.SessionID),
			slog.String("error", err.Error()))
	}
	return nil
}

func (p *Parser) downstream(ctx context.Context, r *bufio.Reader, w io.Writer, h handler.Handler, hctx *handler.Context) error {
	res, err := wire.ReadResponse(r)
	if err != nil {
		return p.readError(parser.Downstream, codec.StatusInternalServerError, err)
	}
	if p.metrics != nil {
		p.metrics.ObserveResponse(res)
	}

	if err := h.OnResponse(ctx, hctx, res); err != nil {
		return err
	}
	return wire.WriteResponse(w, rebuildResponse(res))
}

// readError turns malformed or oversized input into a rejection. Stream
// errors are returned unchanged.
func (p *Parser) readError(dir parser.Direction, status codec.Status, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
		return err
	}
	if p.metrics != nil {
		p.metrics.ObserveParseError(dir.String(), err)
	}

	var perr *codec.ParseError
	if errors.As(err, &perr) || errors.Is(err, mperrors.ErrMessageTooLarge) {
		p.logger.Debug("malformed message",
			slog.String("direction", dir.String()),
			slog.String("error", err.Error()))
		return &parser.RejectError{Status: status, Err: err}
	}
	return err
}

// reject keeps the status a typed error asks for and uses fallback otherwise.
func reject(err error, fallback codec.Status) error {
	status := mperrors.StatusFor(err)
	if status == codec.StatusInternalServerError {
		status = fallback
	}
	return &parser.RejectError{Status: status, Err: err}
}

// rebuildRequest serializes through the builder so Content-Length always
// matches the body a handler left behind.
func rebuildRequest(req *codec.Request) *codec.Request {
	b := codec.BuildRequest(req.Method).URI(req.URI).Version(req.Version)
	for name, value := range req.Header.All() {
		b.Header(name, value)
	}
	return b.Body(req.Body).Finish()
}

func rebuildResponse(res *codec.Response) *codec.Response {
	b := codec.BuildResponse(res.Status).Version(res.Version)
	for name, value := range res.Header.All() {
		b.Header(name, value)
	}
	return b.Body(res.Body).Finish()
}

// credentials extracts authentication credentials from the request.
// It tries these sources in order:
// 1. Basic authorization header
// 2. "authorization" query parameter
// 3. Authorization header (Bearer token, etc.)
func credentials(req *codec.Request) (username string, password []byte) {
	auth, hasAuth := req.Header.Get("Authorization")
	if !hasAuth {
		auth, hasAuth = req.Header.Get("authorization")
	}

	if hasAuth {
		if user, pass, ok := basicAuth(auth); ok {
			return user, []byte(pass)
		}
	}

	if token := queryParam(req.URI, "authorization"); token != "" {
		return "", []byte(token)
	}

	if hasAuth && auth != "" {
		return "", []byte(auth)
	}
	return "", nil
}

func basicAuth(auth string) (username, password string, ok bool) {
	const prefix = "Basic "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", "", false
	}
	c, err := base64.StdEncoding.DecodeString(auth[len(prefix):])
	if err != nil {
		return "", "", false
	}
	return strings.Cut(string(c), ":")
}

func queryParam(uri, key string) string {
	_, query, ok := strings.Cut(uri, "?")
	if !ok {
		return ""
	}
	query, _, _ = strings.Cut(query, "#")
	values, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	return values.Get(key)
}
