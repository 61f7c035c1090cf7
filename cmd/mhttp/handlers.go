// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/absmach/mhttp/pkg/codec"
	"github.com/absmach/mhttp/pkg/handler"
	"github.com/absmach/mhttp/pkg/metrics"
	"github.com/absmach/mhttp/pkg/ratelimit"
)

var (
	_ handler.Handler = (*RateLimitedHandler)(nil)
	_ handler.Handler = (*InstrumentedHandler)(nil)
)

// RateLimitedHandler wraps a handler with rate limiting. Connections are
// limited globally, requests per client.
type RateLimitedHandler struct {
	handler          handler.Handler
	perClientLimiter *ratelimit.Limiter
	globalLimiter    *ratelimit.TokenBucket
	metrics          *metrics.Metrics
	logger           *slog.Logger
}

// AuthConnect implements handler.Handler with rate limiting.
func (h *RateLimitedHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
	if !h.globalLimiter.Allow() {
		h.metrics.RateLimitedRequests.WithLabelValues("global").Inc()
		h.logger.Warn("Global rate limit exceeded",
			slog.String("remote", hctx.RemoteAddr),
			slog.String("protocol", hctx.Protocol))
		return ratelimit.ErrRateLimitExceeded
	}

	return h.handler.AuthConnect(ctx, hctx)
}

// AuthRequest implements handler.Handler with per-client rate limiting.
func (h *RateLimitedHandler) AuthRequest(ctx context.Context, hctx *handler.Context, req *codec.Request) error {
	client := clientKey(hctx)
	if !h.perClientLimiter.Allow(client) {
		h.metrics.RateLimitedRequests.WithLabelValues("per_client").Inc()
		h.logger.Warn("Per-client rate limit exceeded",
			slog.String("client", client),
			slog.String("uri", req.URI))
		return ratelimit.ErrRateLimitExceeded
	}

	return h.handler.AuthRequest(ctx, hctx, req)
}

// OnConnect implements handler.Handler.
func (h *RateLimitedHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnConnect(ctx, hctx)
}

// OnRequest implements handler.Handler.
func (h *RateLimitedHandler) OnRequest(ctx context.Context, hctx *handler.Context, req *codec.Request) error {
	return h.handler.OnRequest(ctx, hctx, req)
}

// OnResponse implements handler.Handler.
func (h *RateLimitedHandler) OnResponse(ctx context.Context, hctx *handler.Context, res *codec.Response) error {
	return h.handler.OnResponse(ctx, hctx, res)
}

// OnDisconnect implements handler.Handler.
func (h *RateLimitedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnDisconnect(ctx, hctx)
}

// clientKey identifies a client by username, falling back to its host so
// that reconnecting from another port does not reset the limit.
func clientKey(hctx *handler.Context) string {
	if hctx.Username != "" {
		return "user:" + hctx.Username
	}
	host, _, err := net.SplitHostPort(hctx.RemoteAddr)
	if err != nil {
		return "addr:" + hctx.RemoteAddr
	}
	return "addr:" + host
}

// InstrumentedHandler wraps a handler with metrics instrumentation.
type InstrumentedHandler struct {
	handler handler.Handler
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// AuthConnect implements handler.Handler with metrics.
func (h *InstrumentedHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
	return h.metrics.ObserveAuth("connect", func() error {
		return h.handler.AuthConnect(ctx, hctx)
	})
}

// AuthRequest implements handler.Handler with metrics.
func (h *InstrumentedHandler) AuthRequest(ctx context.Context, hctx *handler.Context, req *codec.Request) error {
	return h.metrics.ObserveAuth("request", func() error {
		return h.handler.AuthRequest(ctx, hctx, req)
	})
}

// OnConnect implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	h.metrics.TotalConnections.WithLabelValues("authorized", "accepted").Inc()
	return h.handler.OnConnect(ctx, hctx)
}

// OnRequest implements handler.Handler.
func (h *InstrumentedHandler) OnRequest(ctx context.Context, hctx *handler.Context, req *codec.Request) error {
	return h.handler.OnRequest(ctx, hctx, req)
}

// OnResponse implements handler.Handler.
func (h *InstrumentedHandler) OnResponse(ctx context.Context, hctx *handler.Context, res *codec.Response) error {
	return h.handler.OnResponse(ctx, hctx, res)
}

// OnDisconnect implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	h.logger.Debug("client disconnected",
		slog.String("session", hctx.SessionID),
		slog.Uint64("requests", hctx.Requests))
	return h.handler.OnDisconnect(ctx, hctx)
}
