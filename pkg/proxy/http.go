// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"github.com/absmach/mhttp/pkg/breaker"
	"github.com/absmach/mhttp/pkg/handler"
	"github.com/absmach/mhttp/pkg/metrics"
	httpparser "github.com/absmach/mhttp/pkg/parser/http"
	"github.com/absmach/mhttp/pkg/server/tcp"
)

// HTTPConfig holds configuration for the HTTP proxy.
type HTTPConfig struct {
	Host            string
	Port            string
	TargetHost      string
	TargetPort      string
	TLSConfig       *tls.Config
	MaxMessageSize  int
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	Dial            tcp.DialFunc
	Breaker         *breaker.CircuitBreaker
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

// HTTPProxy coordinates the TCP server and the HTTP parser.
type HTTPProxy struct {
	server *tcp.Server
}

// NewHTTP creates a new HTTP proxy with TCP server and HTTP parser.
func NewHTTP(cfg HTTPConfig, h handler.Handler) *HTTPProxy {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	parser := httpparser.New(
		httpparser.WithLogger(cfg.Logger),
		httpparser.WithMetrics(cfg.Metrics),
	)

	serverCfg := tcp.Config{
		Address:         net.JoinHostPort(cfg.Host, cfg.Port),
		TargetAddress:   net.JoinHostPort(cfg.TargetHost, cfg.TargetPort),
		TLSConfig:       cfg.TLSConfig,
		MaxMessageSize:  cfg.MaxMessageSize,
		ReadTimeout:     cfg.ReadTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Dial:            cfg.Dial,
		Breaker:         cfg.Breaker,
		Metrics:         cfg.Metrics,
		Logger:          cfg.Logger,
	}

	return &HTTPProxy{
		server: tcp.New(serverCfg, parser, h),
	}
}

// Listen starts the HTTP proxy server and blocks until context is cancelled.
func (p *HTTPProxy) Listen(ctx context.Context) error {
	return p.server.Listen(ctx)
}

// Serve runs the HTTP proxy on an existing listener.
func (p *HTTPProxy) Serve(ctx context.Context, l net.Listener) error {
	return p.server.Serve(ctx, l)
}
