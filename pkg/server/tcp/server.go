// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/mhttp/pkg/breaker"
	"github.com/absmach/mhttp/pkg/codec"
	mperrors "github.com/absmach/mhttp/pkg/errors"
	"github.com/absmach/mhttp/pkg/handler"
	"github.com/absmach/mhttp/pkg/metrics"
	"github.com/absmach/mhttp/pkg/parser"
	"github.com/absmach/mhttp/pkg/wire"
	"github.com/google/uuid"
)

const (
	// DefaultMaxMessageSize bounds a single message when Config.MaxMessageSize is unset.
	DefaultMaxMessageSize = 1028

	defaultShutdownTimeout = 30 * time.Second
	defaultDrainTimeout    = 5 * time.Second
)

var (
	// ErrShutdownTimeout is returned when graceful shutdown exceeds the configured timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

	aLongTimeAgo = time.Unix(1, 0)
)

// DialFunc opens a connection to the backend.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Config holds the TCP server configuration.
type Config struct {
	// Address is the listen address (host:port)
	Address string

	// TargetAddress is the backend server address to proxy to (host:port)
	TargetAddress string

	// TLSConfig is optional TLS configuration for the listener
	TLSConfig *tls.Config

	// ShutdownTimeout is the maximum time to wait for active connections to drain
	// during graceful shutdown. After this timeout, remaining connections are
	// forcefully closed.
	ShutdownTimeout time.Duration

	// MaxMessageSize is the read buffer size of each direction and so the
	// largest message accepted.
	MaxMessageSize int

	// ReadTimeout limits the wait for each client request. Zero means no limit.
	ReadTimeout time.Duration

	// DrainTimeout limits the wait for outstanding backend responses once the
	// client stopped sending.
	DrainTimeout time.Duration

	// Dial replaces the default dialer, e.g. with a connection pool. A dialed
	// connection with a Discard method is discarded instead of closed when the
	// session leaves it mid-message.
	Dial DialFunc

	// Breaker guards backend dials. Optional.
	Breaker *breaker.CircuitBreaker

	// Metrics records connection metrics. Optional.
	Metrics *metrics.Metrics

	// Logger for server events
	Logger *slog.Logger
}

// Server is a TCP server that accepts connections and proxies them to a
// backend server using a pluggable parser.
type Server struct {
	config  Config
	parser  parser.Parser
	handler handler.Handler
	wg      sync.WaitGroup
}

// New creates a new TCP server with the given configuration, parser, and handler.
func New(cfg Config, p parser.Parser, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.Dial == nil {
		var d net.Dialer
		target := cfg.TargetAddress
		cfg.Dial = func(ctx context.Context) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", target)
		}
	}

	return &Server{
		config:  cfg,
		parser:  p,
		handler: h,
	}
}

// Listen starts the TCP server and blocks until the context is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}

	// Wrap with TLS if configured
	if s.config.TLSConfig != nil {
		listener = tls.NewListener(listener, s.config.TLSConfig)
		s.config.Logger.Info("TLS enabled", slog.String("address", s.config.Address))
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections on l until the context is cancelled, then drains
// active connections. Serve closes l.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.config.Logger.Info("TCP server started", slog.String("address", l.Addr().String()))

	// Active connections outlive ctx until the drain deadline.
	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := l.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				s.config.Logger.Error("failed to accept connection", slog.String("error", err.Error()))
				continue
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				if err := s.observe(connCtx, conn); err != nil && !errors.Is(err, io.EOF) {
					s.config.Logger.Debug("connection handler error",
						slog.String("remote", conn.RemoteAddr().String()),
						slog.String("error", err.Error()))
				}
			}()
		}
	}()

	select {
	case <-ctx.Done():
		s.config.Logger.Info("shutdown signal received, closing listener")
	case <-acceptDone:
		s.config.Logger.Warn("listener closed")
	}

	if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
	}
	<-acceptDone

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.config.Logger.Info("all connections closed gracefully")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("shutdown timeout exceeded, forcing connection closure")
		connCancel()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return ErrShutdownTimeout
	}
}

func (s *Server) observe(ctx context.Context, conn net.Conn) error {
	if s.config.Metrics == nil {
		return s.handleConn(ctx, conn)
	}
	return s.config.Metrics.ObserveConnection("client", func() error {
		return s.handleConn(ctx, conn)
	})
}

// session is the state shared by both directions of a connection.
type session struct {
	hctx    *handler.Context
	client  net.Conn
	backend net.Conn

	// clientMu serializes writes to the client.
	clientMu sync.Mutex

	requests  atomic.Int64
	responses atomic.Int64
	progress  chan struct{}
	closing   atomic.Bool
}

func (ss *session) Write(p []byte) (int, error) {
	ss.clientMu.Lock()
	defer ss.clientMu.Unlock()
	return ss.client.Write(p)
}

// interrupt unblocks pending reads on both connections.
func (ss *session) interrupt() {
	ss.closing.Store(true)
	ss.client.SetReadDeadline(aLongTimeAgo)
	ss.backend.SetReadDeadline(aLongTimeAgo)
}

type result struct {
	dir parser.Direction
	err error
}

// handleConn proxies a client connection until either side is done:
// 1. Creating a handler context with connection metadata
// 2. Dialing the backend server
// 3. Streaming both directions through the parser
// 4. Answering refused requests and releasing the backend connection
func (s *Server) handleConn(ctx context.Context, inbound net.Conn) error {
	defer inbound.Close()

	hctx := &handler.Context{
		SessionID:  uuid.New().String(),
		RemoteAddr: inbound.RemoteAddr().String(),
		Protocol:   "tcp",
	}
	logger := s.config.Logger.With(slog.String("session", hctx.SessionID))

	// Extract client certificate if using TLS
	if tlsConn, ok := inbound.(*tls.Conn); ok {
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return fmt.Errorf("TLS handshake failed: %w", err)
		}
		state := tlsConn.ConnectionState()
		if len(state.PeerCertificates) > 0 {
			hctx.Cert = state.PeerCertificates[0]
		}
	}

	outbound, err := s.dial(ctx)
	if err != nil {
		s.reply(inbound, codec.StatusServiceUnavailable)
		wire.LingerClose(inbound)
		return mperrors.New("dial", parser.Upstream.String(), hctx.SessionID, hctx.RemoteAddr, err)
	}

	logger.Debug("connection established",
		slog.String("client", hctx.RemoteAddr),
		slog.String("backend", s.config.TargetAddress))

	ss := &session{
		hctx:     hctx,
		client:   inbound,
		backend:  outbound,
		progress: make(chan struct{}, 1),
	}
	stop := context.AfterFunc(ctx, func() {
		ss.closing.Store(true)
		inbound.SetDeadline(aLongTimeAgo)
		outbound.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	up := bufio.NewReaderSize(inbound, s.config.MaxMessageSize)
	down := bufio.NewReaderSize(outbound, s.config.MaxMessageSize)

	results := make(chan result, 2)
	go func() {
		results <- result{parser.Upstream, s.stream(ctx, up, outbound, parser.Upstream, ss)}
	}()
	go func() {
		results <- result{parser.Downstream, s.stream(ctx, down, ss, parser.Downstream, ss)}
	}()

	first := <-results
	var second *result
	if first.dir == parser.Upstream {
		second = s.drain(ss, results)
	}

	var rerr *parser.RejectError
	rejected := errors.As(first.err, &rerr)
	if rejected {
		logger.Debug("request rejected",
			slog.String("direction", first.dir.String()),
			slog.String("status", rerr.Status.String()),
			slog.String("error", rerr.Err.Error()))
		s.reply(ss, rerr.Status)
	}

	ss.interrupt()
	if second == nil {
		r := <-results
		second = &r
	}
	if rejected {
		wire.LingerClose(inbound)
	}

	reusable := first.dir == parser.Upstream &&
		ss.responses.Load() >= ss.requests.Load() &&
		down.Buffered() == 0 &&
		errors.Is(second.err, os.ErrDeadlineExceeded) &&
		ctx.Err() == nil
	s.release(outbound, reusable)

	if err := s.handler.OnDisconnect(context.Background(), hctx); err != nil {
		logger.Error("disconnect handler error", slog.String("error", err.Error()))
	}
	logger.Debug("connection closed")

	for _, r := range []result{first, *second} {
		if r.err == nil || errors.Is(r.err, io.EOF) || errors.Is(r.err, os.ErrDeadlineExceeded) || errors.Is(r.err, context.Canceled) {
			continue
		}
		if errors.As(r.err, &rerr) {
			continue
		}
		return mperrors.New("stream", r.dir.String(), hctx.SessionID, hctx.RemoteAddr, r.err)
	}
	return nil
}

// stream parses messages in one direction until an error or context cancellation.
func (s *Server) stream(ctx context.Context, r *bufio.Reader, w io.Writer, dir parser.Direction, ss *session) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if dir == parser.Upstream && s.config.ReadTimeout > 0 {
			ss.client.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
			if ss.closing.Load() {
				return os.ErrDeadlineExceeded
			}
		}

		if err := s.parser.Parse(ctx, r, w, dir, s.handler, ss.hctx); err != nil {
			return err
		}

		switch dir {
		case parser.Upstream:
			ss.requests.Add(1)
		case parser.Downstream:
			ss.responses.Add(1)
			select {
			case ss.progress <- struct{}{}:
			default:
			}
		}
	}
}

// drain waits until every forwarded request has been answered or the drain
// timeout expires. It returns the downstream result if that side ended first.
func (s *Server) drain(ss *session, results <-chan result) *result {
	timer := time.NewTimer(s.config.DrainTimeout)
	defer timer.Stop()

	for ss.responses.Load() < ss.requests.Load() {
		select {
		case <-ss.progress:
		case r := <-results:
			return &r
		case <-timer.C:
			return nil
		}
	}
	return nil
}

func (s *Server) dial(ctx context.Context) (net.Conn, error) {
	var conn net.Conn
	dial := func(ctx context.Context) error {
		var err error
		conn, err = s.config.Dial(ctx)
		return err
	}

	var err error
	if s.config.Breaker != nil {
		err = s.config.Breaker.Execute(ctx, dial)
	} else {
		err = dial(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mperrors.ErrBackendUnavailable, err)
	}
	return conn, nil
}

// release returns a reusable backend connection to its pool, if any, and
// closes it otherwise.
func (s *Server) release(conn net.Conn, reusable bool) {
	if d, ok := conn.(interface{ Discard() error }); ok && !reusable {
		d.Discard()
		return
	}
	conn.SetDeadline(time.Time{})
	conn.Close()
}

// reply writes a proxy-generated response to the client.
func (s *Server) reply(w io.Writer, status codec.Status) {
	res := (&parser.RejectError{Status: status}).Response()
	if _, err := res.WriteTo(w); err != nil {
		s.config.Logger.Debug("failed to write reply", slog.String("error", err.Error()))
	}
	if s.config.Metrics != nil {
		s.config.Metrics.ObserveReject(status)
	}
}
