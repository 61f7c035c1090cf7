// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/absmach/mhttp/examples/hello"
	"github.com/absmach/mhttp/pkg/codec"
	mperrors "github.com/absmach/mhttp/pkg/errors"
	"github.com/absmach/mhttp/pkg/handler"
	"github.com/absmach/mhttp/pkg/wire"
)

// tokenHandler admits clients presenting the right token and hides the
// backend's Hello World behind a greeting of its own.
type tokenHandler struct {
	handler.NoopHandler
	token string
}

func (h *tokenHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
	if string(hctx.Password) != h.token {
		return mperrors.ErrUnauthorized
	}
	return nil
}

func (h *tokenHandler) OnResponse(ctx context.Context, hctx *handler.Context, res *codec.Response) error {
	if string(res.Body) == "Hello World" {
		res.Body = []byte("Hello, " + hctx.Username)
	}
	return nil
}

func startHello(t *testing.T, logger *slog.Logger) (host, port string) {
	t.Helper()

	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	srv := hello.New(hello.Config{Logger: logger})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, l) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	host, port, _ = net.SplitHostPort(l.Addr().String())
	return host, port
}

func startHTTPProxy(t *testing.T, h handler.Handler) string {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	targetHost, targetPort := startHello(t, logger)

	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	p := NewHTTP(HTTPConfig{
		TargetHost:      targetHost,
		TargetPort:      targetPort,
		ShutdownTimeout: time.Second,
		Logger:          logger,
	}, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx, l) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("proxy did not stop")
		}
	})

	return l.Addr().String()
}

func roundTrip(t *testing.T, conn net.Conn, br *bufio.Reader, req *codec.Request) *codec.Response {
	t.Helper()

	if err := wire.WriteRequest(conn, req); err != nil {
		t.Fatalf("WriteRequest() error = %v", err)
	}
	res, err := wire.ReadResponse(br)
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}
	return res
}

func TestHTTPProxy_HelloBackend(t *testing.T) {
	addr := startHTTPProxy(t, &tokenHandler{token: "secret"})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	br := bufio.NewReader(conn)

	// "alice:secret"
	auth := "Basic YWxpY2U6c2VjcmV0"

	res := roundTrip(t, conn, br, codec.Get("/").Header("Authorization", auth).Finish())
	if res.Status != codec.StatusOK {
		t.Errorf("Status = %v, want %v", res.Status, codec.StatusOK)
	}
	if string(res.Body) != "Hello, alice" {
		t.Errorf("Body = %q, want %q", res.Body, "Hello, alice")
	}
	if v, _ := res.Header.Get("Content-Length"); v != "12" {
		t.Errorf("Content-Length = %q, want 12", v)
	}

	res = roundTrip(t, conn, br, codec.Get("/health_check").Finish())
	if res.Status != codec.StatusOK || len(res.Body) != 0 {
		t.Errorf("health check = %v %q, want empty 200", res.Status, res.Body)
	}

	res = roundTrip(t, conn, br, codec.Delete("/").Finish())
	if res.Status != codec.StatusNotFound {
		t.Errorf("Status = %v, want %v", res.Status, codec.StatusNotFound)
	}
}

func TestHTTPProxy_Unauthorized(t *testing.T) {
	addr := startHTTPProxy(t, &tokenHandler{token: "secret"})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	br := bufio.NewReader(conn)

	res := roundTrip(t, conn, br, codec.Get("/?authorization=wrong").Finish())
	if res.Status != codec.StatusUnauthorized {
		t.Errorf("Status = %v, want %v", res.Status, codec.StatusUnauthorized)
	}
	if _, err := wire.ReadResponse(br); !errors.Is(err, io.EOF) {
		t.Errorf("ReadResponse() after rejection error = %v, want io.EOF", err)
	}
}

func TestHTTPProxy_BadRequestNeverReachesBackend(t *testing.T) {
	addr := startHTTPProxy(t, &handler.NoopHandler{})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, "GET / HTTP/1.1\r\nContent-Length: many\r\n\r\n"); err != nil {
		t.Fatalf("write error = %v", err)
	}
	raw, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	if !strings.HasPrefix(string(raw), "HTTP/1.1 400 Bad Request\r\n") {
		t.Errorf("reply = %q, want a 400 status line", raw)
	}
	if strings.Contains(string(raw), "Hello World") {
		t.Error("malformed request must not be forwarded")
	}
}
