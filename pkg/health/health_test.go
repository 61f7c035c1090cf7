// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/absmach/mhttp/examples/hello"
	"github.com/absmach/mhttp/pkg/codec"
)

var errDown = errors.New("down")

func ok(ctx context.Context) error     { return nil }
func failing(ctx context.Context) error { return errDown }

func TestChecker_Health(t *testing.T) {
	cases := []struct {
		name     string
		register func(c *Checker)
		want     Status
	}{
		{
			name:     "no checks",
			register: func(c *Checker) {},
			want:     StatusHealthy,
		},
		{
			name: "all passing",
			register: func(c *Checker) {
				c.Register("a", ok)
				c.RegisterCritical("b", ok)
			},
			want: StatusHealthy,
		},
		{
			name: "non-critical failure",
			register: func(c *Checker) {
				c.Register("a", failing)
				c.RegisterCritical("b", ok)
			},
			want: StatusDegraded,
		},
		{
			name: "critical failure",
			register: func(c *Checker) {
				c.Register("a", failing)
				c.RegisterCritical("b", failing)
			},
			want: StatusUnhealthy,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewChecker(time.Minute)
			tc.register(c)

			status, _ := c.Health(context.Background())
			if status != tc.want {
				t.Errorf("Health() status = %v, want %v", status, tc.want)
			}
		})
	}
}

func TestChecker_SortedAndCached(t *testing.T) {
	c := NewChecker(time.Minute)

	var calls int
	c.Register("zeta", func(ctx context.Context) error {
		calls++
		return errDown
	})
	c.Register("alpha", ok)

	_, checks := c.Health(context.Background())
	c.Health(context.Background())

	if len(checks) != 2 || checks[0].Name != "alpha" || checks[1].Name != "zeta" {
		t.Fatalf("Health() checks = %+v, want alpha then zeta", checks)
	}
	if checks[1].Message != errDown.Error() {
		t.Errorf("Message = %q, want %q", checks[1].Message, errDown.Error())
	}
	if calls != 1 {
		t.Errorf("check ran %d times, want the cached result reused", calls)
	}

	// Registering again replaces the cached result.
	c.Register("zeta", ok)
	if status, _ := c.Health(context.Background()); status != StatusHealthy {
		t.Errorf("Health() status = %v, want %v", status, StatusHealthy)
	}
}

func TestHandlers(t *testing.T) {
	cases := []struct {
		name     string
		critical bool
		handler  func(c *Checker) http.HandlerFunc
		want     int
	}{
		{
			name:    "health degraded",
			handler: (*Checker).HTTPHandler,
			want:    http.StatusOK,
		},
		{
			name:     "health unhealthy",
			critical: true,
			handler:  (*Checker).HTTPHandler,
			want:     http.StatusServiceUnavailable,
		},
		{
			name:    "readiness degraded",
			handler: (*Checker).ReadinessHandler,
			want:    http.StatusServiceUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewChecker(time.Minute)
			if tc.critical {
				c.RegisterCritical("backend", failing)
			} else {
				c.Register("backend", failing)
			}

			rec := httptest.NewRecorder()
			tc.handler(c)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tc.want {
				t.Errorf("status code = %d, want %d", rec.Code, tc.want)
			}
			var body struct {
				Status Status  `json:"status"`
				Checks []Check `json:"checks"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if len(body.Checks) != 1 || body.Checks[0].Critical != tc.critical {
				t.Errorf("checks = %+v, want one check with critical=%v", body.Checks, tc.critical)
			}
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestBackendCheck(t *testing.T) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	srv := hello.New(hello.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	srv.Handle(codec.MethodGet, "/broken", func(ctx context.Context, req *codec.Request) (*codec.ResponseBuilder, error) {
		return nil, errDown
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, l) }()
	defer func() {
		cancel()
		<-done
	}()

	var d net.Dialer
	dial := func(ctx context.Context) (net.Conn, error) {
		return d.DialContext(ctx, "tcp", l.Addr().String())
	}

	if err := BackendCheck(dial, "/health_check")(context.Background()); err != nil {
		t.Errorf("BackendCheck(/health_check) error = %v", err)
	}
	if err := BackendCheck(dial, "/broken")(context.Background()); err == nil {
		t.Error("BackendCheck(/broken) should fail on 500")
	}

	refused := func(ctx context.Context) (net.Conn, error) {
		return nil, errDown
	}
	if err := BackendCheck(refused, "/")(context.Background()); !errors.Is(err, errDown) {
		t.Errorf("BackendCheck() error = %v, want %v", err, errDown)
	}
}
