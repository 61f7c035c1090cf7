// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package health provides health check and readiness endpoints.
package health

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/absmach/mhttp/pkg/codec"
	"github.com/absmach/mhttp/pkg/wire"
)

const probeTimeout = 5 * time.Second

// Status represents the health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a single health check.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Critical    bool          `json:"critical"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"-"`
	DurationMS  float64       `json:"duration_ms"`
}

// CheckFunc is a function that performs a health check.
type CheckFunc func(ctx context.Context) error

type registration struct {
	check    CheckFunc
	critical bool
}

// Checker manages health checks. A failing critical check makes the service
// unhealthy; any other failing check makes it degraded.
type Checker struct {
	mu     sync.Mutex
	checks map[string]registration
	cache  map[string]*Check
	ttl    time.Duration
}

// NewChecker creates a new health checker. Results are cached for cacheTTL.
func NewChecker(cacheTTL time.Duration) *Checker {
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Second
	}
	return &Checker{
		checks: make(map[string]registration),
		cache:  make(map[string]*Check),
		ttl:    cacheTTL,
	}
}

// Register adds a non-critical health check.
func (c *Checker) Register(name string, check CheckFunc) {
	c.register(name, check, false)
}

// RegisterCritical adds a check the service cannot work without.
func (c *Checker) RegisterCritical(name string, check CheckFunc) {
	c.register(name, check, true)
}

func (c *Checker) register(name string, check CheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registration{check: check, critical: critical}
	delete(c.cache, name)
}

// Health runs the registered checks and returns the overall status with the
// checks sorted by name.
func (c *Checker) Health(ctx context.Context) (Status, []Check) {
	c.mu.Lock()
	defer c.mu.Unlock()

	checks := make([]Check, 0, len(c.checks))
	overall := StatusHealthy

	for name, reg := range c.checks {
		check, ok := c.cache[name]
		if !ok || time.Since(check.LastChecked) >= c.ttl {
			check = run(ctx, name, reg)
			c.cache[name] = check
		}
		checks = append(checks, *check)

		if check.Status == StatusHealthy {
			continue
		}
		if check.Critical {
			overall = StatusUnhealthy
		} else if overall == StatusHealthy {
			overall = StatusDegraded
		}
	}

	slices.SortFunc(checks, func(a, b Check) int {
		return strings.Compare(a.Name, b.Name)
	})
	return overall, checks
}

func run(ctx context.Context, name string, reg registration) *Check {
	start := time.Now()
	err := reg.check(ctx)
	duration := time.Since(start)

	check := &Check{
		Name:        name,
		Status:      StatusHealthy,
		Critical:    reg.critical,
		LastChecked: time.Now(),
		Duration:    duration,
		DurationMS:  float64(duration) / float64(time.Millisecond),
	}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}

// BackendCheck returns a check that dials the backend, sends "GET uri" and
// expects 200 OK.
func BackendCheck(dial func(ctx context.Context) (net.Conn, error), uri string) CheckFunc {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()

		conn, err := dial(ctx)
		if err != nil {
			return fmt.Errorf("dial backend: %w", err)
		}
		defer conn.Close()

		if deadline, ok := ctx.Deadline(); ok {
			conn.SetDeadline(deadline)
		}

		req := codec.Get(uri).Header("Connection", "close").Finish()
		if err := wire.WriteRequest(conn, req); err != nil {
			return fmt.Errorf("write probe: %w", err)
		}
		res, err := wire.ReadResponse(bufio.NewReader(conn))
		if err != nil {
			return fmt.Errorf("read probe response: %w", err)
		}
		if res.Status != codec.StatusOK {
			return fmt.Errorf("backend answered %s", res.Status)
		}
		return nil
	}
}

// HTTPHandler returns an HTTP handler for health checks. Only an unhealthy
// service is answered with 503.
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return c.handler(func(s Status) bool { return s == StatusUnhealthy })
}

// ReadinessHandler returns a readiness probe handler. A degraded service is
// not ready either.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return c.handler(func(s Status) bool { return s != StatusHealthy })
}

func (c *Checker) handler(unavailable func(Status) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		status, checks := c.Health(ctx)

		response := map[string]interface{}{
			"status": status,
			"checks": checks,
		}

		w.Header().Set("Content-Type", "application/json")
		if unavailable(status) {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		json.NewEncoder(w).Encode(response)
	}
}

// LivenessHandler returns a simple liveness probe.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
		})
	}
}
