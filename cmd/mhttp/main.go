// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main runs the mhttp proxy with metrics, health checks, circuit
// breakers, rate limiting and backend connection pooling.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/absmach/mhttp"
	"github.com/absmach/mhttp/examples/simple"
	"github.com/absmach/mhttp/pkg/breaker"
	"github.com/absmach/mhttp/pkg/handler"
	"github.com/absmach/mhttp/pkg/health"
	"github.com/absmach/mhttp/pkg/metrics"
	"github.com/absmach/mhttp/pkg/pool"
	"github.com/absmach/mhttp/pkg/proxy"
	"github.com/absmach/mhttp/pkg/ratelimit"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	envPrefix = "MHTTP_"

	httpWithoutTLS = "MHTTP_HTTP_WITHOUT_TLS_"
	httpWithTLS    = "MHTTP_HTTP_WITH_TLS_"
	httpWithmTLS   = "MHTTP_HTTP_WITH_MTLS_"
)

// Config holds the process-wide configuration. Listeners are configured
// separately, one mhttp.Config per prefix.
type Config struct {
	// Observability
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`
	HealthPort  int    `env:"HEALTH_PORT"  envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"   envDefault:"json"`

	// Resource Limits
	MaxGoroutines int `env:"MAX_GOROUTINES" envDefault:"50000"`

	// Connection Pooling
	PoolMaxIdle     int           `env:"POOL_MAX_IDLE"     envDefault:"100"`
	PoolMaxActive   int           `env:"POOL_MAX_ACTIVE"   envDefault:"1000"`
	PoolIdleTimeout time.Duration `env:"POOL_IDLE_TIMEOUT" envDefault:"5m"`

	// Circuit Breaker
	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES"  envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"60s"`
	BreakerTimeout      time.Duration `env:"BREAKER_TIMEOUT"       envDefault:"10s"`

	// Rate Limiting
	RateLimitCapacity  int64 `env:"RATE_LIMIT_CAPACITY"  envDefault:"100"`
	RateLimitRefill    int64 `env:"RATE_LIMIT_REFILL"    envDefault:"10"`
	GlobalRateCapacity int64 `env:"GLOBAL_RATE_CAPACITY" envDefault:"10000"`
	GlobalRateRefill   int64 `env:"GLOBAL_RATE_REFILL"   envDefault:"1000"`

	// Backend probe
	HealthCheckURI string `env:"HEALTH_CHECK_URI" envDefault:"/health_check"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting mhttp", slog.Int("max_goroutines", cfg.MaxGoroutines))

	m := metrics.New(metrics.DefaultNamespace)

	checker := health.NewChecker(10 * time.Second)
	checker.Register("goroutines", func(ctx context.Context) error {
		count := runtime.NumGoroutine()
		m.GoroutinesActive.WithLabelValues("all").Set(float64(count))
		if count > cfg.MaxGoroutines {
			return fmt.Errorf("too many goroutines: %d > %d", count, cfg.MaxGoroutines)
		}
		return nil
	})
	checker.Register("memory", func(ctx context.Context) error {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		m.MemoryAllocated.WithLabelValues("heap").Set(float64(stats.HeapAlloc))
		m.MemoryAllocated.WithLabelValues("sys").Set(float64(stats.Sys))
		return nil
	})

	perClientLimiter := ratelimit.NewLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefill, 10000)
	defer perClientLimiter.Close()
	globalLimiter := ratelimit.NewTokenBucket(cfg.GlobalRateCapacity, cfg.GlobalRateRefill)

	h := &InstrumentedHandler{
		handler: &RateLimitedHandler{
			handler:          simple.New(logger),
			perClientLimiter: perClientLimiter,
			globalLimiter:    globalLimiter,
			metrics:          m,
			logger:           logger,
		},
		metrics: m,
		logger:  logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	started := 0
	for _, prefix := range []string{httpWithoutTLS, httpWithTLS, httpWithmTLS} {
		closePool, err := startHTTPProxy(ctx, g, prefix, cfg, h, m, checker, logger)
		if err != nil {
			logger.Warn("HTTP proxy not started",
				slog.String("prefix", prefix),
				slog.String("error", err.Error()))
			continue
		}
		defer closePool()
		started++
	}
	if started == 0 {
		logger.Error("no HTTP proxy configured, set at least one *_PORT variable")
		os.Exit(1)
	}

	g.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		return serveHTTP(ctx, "metrics", fmt.Sprintf(":%d", cfg.MetricsPort), mux, logger)
	})

	g.Go(func() error {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", checker.HTTPHandler())
		mux.HandleFunc("/ready", checker.ReadinessHandler())
		mux.HandleFunc("/live", health.LivenessHandler())
		return serveHTTP(ctx, "health", fmt.Sprintf(":%d", cfg.HealthPort), mux, logger)
	})

	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, logger)
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		// Listeners drain for up to their own ShutdownTimeout.
		select {
		case err = <-done:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
			logger.Warn("Shutdown timeout exceeded, forcing exit")
			os.Exit(1)
		}
	}

	if err != nil {
		logger.Error(fmt.Sprintf("mhttp service terminated with error: %s", err))
		os.Exit(1)
	}
	logger.Info("mhttp service stopped")
}

// startHTTPProxy starts one proxy listener configured under envPrefix, with
// its own backend pool and circuit breaker. The returned func closes the pool.
func startHTTPProxy(ctx context.Context, g *errgroup.Group, envPrefix string, cfg Config, h handler.Handler, m *metrics.Metrics, checker *health.Checker, logger *slog.Logger) (func(), error) {
	pcfg, err := mhttp.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		return nil, err
	}
	if pcfg.Port == "" {
		return nil, errors.New("port not configured")
	}

	target := net.JoinHostPort(pcfg.TargetHost, pcfg.TargetPort)

	cb := breaker.New(breaker.Config{
		MaxFailures:      cfg.BreakerMaxFailures,
		ResetTimeout:     cfg.BreakerResetTimeout,
		SuccessThreshold: 2,
		Timeout:          cfg.BreakerTimeout,
	})
	cb.OnStateChange(func(from, to breaker.State) {
		logger.Warn("Circuit breaker state changed",
			slog.String("backend", target),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		m.CircuitBreakerState.WithLabelValues(target).Set(float64(to))
		if to == breaker.StateOpen {
			m.CircuitBreakerTrips.WithLabelValues(target).Inc()
		}
	})

	var dialer net.Dialer
	dial := func(ctx context.Context) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err != nil {
			m.BackendErrors.WithLabelValues(target, "dial").Inc()
		}
		return conn, err
	}

	connPool := pool.New(dial, pool.Config{
		MaxIdle:         cfg.PoolMaxIdle,
		MaxActive:       cfg.PoolMaxActive,
		IdleTimeout:     cfg.PoolIdleTimeout,
		MaxConnLifetime: 30 * time.Minute,
		DialTimeout:     10 * time.Second,
		WaitTimeout:     5 * time.Second,
	})

	checker.RegisterCritical("backend "+target, health.BackendCheck(dial, cfg.HealthCheckURI))
	checker.Register("connection_pool "+target, func(ctx context.Context) error {
		idle, active := connPool.Stats()
		m.BackendActiveConnections.WithLabelValues(target).Set(float64(active))
		logger.Debug("Connection pool stats",
			slog.String("backend", target),
			slog.Int("idle", idle),
			slog.Int("active", active))
		return nil
	})

	p := proxy.NewHTTP(proxy.HTTPConfig{
		Host:            pcfg.Host,
		Port:            pcfg.Port,
		TargetHost:      pcfg.TargetHost,
		TargetPort:      pcfg.TargetPort,
		TLSConfig:       pcfg.TLSConfig,
		MaxMessageSize:  pcfg.MaxMessageSize,
		ReadTimeout:     pcfg.ReadTimeout,
		ShutdownTimeout: pcfg.ShutdownTimeout,
		Dial: func(ctx context.Context) (net.Conn, error) {
			conn, err := connPool.Get(ctx)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		Breaker: cb,
		Metrics: m,
		Logger:  logger,
	}, h)

	g.Go(func() error {
		return p.Listen(ctx)
	})

	logger.Info("HTTP proxy started",
		slog.String("prefix", envPrefix),
		slog.String("address", net.JoinHostPort(pcfg.Host, pcfg.Port)),
		slog.String("target", target),
		slog.Bool("tls", pcfg.TLSConfig != nil))

	return func() { connPool.Close() }, nil
}

// serveHTTP runs an auxiliary HTTP server until ctx is canceled.
func serveHTTP(ctx context.Context, name, addr string, mux http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting "+name+" server", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// StopSignalHandler cancels ctx on SIGINT or SIGTERM.
func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	select {
	case sig := <-c:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
