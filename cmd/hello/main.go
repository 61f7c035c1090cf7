// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/mhttp/examples/hello"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

type config struct {
	Address    string `env:"MHTTP_HELLO_ADDRESS"     envDefault:"localhost:3000"`
	BufferSize int    `env:"MHTTP_HELLO_BUFFER_SIZE" envDefault:"1028"`
	LogLevel   string `env:"MHTTP_HELLO_LOG_LEVEL"   envDefault:"info"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	server := hello.New(hello.Config{
		Address:    cfg.Address,
		BufferSize: cfg.BufferSize,
		Logger:     logger,
	})

	g.Go(func() error {
		return server.Listen(ctx)
	})

	g.Go(func() error {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(c)
		select {
		case sig := <-c:
			logger.Info("received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("hello server terminated with error: %s", err))
		os.Exit(1)
	}
	logger.Info("hello server stopped")
}
