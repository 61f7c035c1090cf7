// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package proxy wires the TCP server, the HTTP parser and a handler into a
// ready-to-run proxy.
//
// # Architecture
//
//	Application
//	     ↓
//	┌─────────────┐
//	│  HTTPProxy  │  (Coordinator)
//	└─────────────┘
//	     ↓
//	┌─────────────┐
//	│ tcp.Server  │  (Transport)
//	└─────────────┘
//	     ↓
//	┌─────────────┐
//	│ http.Parser │  (Protocol)
//	└─────────────┘
//	     ↓
//	┌─────────────┐
//	│   Handler   │  (Business Logic)
//	└─────────────┘
//
// # Usage Pattern
//
//	cfg := proxy.HTTPConfig{
//		Host:            "0.0.0.0",
//		Port:            "8080",
//		TargetHost:      "localhost",
//		TargetPort:      "8081",
//		ShutdownTimeout: 30 * time.Second,
//	}
//
//	p := proxy.NewHTTP(cfg, &MyHandler{})
//	if err := p.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Multiple Listeners
//
// Run plain and TLS listeners side by side with the same handler:
//
//	g, ctx := errgroup.WithContext(context.Background())
//	g.Go(func() error { return plain.Listen(ctx) })
//	g.Go(func() error { return secure.Listen(ctx) })
//	if err := g.Wait(); err != nil {
//		log.Fatal(err)
//	}
package proxy
