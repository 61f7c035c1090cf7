// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides rate limiting using token bucket algorithm.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	mperrors "github.com/absmach/mhttp/pkg/errors"
)

const cleanupInterval = time.Minute

// ErrRateLimitExceeded is returned when rate limit is exceeded. Proxies answer
// it with 503 Service Unavailable.
var ErrRateLimitExceeded = fmt.Errorf("%w: limit exceeded", mperrors.ErrRateLimited)

// TokenBucket implements the token bucket algorithm for rate limiting.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewTokenBucket creates a new token bucket rate limiter.
// capacity is the maximum number of tokens.
// refillRate is the number of tokens added per second.
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: float64(refillRate),
		lastRefill: time.Now(),
	}
}

// Allow checks if a request should be allowed.
// Returns true if allowed, false if rate limited.
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN checks if N requests should be allowed.
func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(time.Now())

	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}

	return false
}

// refill adds the tokens earned since the last refill. Fractions carry over,
// so slow refill rates are not lost to rounding.
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now

	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > float64(tb.capacity) {
		tb.tokens = float64(tb.capacity)
	}
}

// full reports whether the bucket refilled completely, i.e. it carries no
// state worth keeping.
func (tb *TokenBucket) full(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	return tb.tokens >= float64(tb.capacity)
}

// Available returns the number of whole tokens available.
func (tb *TokenBucket) Available() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(time.Now())
	return int64(tb.tokens)
}

// Limiter keeps a token bucket per client key, e.g. a username or a remote
// address.
type Limiter struct {
	mu         sync.RWMutex
	limiters   map[string]*TokenBucket
	capacity   int64
	refillRate int64
	maxClients int
	done       chan struct{}
	closeOnce  sync.Once
}

// NewLimiter creates a new rate limiter with per-client tracking. Buckets that
// refilled completely are dropped periodically.
func NewLimiter(capacity, refillRate int64, maxClients int) *Limiter {
	if maxClients == 0 {
		maxClients = 10000
	}

	l := &Limiter{
		limiters:   make(map[string]*TokenBucket),
		capacity:   capacity,
		refillRate: refillRate,
		maxClients: maxClients,
		done:       make(chan struct{}),
	}

	go l.cleaner()

	return l
}

// Allow checks if a request from the given client should be allowed.
func (l *Limiter) Allow(clientID string) bool {
	return l.AllowN(clientID, 1)
}

// AllowN checks if N requests from the given client should be allowed. A new
// client is refused while maxClients clients hold partially drained buckets.
func (l *Limiter) AllowN(clientID string, n int64) bool {
	l.mu.RLock()
	tb, exists := l.limiters[clientID]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		tb, exists = l.limiters[clientID]
		if !exists {
			if len(l.limiters) >= l.maxClients {
				l.evict(time.Now())
			}
			if len(l.limiters) >= l.maxClients {
				l.mu.Unlock()
				return false
			}

			tb = NewTokenBucket(l.capacity, l.refillRate)
			l.limiters[clientID] = tb
		}
		l.mu.Unlock()
	}

	return tb.AllowN(n)
}

// Remove removes a client's rate limiter.
func (l *Limiter) Remove(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, clientID)
}

// evict drops full buckets. A full bucket behaves exactly like a new one.
// Callers hold mu.
func (l *Limiter) evict(now time.Time) {
	for id, tb := range l.limiters {
		if tb.full(now) {
			delete(l.limiters, id)
		}
	}
}

func (l *Limiter) cleaner() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			l.evict(now)
			l.mu.Unlock()
		}
	}
}

// Stats returns the number of tracked clients.
func (l *Limiter) Stats() (clients int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}
