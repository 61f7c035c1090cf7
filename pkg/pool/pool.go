// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package pool keeps backend connections open between client sessions.
//
// A proxied HTTP/1.x session borrows a backend connection with Get and hands
// it back with Close. The connection is only reusable if it was released at a
// message boundary; a session that ends mid-message must call Discard so the
// next session never reads the tail of someone else's response.
package pool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultMaxIdle         = 10
	defaultIdleTimeout     = 5 * time.Minute
	defaultMaxConnLifetime = 30 * time.Minute
	defaultDialTimeout     = 10 * time.Second
)

var (
	// ErrPoolClosed is returned by Get after Close.
	ErrPoolClosed = errors.New("backend pool is closed")
	// ErrPoolExhausted is returned when MaxActive connections are lent out
	// and none was released within WaitTimeout.
	ErrPoolExhausted = errors.New("backend pool exhausted")
)

// Config tunes a Pool. Zero values fall back to defaults, except MaxActive
// and WaitTimeout, where zero means unbounded and no waiting.
type Config struct {
	// MaxIdle caps the connections parked for reuse.
	MaxIdle int
	// MaxActive caps the connections lent out at once.
	MaxActive int
	// IdleTimeout closes parked connections unused for this long.
	IdleTimeout time.Duration
	// MaxConnLifetime retires connections older than this when they come back.
	MaxConnLifetime time.Duration
	// DialTimeout bounds a single backend dial.
	DialTimeout time.Duration
	// WaitTimeout is how long Get waits for a slot once MaxActive is reached.
	WaitTimeout time.Duration
}

// DialFunc opens a new backend connection.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Conn is a backend connection on loan from a Pool. Only the first Close or
// Discard takes effect; later calls are no-ops.
type Conn struct {
	net.Conn
	pool     *Pool
	born     time.Time
	released atomic.Bool
}

// Close parks the connection for the next session.
func (c *Conn) Close() error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	return c.pool.checkin(c)
}

// Discard closes the connection instead of parking it.
func (c *Conn) Discard() error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	c.pool.free()
	return c.Conn.Close()
}

type parked struct {
	conn  net.Conn
	born  time.Time
	since time.Time
}

// Pool lends backend connections to proxy sessions.
type Pool struct {
	dial DialFunc
	cfg  Config

	mu     sync.Mutex
	idle   []parked
	active int
	closed bool

	freed chan struct{}
	done  chan struct{}
}

// New returns a pool dialing through dial. It runs a background reaper until
// Close.
func New(dial DialFunc, cfg Config) *Pool {
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = defaultMaxIdle
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.MaxConnLifetime <= 0 {
		cfg.MaxConnLifetime = defaultMaxConnLifetime
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	p := &Pool{
		dial:  dial,
		cfg:   cfg,
		freed: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go p.reap()
	return p
}

// Get lends out the most recently parked connection, or dials a new one.
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	var wait <-chan time.Time
	for {
		pc, err := p.take()
		switch {
		case err == nil && pc != nil:
			return p.lend(pc.conn, pc.born), nil
		case err == nil:
			return p.open(ctx)
		case !errors.Is(err, ErrPoolExhausted) || p.cfg.WaitTimeout <= 0:
			return nil, err
		}

		if wait == nil {
			timer := time.NewTimer(p.cfg.WaitTimeout)
			defer timer.Stop()
			wait = timer.C
		}
		select {
		case <-p.freed:
		case <-wait:
			return nil, ErrPoolExhausted
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.done:
			return nil, ErrPoolClosed
		}
	}
}

// take reserves a slot and pops a usable parked connection, if there is one.
// A nil result with a nil error means the caller must dial.
func (p *Pool) take() (*parked, error) {
	var stale []net.Conn
	defer func() {
		for _, c := range stale {
			c.Close()
		}
	}()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	now := time.Now()
	for len(p.idle) > 0 {
		pc := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if p.expired(pc, now) {
			stale = append(stale, pc.conn)
			continue
		}
		p.active++
		return &pc, nil
	}

	if p.cfg.MaxActive > 0 && p.active >= p.cfg.MaxActive {
		return nil, ErrPoolExhausted
	}
	p.active++
	return nil, nil
}

func (p *Pool) open(ctx context.Context) (*Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()

	nc, err := p.dial(ctx)
	if err != nil {
		p.free()
		return nil, fmt.Errorf("dial backend: %w", err)
	}
	return p.lend(nc, time.Now()), nil
}

func (p *Pool) lend(nc net.Conn, born time.Time) *Conn {
	return &Conn{Conn: nc, pool: p, born: born}
}

func (p *Pool) checkin(c *Conn) error {
	now := time.Now()

	p.mu.Lock()
	p.active--
	keep := !p.closed &&
		len(p.idle) < p.cfg.MaxIdle &&
		now.Sub(c.born) <= p.cfg.MaxConnLifetime
	if keep {
		p.idle = append(p.idle, parked{conn: c.Conn, born: c.born, since: now})
	}
	p.mu.Unlock()

	p.notify()
	if keep {
		return nil
	}
	return c.Conn.Close()
}

// free gives back a slot whose connection is gone.
func (p *Pool) free() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	p.notify()
}

// notify wakes one Get waiting for a slot.
func (p *Pool) notify() {
	select {
	case p.freed <- struct{}{}:
	default:
	}
}

func (p *Pool) expired(pc parked, now time.Time) bool {
	return now.Sub(pc.since) > p.cfg.IdleTimeout || now.Sub(pc.born) > p.cfg.MaxConnLifetime
}

// reap closes parked connections that expired while nobody asked for them.
func (p *Pool) reap() {
	ticker := time.NewTicker(p.cfg.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case now := <-ticker.C:
			for _, c := range p.evict(now) {
				c.Close()
			}
		}
	}
}

func (p *Pool) evict(now time.Time) []net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stale []net.Conn
	kept := p.idle[:0]
	for _, pc := range p.idle {
		if p.expired(pc, now) {
			stale = append(stale, pc.conn)
			continue
		}
		kept = append(kept, pc)
	}
	clear(p.idle[len(kept):])
	p.idle = kept
	return stale
}

// Close closes every parked connection and fails later Gets. Connections on
// loan are closed when they come back.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, pc := range idle {
		pc.conn.Close()
	}
	return nil
}

// Stats reports how many connections are parked and how many are on loan.
func (p *Pool) Stats() (idle, active int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), p.active
}
