// Package proxy hands out egress proxy addresses to automation sessions.
package proxy

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const defaultPollInterval = time.Second

// Pool is a set of proxy addresses with checkout/return semantics. A checked
// out address is unavailable to other sessions until returned.
type Pool struct {
	mu        sync.Mutex
	available map[string]struct{}

	pollInterval time.Duration
}

// Option adjusts pool behavior.
type Option func(*Pool)

// WithPollInterval changes how often Checkout re-checks an empty pool.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// NewPool seeds the pool with addresses.
func NewPool(addrs []string, opts ...Option) *Pool {
	p := &Pool{
		available:    make(map[string]struct{}, len(addrs)),
		pollInterval: defaultPollInterval,
	}
	for _, a := range addrs {
		p.available[a] = struct{}{}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Checkout blocks until an address is free, polling while the pool is empty,
// or until the context ends.
func (p *Pool) Checkout(ctx context.Context) (string, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		if addr, ok := p.take(); ok {
			return addr, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("proxy checkout canceled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Return puts an address back into the pool. Idempotent; returning an address
// that was never checked out just makes it available.
func (p *Pool) Return(addr string) {
	if addr == "" {
		return
	}
	p.mu.Lock()
	p.available[addr] = struct{}{}
	p.mu.Unlock()
}

// Size reports how many addresses are currently available.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}

func (p *Pool) take() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr := range p.available {
		delete(p.available, addr)
		return addr, true
	}
	return "", false
}
