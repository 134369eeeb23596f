package websocket

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// ReconnectConfig holds the exponential backoff used between reconnection attempts.
type ReconnectConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = up to 20% extra
}

// Backoff yields increasing, jittered delays capped at MaxDelay.
type Backoff struct {
	cfg ReconnectConfig

	mu      sync.Mutex
	current time.Duration
}

// NewBackoff creates a backoff starting at cfg.InitialDelay.
func NewBackoff(cfg ReconnectConfig) *Backoff {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 2
	}
	return &Backoff{cfg: cfg, current: cfg.InitialDelay}
}

// Next returns the delay for this attempt and advances the schedule.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := time.Duration(float64(b.current) * (1 + rand.Float64()*b.cfg.JitterPercent))

	next := time.Duration(float64(b.current) * b.cfg.BackoffMultiplier)
	if next > b.cfg.MaxDelay {
		next = b.cfg.MaxDelay
	}
	b.current = next
	return d
}

// Reset returns to the initial delay after a successful connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.cfg.InitialDelay
}

// Wait sleeps for the next delay or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
