// Package ratelimit implements the per-key sliding-window limiter with a
// short burst cap and a progressive blocking sub-state for repeat
// offenders. Keys are typically client IPs.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// burstWindow is the short interval the burst cap is measured over,
// distinct from the configurable sliding window.
const burstWindow = 10 * time.Second

// Config tunes the limiter. All values must be positive; a zero or
// negative value is a fatal configuration error.
type Config struct {
	RequestsPerMinute int
	BurstSize         int
	Window            time.Duration
	BlockDuration     time.Duration
}

// DefaultConfig returns the production defaults: 60 requests per minute,
// bursts of 10, a one-minute window and five-minute blocks.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		BurstSize:         10,
		Window:            time.Minute,
		BlockDuration:     5 * time.Minute,
	}
}

// Validate rejects configurations that would silently disable limiting.
func (c Config) Validate() error {
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("ratelimit: requests per minute must be positive, got %d", c.RequestsPerMinute)
	}
	if c.BurstSize <= 0 {
		return fmt.Errorf("ratelimit: burst size must be positive, got %d", c.BurstSize)
	}
	if c.Window <= 0 {
		return fmt.Errorf("ratelimit: window must be positive, got %s", c.Window)
	}
	if c.BlockDuration <= 0 {
		return fmt.Errorf("ratelimit: block duration must be positive, got %s", c.BlockDuration)
	}
	return nil
}

// State is the limiter record for one key: request timestamps inside the
// window, newest last, and an optional block expiry.
type State struct {
	Requests     []time.Time
	BlockedUntil time.Time
}

// Store owns per-key state. Update and Sweep run their callbacks under the
// same lock, so a sweep never removes a key concurrently being written.
type Store interface {
	// Update applies fn to the state for key, creating it when absent.
	Update(key string, fn func(*State))
	// Sweep removes every key for which fn returns true and reports how
	// many were removed.
	Sweep(fn func(key string, s *State) bool) int
}

// Limiter applies the sliding-window and burst rules over a Store.
type Limiter struct {
	cfg    Config
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithStore substitutes the state store.
func WithStore(store Store) Option {
	return func(l *Limiter) { l.store = store }
}

// WithLogger attaches a logger for block transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithClock substitutes the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New constructs a Limiter. The configuration must be valid.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Limiter{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = NewMemoryStore()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l, nil
}

// Check records a request for key and returns nil when it is allowed, or a
// typed rejection: *BlockedError while a block is active, *ExceededLimitError
// when the window fills (which also starts a block), *BurstExceededError when
// only the burst cap is hit (no block, request not recorded).
func (l *Limiter) Check(key string) error {
	now := l.now()
	var rejection error

	l.store.Update(key, func(s *State) {
		if !s.BlockedUntil.IsZero() {
			if now.Before(s.BlockedUntil) {
				rejection = &BlockedError{RetryAfter: s.BlockedUntil.Sub(now)}
				return
			}
			s.BlockedUntil = time.Time{}
		}

		s.Requests = pruneOlderThan(s.Requests, now.Add(-l.cfg.Window))

		if len(s.Requests) >= l.cfg.RequestsPerMinute {
			s.BlockedUntil = now.Add(l.cfg.BlockDuration)
			l.logger.Warn("rate limit exceeded, blocking key",
				slog.String("key", key),
				slog.Int("requests", len(s.Requests)),
				slog.Duration("block", l.cfg.BlockDuration))
			rejection = &ExceededLimitError{
				RequestsMade: len(s.Requests),
				Limit:        l.cfg.RequestsPerMinute,
				RetryAfter:   l.cfg.BlockDuration,
			}
			return
		}

		burstFloor := now.Add(-burstWindow)
		burst := 0
		oldestInBurst := time.Time{}
		for _, ts := range s.Requests {
			if ts.After(burstFloor) {
				if oldestInBurst.IsZero() {
					oldestInBurst = ts
				}
				burst++
			}
		}
		if burst >= l.cfg.BurstSize {
			retry := burstWindow
			if !oldestInBurst.IsZero() {
				retry = oldestInBurst.Add(burstWindow).Sub(now)
			}
			rejection = &BurstExceededError{
				BurstCount: burst,
				BurstLimit: l.cfg.BurstSize,
				RetryAfter: retry,
			}
			return
		}

		s.Requests = append(s.Requests, now)
	})

	return rejection
}

// Cleanup removes keys with no active block and no request inside the
// window, bounding memory for long-lived processes. It reports how many
// keys were dropped.
func (l *Limiter) Cleanup() int {
	now := l.now()
	floor := now.Add(-l.cfg.Window)
	return l.store.Sweep(func(key string, s *State) bool {
		if !s.BlockedUntil.IsZero() && now.Before(s.BlockedUntil) {
			return false
		}
		for _, ts := range s.Requests {
			if ts.After(floor) {
				return false
			}
		}
		return true
	})
}

// RunSweeper calls Cleanup on the given interval until the context is
// cancelled. Intended to run as a background goroutine from main.
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := l.Cleanup(); removed > 0 {
				l.logger.Debug("rate limiter sweep", slog.Int("removed", removed))
			}
		}
	}
}

// pruneOlderThan drops timestamps at or before floor, keeping order.
func pruneOlderThan(requests []time.Time, floor time.Time) []time.Time {
	kept := requests[:0]
	for _, ts := range requests {
		if ts.After(floor) {
			kept = append(kept, ts)
		}
	}
	return kept
}
