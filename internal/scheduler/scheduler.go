// Package scheduler bounds calls to a rate-limited upstream: one call in
// flight, a minimum spacing between calls, a bounded queue of waiters, and
// a cooldown that grows with consecutive failures.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mercator-labs/listing-sync/internal/domain"
)

type Config struct {
	// MinInterval is the floor between consecutive call starts.
	MinInterval time.Duration
	// BackoffBase is the cooldown added after the first consecutive
	// failure; it doubles per failure up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// MaxPending bounds how many callers may wait for the slot. Excess
	// callers fail immediately with domain.ErrRateLimitExceeded instead of
	// queueing unboundedly.
	MaxPending int
}

type Scheduler struct {
	cfg  Config
	slot chan struct{}

	mu       sync.Mutex
	pending  int
	attempts int
	nextAt   time.Time

	nowFn func() time.Time
}

func New(cfg Config) *Scheduler {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 10 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 10 * time.Minute
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 20
	}
	return &Scheduler{
		cfg:   cfg,
		slot:  make(chan struct{}, 1),
		nowFn: time.Now,
	}
}

// Do runs fn once the slot and the spacing/cooldown floors allow it.
//
// Failure bookkeeping distinguishes "upstream is unavailable, slow down"
// from "upstream definitively said no": any error except
// domain.ErrForbidden escalates the cooldown, while success or a
// forbidden/private answer resets it.
func (s *Scheduler) Do(ctx context.Context, fn func(context.Context) error) error {
	s.mu.Lock()
	if s.pending >= s.cfg.MaxPending {
		s.mu.Unlock()
		return domain.ErrRateLimitExceeded
	}
	s.pending++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.pending--
		s.mu.Unlock()
	}()

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.slot }()

	if err := s.waitFloor(ctx); err != nil {
		return err
	}

	err := fn(ctx)

	s.mu.Lock()
	now := s.nowFn()
	if err == nil || errors.Is(err, domain.ErrForbidden) {
		s.attempts = 0
		s.nextAt = now.Add(s.cfg.MinInterval)
	} else {
		s.attempts++
		s.nextAt = now.Add(s.cfg.MinInterval + s.cooldown(s.attempts))
	}
	s.mu.Unlock()
	return err
}

func (s *Scheduler) waitFloor(ctx context.Context) error {
	s.mu.Lock()
	wait := s.nextAt.Sub(s.nowFn())
	s.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) cooldown(attempts int) time.Duration {
	d := s.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= s.cfg.BackoffMax {
			return s.cfg.BackoffMax
		}
	}
	if d > s.cfg.BackoffMax {
		return s.cfg.BackoffMax
	}
	return d
}
