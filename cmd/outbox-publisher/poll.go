package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// poller tracks the wait between batches.
type poller struct {
	interval time.Duration
	ceiling  time.Duration
	current  time.Duration
}

func newPoller(interval, ceiling time.Duration) *poller {
	return &poller{interval: interval, ceiling: ceiling, current: interval}
}

func (p *poller) reset() { p.current = p.interval }

func (p *poller) idle() time.Duration {
	p.reset()
	return withJitter(p.interval)
}

func (p *poller) failed() time.Duration {
	p.current = nextBackoff(p.current, p.interval, p.ceiling)
	return withJitter(p.current)
}

// nextBackoff doubles current, starting from base, capped at ceiling.
func nextBackoff(current, base, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, ceiling)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
