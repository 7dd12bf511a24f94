package tools

import (
	"context"
	"sync"
	"time"
)

const DefaultSearchInterval = time.Second

// Lease spaces outbound calls at least interval apart. Acquire holds the lock while it
// waits, so concurrent callers queue behind each other.
type Lease struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewLease(interval time.Duration) *Lease {
	if interval <= 0 {
		interval = DefaultSearchInterval
	}
	return &Lease{
		interval: interval,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Acquire blocks until the next call is allowed or ctx is done.
func (l *Lease) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() {
		if wait := l.last.Add(l.interval).Sub(l.now()); wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	l.last = l.now()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
