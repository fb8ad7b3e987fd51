package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultPollInterval is how often a pending operation is re-checked.
	DefaultPollInterval = 5 * time.Second

	// DefaultPollTimeout bounds how long a single operation may run.
	DefaultPollTimeout = 10 * time.Minute
)

// StatusFunc reports the state of an asynchronous provider operation.
// done is true once the operation reached a terminal state; err carries the
// operation's first embedded error message when it failed.
type StatusFunc func(ctx context.Context) (done bool, err error)

// Waiter polls asynchronous cloud operations to completion. Providers that
// expose a direct completion handle are awaited directly instead; the
// waiter covers operations that only expose a pollable status field.
type Waiter struct {
	// Interval is the polling interval.
	Interval time.Duration

	// Timeout bounds the total wait.
	Timeout time.Duration
}

// NewWaiter returns a waiter with the default 5s interval and 10m timeout.
func NewWaiter() *Waiter {
	return &Waiter{Interval: DefaultPollInterval, Timeout: DefaultPollTimeout}
}

// Wait polls status until it reports done, the timeout elapses, or the
// context is cancelled.
func (w *Waiter) Wait(ctx context.Context, op string, status StatusFunc) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := status(ctx)
		if err != nil {
			return NewProviderError(op, "", err)
		}
		if done {
			log.Debug().Str("op", op).Dur("elapsed", time.Since(started)).Msg("operation completed")
			return nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return NewTimeout(op, fmt.Errorf("operation not done after %s", timeout))
			}
			return NewProviderError(op, "", ctx.Err())
		case <-ticker.C:
		}
	}
}
