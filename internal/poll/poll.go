// Package poll repeatedly fetches a value until a predicate holds or a bound expires.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

const DefaultInterval = 200 * time.Millisecond

var (
	ErrTimeout   = errors.New("timeout")
	ErrTransport = errors.New("transport error")
)

// TimeoutError is returned when the predicate never held but the last fetch
// succeeded, or when the bound expired while a fetch was still running.
type TimeoutError struct {
	Last    any
	Timeout time.Duration
	Elapsed time.Duration
	// Stalled is the error of the fetch the bound interrupted.
	Stalled error
}

func (e *TimeoutError) Error() string {
	if e.Stalled != nil {
		return fmt.Sprintf("%s: fetch still running when the bound of %s expired (%v), last value: %v", ErrTimeout, e.Timeout, e.Stalled, e.Last)
	}
	return fmt.Sprintf("%s: predicate did not hold within %s (elapsed %s), last value: %v", ErrTimeout, e.Timeout, e.Elapsed, e.Last)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// TransportError is returned when the bound expired and the last fetch failed.
type TransportError struct {
	Err     error
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s after %s (bound %s): %v", ErrTransport, e.Elapsed, e.Timeout, e.Err)
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Poller struct {
	Clock    clock.Clock
	Interval time.Duration
}

func NewPoller(clk clock.Clock, interval time.Duration) *Poller {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{Clock: clk, Interval: interval}
}

func DefaultPoller() *Poller {
	return NewPoller(nil, DefaultInterval)
}

// Until fetches until predicate holds for the fetched value. The first fetch
// happens immediately, further ones every interval. No fetch is started
// after the bound has expired and no sleep extends past it. Fetches are
// cancelled at the bound, only the last one, started right at the bound, may
// take one more interval.
func Until[T any](ctx context.Context, poller *Poller, fetch func(ctx context.Context) (T, error), predicate func(T) bool, timeout time.Duration) (T, error) {
	if poller == nil {
		poller = DefaultPoller()
	}
	start := poller.Clock.Now()
	deadline := start.Add(timeout)

	var last T
	var lastErr error
	for {
		fetchTimeout := deadline.Sub(poller.Clock.Now())
		if fetchTimeout <= 0 {
			// the last fetch happens right at the bound and gets one interval
			fetchTimeout = poller.Interval
		}
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		value, err := fetch(fetchCtx)
		stalled := err != nil && ctx.Err() == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded)
		cancel()
		if stalled {
			elapsed := max(poller.Clock.Now().Sub(start), timeout)
			return last, &TimeoutError{Last: last, Timeout: timeout, Elapsed: elapsed, Stalled: err}
		}
		if err == nil {
			if predicate(value) {
				return value, nil
			}
			last = value
		}
		lastErr = err

		now := poller.Clock.Now()
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			elapsed := now.Sub(start)
			if lastErr != nil {
				return last, &TransportError{Err: lastErr, Timeout: timeout, Elapsed: elapsed}
			}
			return last, &TimeoutError{Last: last, Timeout: timeout, Elapsed: elapsed}
		}

		if err := ctx.Err(); err != nil {
			return last, err
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-poller.Clock.TickAfter(min(poller.Interval, remaining)):
		}
	}
}
