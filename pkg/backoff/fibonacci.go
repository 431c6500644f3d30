// Package backoff provides the fibonacci retry delays used for startup and collaborator calls.
package backoff

import (
	"context"
	"time"
)

// Fibonacci returns unit multiplied by the attempt'th fibonacci number (1, 1, 2, 3, 5, ...).
// Attempts start at 1.
func Fibonacci(attempt int, unit time.Duration) time.Duration {
	a, b := 1, 1
	for i := 1; i < attempt; i++ {
		a, b = b, a+b
	}
	return time.Duration(a) * unit
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
