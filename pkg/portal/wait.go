package portal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// SleepFunc pauses for d or until ctx is done, returning ctx.Err() in the
// latter case. Tests substitute their own to drive the schedule.
type SleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext is the default SleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
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

// waitForFile polls until path exists, timeout elapses or ctx is done.
func waitForFile(ctx context.Context, path string, timeout, interval time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_, err := os.Stat(path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%s after %s: %w", path, timeout, ErrFileTimeout)
		case <-ticker.C:
		}
	}
}
