package file

import (
	"context"
	"time"

	"gitlab.com/vycodi/vycodi/coordinator"
)

// lockTTL and lockPoll match the original implementation's advisory
// per-file lock: a short-lived key that auto-expires if its holder
// crashes, reacquired every lockPoll while contended.
const (
	lockTTL  = 500 * time.Millisecond
	lockPoll = 100 * time.Millisecond
)

// withLock acquires the advisory lock at key for the duration of fn.
// The lock is best-effort: it is implemented as a short-TTL key rather
// than a true compare-and-swap, since the Coordinator interface has no
// SETNX primitive, mirroring the "advisory" framing in the
// specification. Acquisition retries every lockPoll until ctx is done.
func withLock(ctx context.Context, coord coordinator.Coordinator, key string, fn func() error) error {
	for {
		exists, err := coord.Exists(ctx, key)
		if err != nil {
			return err
		}
		if !exists {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPoll):
		}
	}
	if err := coord.SetEX(ctx, key, "1", lockTTL); err != nil {
		return err
	}
	defer coord.Del(ctx, key)
	return fn()
}
