// Package serieslock provides an advisory lock on a destination root so two
// processes do not run against the same series at once.
package serieslock

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LockFileName is the lock file created in the destination root.
const LockFileName = ".pgl-series.lock"

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("destination is locked by another process")

// Lock is a held destination lock.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the lock on destination. With a zero wait it fails at once
// when the lock is held; otherwise it retries until wait has passed or ctx
// is done.
func Acquire(ctx context.Context, destination string, wait time.Duration) (*Lock, error) {
	path := filepath.Join(destination, LockFileName)
	fl := flock.New(path)

	var (
		ok  bool
		err error
	)
	if wait <= 0 {
		ok, err = fl.TryLock()
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		ok, err = fl.TryLockContext(waitCtx, 250*time.Millisecond)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("could not lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return &Lock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.fl.Path() }

// Release unlocks. The lock file itself is left in place.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
