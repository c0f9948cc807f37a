package hotspot

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	apperr "github.com/fieldkit/hotspotd/internal/errors"
)

// DefaultLockPath serializes concurrent hotspotd invocations: racing boot
// units, watch cycles, and manual runs all funnel through one flock.
const DefaultLockPath = "/run/hotspotd.lock"

// fileLock is an advisory exclusive flock. The lock file itself persists;
// only the flock is released.
type fileLock struct {
	f *os.File
}

// acquireLock takes an exclusive non-blocking flock on path, retrying a
// bounded number of times before giving up with a LOCK_BUSY precondition.
func acquireLock(path string, attempts int, delay time.Duration) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock %s: %w", path, err)
	}

	for attempt := 1; ; attempt++ {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &fileLock{f: f}, nil
		}
		if err != unix.EWOULDBLOCK || attempt >= attempts {
			break
		}
		time.Sleep(delay)
	}

	_ = f.Close()
	if err == unix.EWOULDBLOCK {
		return nil, apperr.Preconditionf(apperr.ErrLockBusy,
			"another hotspotd run holds %s", path)
	}
	return nil, fmt.Errorf("lock %s: %w", path, err)
}

// release drops the flock and closes the file.
func (l *fileLock) release() {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
}
