package bytestore

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// DefaultLockTimeout bounds how long Lock waits to acquire exclusive access
// before giving up.
const DefaultLockTimeout = 5 * time.Second

// Lock represents a held advisory lock on a path. Call Close to release it.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes an exclusive advisory lock on path+".lock", retrying until
// timeout elapses. It exists so a host can serialize concurrent patchly
// invocations against the same source/output paths — the core itself makes
// no locking assumptions (see spec.md §5: "the core does not synchronize;
// the host serializes operations").
func Acquire(path string, timeout time.Duration) (*Lock, error) {
	lockPath := path + ".lock"

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %q: %w", lockPath, err)
	}

	deadline := time.Now().Add(timeout)
	const retryInterval = 10 * time.Millisecond

	for {
		flockErr := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if flockErr == nil {
			return &Lock{path: lockPath, file: file}, nil
		}

		if time.Now().After(deadline) {
			_ = file.Close()

			return nil, fmt.Errorf("acquiring lock on %q: timed out after %s", path, timeout)
		}

		time.Sleep(retryInterval)
	}
}

// Close releases the lock and closes the underlying file.
func (l *Lock) Close() error {
	if l.file == nil {
		return nil
	}

	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	l.file = nil

	return err
}
