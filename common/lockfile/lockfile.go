// Package lockfile provides cross-process advisory locking for files on a
// shared filesystem. The default implementation uses flock(2) against a
// sentinel lock file placed beside the protected file. Locks block until
// acquired and have no lifetime: a holder keeps the lock until it releases it
// or the process exits. Production deployments require a filesystem with
// working flock/lease semantics; tests can substitute MapLocker.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// Locker serializes access to a file across writers. Lock blocks until the
// lock named by path is held and returns the function that releases it.
type Locker interface {
	Lock(path string) (release func() error, err error)
}

// LockPath derives the lock-file path for a protected file: a hidden
// ".<basename>.lock" sentinel in the same directory.
func LockPath(target string) string {
	return filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".lock")
}

// FileLocker implements Locker with flock(2). The lock file is created on
// first use and never removed; only its flock state matters, not its content.
type FileLocker struct{}

func (FileLocker) Lock(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return func() error {
		// Closing the descriptor drops the flock even if the explicit
		// unlock fails.
		defer f.Close()
		return unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}, nil
}

// MapLocker implements Locker with in-process mutexes keyed by path. It only
// serializes goroutines within one process and is intended for tests and for
// callers running against an in-memory filesystem.
type MapLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMapLocker() *MapLocker {
	return &MapLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *MapLocker) Lock(path string) (func() error, error) {
	l.mu.Lock()
	m, ok := l.locks[path]
	if !ok {
		m = &sync.Mutex{}
		l.locks[path] = m
	}
	l.mu.Unlock()
	m.Lock()
	return func() error {
		m.Unlock()
		return nil
	}, nil
}
