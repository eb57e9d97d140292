package statestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StaleLockThreshold is the maximum age of a lock file before a new
// Supervisor instance is willing to steal it.
const StaleLockThreshold = 10 * time.Minute

var (
	// ErrLockHeld is returned by AcquireLock when a live lock is already held.
	ErrLockHeld = errors.New("statestore: server.lock is already held")
)

// Lock is an advisory, file-based mutex held for the lifetime of a running
// Supervisor, guarding against two Supervisor instances managing the same
// execution directory at once.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock creates executionDir/server.lock exclusively. If a lock file
// already exists and is older than StaleLockThreshold, it is treated as
// abandoned by a crashed process and stolen.
func AcquireLock(executionDir string) (*Lock, error) {
	if err := os.MkdirAll(executionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create execution directory: %w", err)
	}

	lockPath := filepath.Join(executionDir, "server.lock")

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if !isLockStale(lockPath) {
			return nil, ErrLockHeld
		}
		os.Remove(lockPath)
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
		if err != nil {
			return nil, ErrLockHeld
		}
	}

	fmt.Fprintf(file, "pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &Lock{path: lockPath, file: file}, nil
}

// Release closes and removes the lock file. Idempotent: a second call is a
// no-op. The lock is not reusable afterward.
func (l *Lock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

func isLockStale(lockPath string) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > StaleLockThreshold
}
