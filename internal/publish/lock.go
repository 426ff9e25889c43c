package publish

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrDrainRunning is returned when another process holds the drain lock.
var ErrDrainRunning = errors.New("another drain is already running")

// Lock is an exclusive, process-wide drain lock.
type Lock struct {
	fl *flock.Flock
}

// LockPath returns the drain lock file inside dataDir.
func LockPath(dataDir string) string {
	return filepath.Join(dataDir, "drain.lock")
}

// AcquireLock takes the drain lock without blocking.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring drain lock: %w", err)
	}
	if !ok {
		return nil, ErrDrainRunning
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
