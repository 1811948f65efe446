package storage

import (
	"context"
	"time"

	"github.com/gofrs/flock"
)

// FileLock defines the interface for cross-process file locking
type FileLock interface {
	// TryLockContext attempts to acquire an exclusive lock, retrying at
	// retryInterval until ctx is done
	TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error)

	// TryRLockContext attempts to acquire a shared lock the same way
	TryRLockContext(ctx context.Context, retryInterval time.Duration) (bool, error)

	// Unlock releases the lock
	Unlock() error
}

// FileLockFactory creates FileLock instances
type FileLockFactory interface {
	New(path string) FileLock
}

// FlockFactory creates locks backed by github.com/gofrs/flock
type FlockFactory struct{}

// New implements FileLockFactory.New
func (FlockFactory) New(path string) FileLock {
	return flock.New(path)
}
