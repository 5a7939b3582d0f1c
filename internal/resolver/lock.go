package resolver

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	scerrors "github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// LockRegistry serializes access to download cache entries. A per-entry
// mutex guards against other goroutines in this process, then a flock
// on a .lock file guards against other processes. Filesystems without
// flock support fall back to a polled sentinel file.
//
// Each process normally uses the shared default registry; tests build
// separate registries to act as separate processes.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: map[string]*sync.Mutex{}}
}

var defaultLocks = NewLockRegistry()

func (r *LockRegistry) lockFor(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}

// Acquire takes the thread lock and then the file lock for a cache
// entry. The thread lock is not waited on: a goroutine contending with
// another goroutine for the same entry fails immediately. The file lock
// is waited on up to the timeout. The returned release function keeps
// the .lock file on disk for reuse and removes the sentinel when one
// was created.
func (r *LockRegistry) Acquire(ctx context.Context, cachePath, lockFile, sentinelFile string, timeout time.Duration) (func(), error) {
	threadLock := r.lockFor(lockFile)
	if !threadLock.TryLock() {
		return nil, scerrors.NewLockError(cachePath, lockFile, scerrors.LockHeldByThread, nil)
	}

	release, err := acquireFileLock(ctx, cachePath, lockFile, sentinelFile, timeout)
	if err != nil {
		threadLock.Unlock()
		return nil, err
	}

	return func() {
		release()
		threadLock.Unlock()
	}, nil
}

func acquireFileLock(ctx context.Context, cachePath, lockFile, sentinelFile string, timeout time.Duration) (func(), error) {
	fileLock := flock.New(lockFile)

	locked, err := fileLock.TryLock()
	if err != nil {
		// The lock file mechanism is unavailable, e.g. on a network
		// filesystem. Fall back to the sentinel protocol.
		return acquireSentinel(ctx, cachePath, sentinelFile, timeout)
	}
	if !locked {
		lockCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		locked, err = fileLock.TryLockContext(lockCtx, 500*time.Millisecond)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return acquireSentinel(ctx, cachePath, sentinelFile, timeout)
		}
		if !locked {
			return nil, scerrors.NewLockError(cachePath, lockFile, scerrors.LockHeldByProcess, err)
		}
	}

	return func() { _ = fileLock.Unlock() }, nil
}

// acquireSentinel waits for the sentinel file to clear, polling once a
// second, then claims it.
func acquireSentinel(ctx context.Context, cachePath, sentinelFile string, timeout time.Duration) (func(), error) {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(sentinelFile); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			return nil, scerrors.NewLockError(cachePath, sentinelFile, scerrors.LockHeldBySentinel, nil)
		}
		select {
		case <-ctx.Done():
			return nil, scerrors.NewLockError(cachePath, sentinelFile, scerrors.LockHeldBySentinel, ctx.Err())
		case <-time.After(time.Second):
		}
	}

	marker, err := os.OpenFile(sentinelFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, scerrors.NewLockError(cachePath, sentinelFile, scerrors.LockHeldBySentinel, err)
	}
	marker.Close()

	return func() { _ = os.Remove(sentinelFile) }, nil
}
