package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	scerrors "github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

type lockPaths struct {
	cache    string
	lock     string
	sentinel string
}

func newLockPaths(t *testing.T) lockPaths {
	t.Helper()
	dir := t.TempDir()
	cache := filepath.Join(dir, "lambdapdk-v1.0-0123456789abcdef")
	return lockPaths{
		cache:    cache,
		lock:     cache + ".lock",
		sentinel: cache + ".sc_lock",
	}
}

func TestLockRegistryThreadContentionFailsFast(t *testing.T) {
	t.Parallel()

	registry := NewLockRegistry()
	paths := newLockPaths(t)

	release, err := registry.Acquire(context.Background(),
		paths.cache, paths.lock, paths.sentinel, time.Minute)
	require.NoError(t, err)

	start := time.Now()
	_, err = registry.Acquire(context.Background(),
		paths.cache, paths.lock, paths.sentinel, time.Minute)
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)

	var lockErr *scerrors.LockError
	require.ErrorAs(t, err, &lockErr)
	require.Equal(t, scerrors.LockHeldByThread, lockErr.Reason)
	require.Contains(t, err.Error(), "another thread is currently holding the lock")

	release()

	release, err = registry.Acquire(context.Background(),
		paths.cache, paths.lock, paths.sentinel, time.Minute)
	require.NoError(t, err)
	release()
}

func TestLockRegistryCrossProcessContention(t *testing.T) {
	t.Parallel()

	// Separate registries behave like separate processes: the thread
	// lock does not apply and contention lands on the lock file.
	processA := NewLockRegistry()
	processB := NewLockRegistry()
	paths := newLockPaths(t)

	releaseA, err := processA.Acquire(context.Background(),
		paths.cache, paths.lock, paths.sentinel, time.Minute)
	require.NoError(t, err)

	_, err = processB.Acquire(context.Background(),
		paths.cache, paths.lock, paths.sentinel, 300*time.Millisecond)
	require.Error(t, err)

	var lockErr *scerrors.LockError
	require.ErrorAs(t, err, &lockErr)
	require.Equal(t, scerrors.LockHeldByProcess, lockErr.Reason)
	require.Contains(t, err.Error(), "is still locked, delete the lock file if this is a mistake")

	releaseA()

	releaseB, err := processB.Acquire(context.Background(),
		paths.cache, paths.lock, paths.sentinel, time.Minute)
	require.NoError(t, err)
	releaseB()
}

func TestLockFilePersistsAfterRelease(t *testing.T) {
	t.Parallel()

	registry := NewLockRegistry()
	paths := newLockPaths(t)

	release, err := registry.Acquire(context.Background(),
		paths.cache, paths.lock, paths.sentinel, time.Minute)
	require.NoError(t, err)
	release()

	_, err = os.Stat(paths.lock)
	require.NoError(t, err)
	_, err = os.Stat(paths.sentinel)
	require.True(t, os.IsNotExist(err))
}

func TestSentinelClaimedAndRemoved(t *testing.T) {
	t.Parallel()

	paths := newLockPaths(t)

	release, err := acquireSentinel(context.Background(),
		paths.cache, paths.sentinel, time.Minute)
	require.NoError(t, err)

	_, err = os.Stat(paths.sentinel)
	require.NoError(t, err)

	release()
	_, err = os.Stat(paths.sentinel)
	require.True(t, os.IsNotExist(err))
}

func TestSentinelHeldTimesOut(t *testing.T) {
	t.Parallel()

	paths := newLockPaths(t)
	require.NoError(t, os.WriteFile(paths.sentinel, nil, 0o644))

	_, err := acquireSentinel(context.Background(),
		paths.cache, paths.sentinel, time.Millisecond)
	require.Error(t, err)

	var lockErr *scerrors.LockError
	require.ErrorAs(t, err, &lockErr)
	require.Equal(t, scerrors.LockHeldBySentinel, lockErr.Reason)
	require.Contains(t, err.Error(), "still exists")

	// The stale sentinel is left for the operator to inspect.
	_, err = os.Stat(paths.sentinel)
	require.NoError(t, err)
}
