package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// DefaultTimeout bounds how long a resolver waits for another process
// to release a cache entry.
const DefaultTimeout = 10 * time.Minute

// remoteOps is the fetch side a concrete remote resolver implements.
type remoteOps interface {
	// CheckCache reports whether the on-disk cache entry is usable.
	CheckCache() (bool, error)

	// ResolveRemote fetches the data into the cache path.
	ResolveRemote(ctx context.Context) error
}

// Remote carries the behavior shared by resolvers that download data:
// the cache directory layout, locking and the cached resolve flow.
type Remote struct {
	*base
	ops     remoteOps
	locks   *LockRegistry
	timeout time.Duration
}

// NewRemote builds the shared remote state. Remote sources must pin a
// reference so the cache entry is reproducible.
func NewRemote(name string, root Root, source, reference string) (*Remote, error) {
	if reference == "" {
		return nil, errors.NewResolveError(name,
			fmt.Sprintf("a reference (e.g., version, commit) is required for %s", name), nil)
	}
	return &Remote{
		base:    newBase(name, root, source, reference),
		locks:   defaultLocks,
		timeout: DefaultTimeout,
	}, nil
}

// bind attaches the concrete resolver implementing the fetch side.
func (r *Remote) bind(ops remoteOps) {
	r.ops = ops
}

// Timeout returns the lock wait budget.
func (r *Remote) Timeout() time.Duration {
	return r.timeout
}

// SetTimeout adjusts the lock wait budget.
func (r *Remote) SetTimeout(timeout time.Duration) {
	r.timeout = timeout
}

// UseLockRegistry swaps the lock registry. Tests hand each simulated
// process its own registry.
func (r *Remote) UseLockRegistry(locks *LockRegistry) {
	r.locks = locks
}

// DetermineCacheDir returns the download cache directory of a root,
// falling back to ~/.sc/cache. A relative configured directory is
// anchored at the root's working directory.
func DetermineCacheDir(root Root) string {
	if root != nil {
		if dir := root.CacheDir(); dir != "" {
			dir = ExpandPath(root, dir)
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(workDir(root), dir)
			}
			return dir
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".sc", "cache")
}

// CacheDir returns the download cache directory for this resolver.
func (r *Remote) CacheDir() string {
	return DetermineCacheDir(r.root)
}

// CacheName is the directory name of this cache entry, derived from
// the package name, the reference and the cache ID.
func (r *Remote) CacheName() string {
	return fmt.Sprintf("%s-%s-%s", r.name, truncate(r.reference, 16), truncate(r.CacheID(), 16))
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// CachePath is the on-disk location of this cache entry.
func (r *Remote) CachePath() string {
	return filepath.Join(r.CacheDir(), r.CacheName())
}

// LockFile is the inter-process lock file of this cache entry. It
// stays on disk after release.
func (r *Remote) LockFile() string {
	return r.CachePath() + ".lock"
}

// SentinelFile is the fallback lock marker used when flock is not
// available. It is removed on release.
func (r *Remote) SentinelFile() string {
	return r.CachePath() + ".sc_lock"
}

// Resolve returns the cache path, fetching the remote data under lock
// when the cache entry is missing or invalid. When the cache directory
// cannot be created or written to, the path is returned as-is and the
// consumer surfaces the miss.
func (r *Remote) Resolve(ctx context.Context) (string, error) {
	cacheDir := r.CacheDir()
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return r.CachePath(), nil
	}
	if !dirWritable(cacheDir) {
		return r.CachePath(), nil
	}

	release, err := r.locks.Acquire(ctx, r.CachePath(), r.LockFile(), r.SentinelFile(), r.timeout)
	if err != nil {
		return "", err
	}
	defer release()

	ok, err := r.ops.CheckCache()
	if err != nil {
		return "", err
	}
	if ok {
		return r.CachePath(), nil
	}

	if err := r.ops.ResolveRemote(ctx); err != nil {
		return "", err
	}
	r.SetChanged()
	return r.CachePath(), nil
}

func dirWritable(dir string) bool {
	probe, err := os.CreateTemp(dir, ".sc-probe-*")
	if err != nil {
		return false
	}
	probe.Close()
	os.Remove(probe.Name())
	return true
}
