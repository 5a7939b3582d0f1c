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

// stubRemote stands in for a download-backed resolver so the shared
// cache and lock flow can be exercised without a network.
type stubRemote struct {
	*Remote
	checks  int
	fetches int
	valid   bool
}

func newStubRemote(t *testing.T, root Root, name, reference string) *stubRemote {
	t.Helper()

	remote, err := NewRemote(name, root, "https://example.com/"+name+".tar.gz", reference)
	require.NoError(t, err)

	s := &stubRemote{Remote: remote}
	remote.bind(s)
	return s
}

func (s *stubRemote) CheckCache() (bool, error) {
	s.checks++
	return s.valid, nil
}

func (s *stubRemote) ResolveRemote(_ context.Context) error {
	s.fetches++
	if err := os.MkdirAll(s.CachePath(), 0o755); err != nil {
		return err
	}
	s.valid = true
	return nil
}

func TestRemoteRequiresReference(t *testing.T) {
	root := newTestRoot(t)

	for _, build := range []func() error{
		func() error {
			_, err := NewGit("lambdapdk", root, "git+https://github.com/siliconcompiler/lambdapdk.git", "")
			return err
		},
		func() error {
			_, err := NewHTTP("lambdapdk", root, "https://example.com/pdk.tar.gz", "")
			return err
		},
		func() error {
			_, err := NewGithub("lambdapdk", root, "github://siliconcompiler/lambdapdk/v1/pdk.tgz", "")
			return err
		},
	} {
		err := build()
		require.Error(t, err)
		require.Contains(t, err.Error(),
			"a reference (e.g., version, commit) is required for lambdapdk")
	}
}

func TestRemoteCacheNaming(t *testing.T) {
	root := newTestRoot(t)
	root.cache = t.TempDir()

	source := "https://example.com/lambdapdk.tar.gz"
	reference := "v1.0.0-rc2+build.2024"
	r, err := NewHTTP("lambdapdk", root, source, reference)
	require.NoError(t, err)

	wantName := "lambdapdk-" + reference[:16] + "-" + CacheID(source, reference)[:16]
	require.Equal(t, wantName, r.CacheName())
	require.Equal(t, filepath.Join(root.cache, wantName), r.CachePath())
	require.Equal(t, r.CachePath()+".lock", r.LockFile())
	require.Equal(t, r.CachePath()+".sc_lock", r.SentinelFile())
}

func TestRemoteCacheNamingShortReference(t *testing.T) {
	root := newTestRoot(t)
	root.cache = t.TempDir()

	r, err := NewHTTP("lambdapdk", root, "https://example.com/pdk.tgz", "v1")
	require.NoError(t, err)
	require.Contains(t, r.CacheName(), "lambdapdk-v1-")
}

func TestDetermineCacheDir(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".sc", "cache"), DetermineCacheDir(nil))

	root := newTestRoot(t)
	require.Equal(t, filepath.Join(home, ".sc", "cache"), DetermineCacheDir(root))

	root.cache = "downloads"
	require.Equal(t, filepath.Join(root.workDir, "downloads"), DetermineCacheDir(root))

	abs := t.TempDir()
	root.cache = abs
	require.Equal(t, abs, DetermineCacheDir(root))
}

func TestRemoteResolveFetchesThenReusesCache(t *testing.T) {
	root := newTestRoot(t)
	root.cache = t.TempDir()

	r := newStubRemote(t, root, "lambdapdk", "v1.0")

	path, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, r.CachePath(), path)
	require.Equal(t, 1, r.fetches)
	require.True(t, r.Changed())

	// Second resolve hits the on-disk cache and fetches nothing.
	path, err = r.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, r.CachePath(), path)
	require.Equal(t, 1, r.fetches)
	require.Equal(t, 2, r.checks)
	require.False(t, r.Changed())

	// The inter-process lock file stays behind for the next run.
	_, err = os.Stat(r.LockFile())
	require.NoError(t, err)
	_, err = os.Stat(r.SentinelFile())
	require.True(t, os.IsNotExist(err))
}

func TestRemoteResolveDegradedWhenCacheDirUncreatable(t *testing.T) {
	root := newTestRoot(t)

	// A file where the cache directory should go makes MkdirAll fail
	// for any user.
	blocker := filepath.Join(root.workDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	root.cache = filepath.Join(blocker, "cache")

	r := newStubRemote(t, root, "lambdapdk", "v1.0")

	path, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, r.CachePath(), path)
	require.Zero(t, r.fetches)
	require.False(t, r.Changed())
}

func TestRemoteTimeoutAdjustable(t *testing.T) {
	root := newTestRoot(t)

	r := newStubRemote(t, root, "lambdapdk", "v1.0")
	require.Equal(t, DefaultTimeout, r.Timeout())

	r.SetTimeout(5 * time.Second)
	require.Equal(t, 5*time.Second, r.Timeout())
}

func TestRemoteResolveFailsFastOnThreadContention(t *testing.T) {
	root := newTestRoot(t)
	root.cache = t.TempDir()

	r := newStubRemote(t, root, "lambdapdk", "v1.0")

	release, err := r.locks.Acquire(context.Background(),
		r.CachePath(), r.LockFile(), r.SentinelFile(), r.Timeout())
	require.NoError(t, err)
	defer release()

	_, err = r.Resolve(context.Background())
	require.Error(t, err)

	var lockErr *scerrors.LockError
	require.ErrorAs(t, err, &lockErr)
	require.Equal(t, scerrors.LockHeldByThread, lockErr.Reason)
	require.Contains(t, err.Error(), "another thread is currently holding the lock")
}
