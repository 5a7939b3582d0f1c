package resolver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func initRepoAt(t *testing.T, dir string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	worktree, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"),
		[]byte("lambdapdk\n"), 0o644))
	_, err = worktree.Add("README.md")
	require.NoError(t, err)

	_, err = worktree.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "sc",
			Email: "sc@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)
}

func TestGitCloneURLs(t *testing.T) {
	root := newTestRoot(t)

	t.Setenv("GITHUB_LAMBDAPDK_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GIT_TOKEN", "")

	tests := []struct {
		name   string
		pkg    string
		source string
		env    map[string]string
		want   string
	}{
		{
			name:   "git+ssh keeps ssh form",
			pkg:    "lambdapdk",
			source: "git+ssh://git@github.com/siliconcompiler/lambdapdk.git",
			want:   "ssh://git@github.com/siliconcompiler/lambdapdk.git",
		},
		{
			name:   "ssh unchanged",
			pkg:    "lambdapdk",
			source: "ssh://git@github.com/siliconcompiler/lambdapdk.git",
			want:   "ssh://git@github.com/siliconcompiler/lambdapdk.git",
		},
		{
			name:   "git normalized to https",
			pkg:    "lambdapdk",
			source: "git://github.com/siliconcompiler/lambdapdk.git",
			want:   "https://github.com/siliconcompiler/lambdapdk.git",
		},
		{
			name:   "token injected as user",
			pkg:    "lambdapdk",
			source: "git+https://github.com/siliconcompiler/lambdapdk.git",
			env:    map[string]string{"GITHUB_TOKEN": "abc123"},
			want:   "https://abc123@github.com/siliconcompiler/lambdapdk.git",
		},
		{
			name:   "existing user kept",
			pkg:    "lambdapdk",
			source: "git+https://ci@github.com/siliconcompiler/lambdapdk.git",
			env:    map[string]string{"GITHUB_TOKEN": "abc123"},
			want:   "https://ci@github.com/siliconcompiler/lambdapdk.git",
		},
		{
			name:   "package token wins",
			pkg:    "lambda-pdk",
			source: "git+https://github.com/siliconcompiler/lambdapdk.git",
			env: map[string]string{
				"GITHUB_LAMBDAPDK_TOKEN": "specific",
				"GITHUB_TOKEN":           "generic",
			},
			want: "https://specific@github.com/siliconcompiler/lambdapdk.git",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			r, err := NewGit(tt.pkg, root, tt.source, "main")
			require.NoError(t, err)

			got, err := r.CloneURL()
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestGitCheckCacheAcceptsRepository(t *testing.T) {
	root := newTestRoot(t)
	root.cache = t.TempDir()

	r, err := NewGit("lambdapdk", root,
		"git+https://github.com/siliconcompiler/lambdapdk.git", "v1.0")
	require.NoError(t, err)

	ok, err := r.CheckCache()
	require.NoError(t, err)
	require.False(t, ok)

	initRepoAt(t, r.CachePath())

	ok, err = r.CheckCache()
	require.NoError(t, err)
	require.True(t, ok)

	// A dirty worktree is kept, only warned about.
	require.NoError(t, os.WriteFile(filepath.Join(r.CachePath(), "scratch.v"),
		[]byte("x"), 0o644))
	ok, err = r.CheckCache()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGitCheckCacheRemovesCorruptedEntry(t *testing.T) {
	root := newTestRoot(t)
	root.cache = t.TempDir()

	r, err := NewGit("lambdapdk", root,
		"git+https://github.com/siliconcompiler/lambdapdk.git", "v1.0")
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(r.CachePath(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(r.CachePath(), ".git"),
		[]byte("not a gitdir pointer"), 0o644))

	ok, err := r.CheckCache()
	require.NoError(t, err)
	require.False(t, ok)

	_, err = os.Stat(r.CachePath())
	require.True(t, os.IsNotExist(err))
}
