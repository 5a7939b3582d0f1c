package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	scerrors "github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// GitResolver clones a repository into the download cache and checks
// out the pinned reference. HTTPS sources pick up an access token from
// the environment; ssh sources rely on the user's ssh configuration.
type GitResolver struct {
	*Remote
}

// NewGit builds a resolver for git://, git+https://, git+ssh:// and
// ssh:// sources.
func NewGit(name string, root Root, source, reference string) (*GitResolver, error) {
	remote, err := NewRemote(name, root, source, reference)
	if err != nil {
		return nil, err
	}
	r := &GitResolver{Remote: remote}
	remote.bind(r)
	return r, nil
}

// CheckCache reports whether a usable repository sits at the cache
// path. A dirty worktree is kept with a warning; a corrupted one is
// deleted so the next fetch starts clean.
func (r *GitResolver) CheckCache() (bool, error) {
	if _, err := os.Stat(r.CachePath()); err != nil {
		return false, nil
	}

	repo, err := git.PlainOpen(r.CachePath())
	if err != nil {
		r.log.Warn("Deleting corrupted cache data.")
		if err := os.RemoveAll(r.CachePath()); err != nil {
			return false, err
		}
		return false, nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return true, nil
	}
	if status, err := worktree.Status(); err == nil && !status.IsClean() {
		r.log.Warn("The repo of the cached data is dirty.")
	}
	return true, nil
}

var tokenSanitizer = strings.NewReplacer(
	"#", "", "$", "", "&", "", "-", "", "=", "", "!", "", "/", "")

// tokenFromEnv searches GITHUB_<NAME>_TOKEN, GITHUB_TOKEN and
// GIT_TOKEN for an access token.
func tokenFromEnv(name string) string {
	clean := tokenSanitizer.Replace(strings.ToUpper(name))
	for _, env := range []string{"GITHUB_" + clean + "_TOKEN", "GITHUB_TOKEN", "GIT_TOKEN"} {
		if token := os.Getenv(env); token != "" {
			return token
		}
	}
	return ""
}

// CloneURL builds the URL handed to git. ssh sources keep their form;
// everything else is normalized to https with the token injected as
// the user when one is available.
func (r *GitResolver) CloneURL() (string, error) {
	parsed, err := r.sourceURL()
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "ssh" || parsed.Scheme == "git+ssh" {
		return strings.TrimPrefix(r.expandSource(), "git+"), nil
	}

	if parsed.User == nil {
		if token := tokenFromEnv(r.name); token != "" {
			parsed.User = url.User(token)
		}
	}
	parsed.Scheme = "https"
	return parsed.String(), nil
}

// ResolveRemote clones the repository with submodules and checks out
// the reference, which may be a branch, tag or commit hash.
func (r *GitResolver) ResolveRemote(ctx context.Context) error {
	cloneURL, err := r.CloneURL()
	if err != nil {
		return err
	}

	r.log.Infof("Cloning %s data from %s", r.name, r.source)
	repo, err := git.PlainCloneContext(ctx, r.CachePath(), false, &git.CloneOptions{
		URL:               cloneURL,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	})
	if err != nil {
		return r.cloneError(err)
	}

	r.log.Infof("Checking out %s", r.reference)
	hash, err := repo.ResolveRevision(plumbing.Revision(r.reference))
	if err != nil {
		return scerrors.NewResolveError(r.name,
			fmt.Sprintf("unable to resolve reference '%s'", r.reference), err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash}); err != nil {
		return scerrors.NewResolveError(r.name,
			fmt.Sprintf("unable to check out '%s'", r.reference), err)
	}
	return nil
}

func (r *GitResolver) cloneError(err error) error {
	if errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) {
		scheme := ""
		if parsed, parseErr := r.sourceURL(); parseErr == nil {
			scheme = parsed.Scheme
		}
		if scheme == "ssh" || scheme == "git+ssh" {
			return scerrors.NewResolveError(r.name,
				"failed to authenticate with git, ensure your ssh keys are set up correctly", err)
		}
		return scerrors.NewResolveError(r.name,
			"failed to authenticate with git, provide a token via GITHUB_TOKEN or use an ssh url", err)
	}
	return scerrors.NewResolveError(r.name,
		fmt.Sprintf("unable to clone '%s'", r.source), err)
}
