package resolver

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// FileResolver resolves local filesystem paths. Relative sources are
// anchored at the root's working directory and normalized to file://
// form, so equivalent spellings share a cache ID.
type FileResolver struct {
	*base
}

// NewFile builds a resolver for a file:// source or a bare path.
func NewFile(name string, root Root, source string) (*FileResolver, error) {
	source = strings.TrimPrefix(source, "file://")
	if source == "" {
		return nil, errors.NewResolveError(name, "a file source cannot be empty", nil)
	}
	if !strings.HasPrefix(source, "$") && !strings.HasPrefix(source, "~") &&
		!filepath.IsAbs(source) {
		source = filepath.Join(workDir(root), source)
	}
	return &FileResolver{base: newBase(name, root, "file://"+source, "")}, nil
}

func workDir(root Root) string {
	if root != nil && root.WorkDir() != "" {
		return root.WorkDir()
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// LocalPath returns the absolute path the source points at, with
// environment variables expanded.
func (r *FileResolver) LocalPath() string {
	path := strings.TrimPrefix(r.expandSource(), "file://")
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func (r *FileResolver) Resolve(_ context.Context) (string, error) {
	return r.LocalPath(), nil
}
