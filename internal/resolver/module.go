package resolver

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

var (
	modulesMu sync.Mutex
	modules   = map[string]string{}
)

// RegisterModule binds a module name to its on-disk location so that
// module:// sources can find it. Embedding tools register the data
// directories they ship with at startup.
func RegisterModule(name, path string) {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	modules[name] = path
}

// ModuleResolver resolves module:// sources against the registered
// module table.
type ModuleResolver struct {
	*base
}

// NewModule builds a resolver for a module:// source.
func NewModule(name string, root Root, source string) (*ModuleResolver, error) {
	return &ModuleResolver{base: newBase(name, root, source, "")}, nil
}

func (r *ModuleResolver) Resolve(_ context.Context) (string, error) {
	parsed, err := r.sourceURL()
	if err != nil {
		return "", err
	}

	modulesMu.Lock()
	path, ok := modules[parsed.Host]
	modulesMu.Unlock()
	if !ok {
		return "", errors.NewResolveError(r.name,
			fmt.Sprintf("module '%s' has not been registered", parsed.Host), nil)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return abs, nil
}
