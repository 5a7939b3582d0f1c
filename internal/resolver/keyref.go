package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// KeyRefResolver resolves key:// sources by reading the file path
// stored under a schema keypath of the root project, for example
// key://tool,openroad,exe.
type KeyRefResolver struct {
	*base
}

// NewKeyRef builds a resolver for a key:// source.
func NewKeyRef(name string, root Root, source string) (*KeyRefResolver, error) {
	return &KeyRefResolver{base: newBase(name, root, source, "")}, nil
}

// Keypath returns the schema keypath the source names.
func (r *KeyRefResolver) Keypath() ([]string, error) {
	parsed, err := r.sourceURL()
	if err != nil {
		return nil, err
	}
	if parsed.Host == "" {
		return nil, errors.NewResolveError(r.name,
			fmt.Sprintf("source URI '%s' does not name a keypath", r.source), nil)
	}
	return strings.Split(parsed.Host, ","), nil
}

func (r *KeyRefResolver) Resolve(_ context.Context) (string, error) {
	if r.root == nil {
		return "", errors.NewResolveError(r.name,
			fmt.Sprintf("a root schema has not been defined for '%s'", r.name), nil)
	}

	key, err := r.Keypath()
	if err != nil {
		return "", err
	}
	path, err := r.root.Lookup(key...)
	if err != nil {
		return "", errors.NewResolveError(r.name,
			fmt.Sprintf("unable to read keypath [%s]", strings.Join(key, ",")), err)
	}
	return path, nil
}
