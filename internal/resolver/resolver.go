// Package resolver locates the data sources named by a project: local
// files, schema keypaths, registered modules and remote git, http and
// github sources. Remote resolvers share an on-disk cache guarded by a
// thread lock and an inter-process file lock.
package resolver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rtrevinnoc/siliconcompiler/internal/logger"
	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// Root is the project context a resolver runs against. It supplies the
// session identity used for caching, the anchor for relative paths,
// environment overrides and schema lookups.
type Root interface {
	// ContextID identifies this root for the session cache.
	ContextID() string

	// WorkDir anchors relative file sources.
	WorkDir() string

	// EnvVar returns a project environment override.
	EnvVar(name string) (string, bool)

	// CacheDir returns the configured download cache directory, or ""
	// for the default location.
	CacheDir() string

	// Lookup reads a file path stored under a schema keypath.
	Lookup(key ...string) (string, error)

	Logger() *logger.Logger
}

// Resolver locates the local path of a named data source.
type Resolver interface {
	Name() string
	Root() Root
	Source() string
	Reference() string

	// CacheID is the stable identity of this source and reference pair.
	CacheID() string

	// Changed reports whether the last resolution fetched fresh data.
	// Reading the flag clears it.
	Changed() bool

	// Resolve locates or fetches the data and returns its local path.
	Resolve(ctx context.Context) (string, error)
}

// Factory builds a resolver for a source URI.
type Factory func(name string, root Root, source, reference string) (Resolver, error)

var (
	schemesMu   sync.Mutex
	schemesOnce sync.Once
	schemes     map[string]Factory
)

func ensureSchemes() {
	schemesOnce.Do(func() {
		schemes = map[string]Factory{
			"": func(name string, root Root, source, _ string) (Resolver, error) {
				return NewFile(name, root, source)
			},
			"file": func(name string, root Root, source, _ string) (Resolver, error) {
				return NewFile(name, root, source)
			},
			"key": func(name string, root Root, source, _ string) (Resolver, error) {
				return NewKeyRef(name, root, source)
			},
			"module": func(name string, root Root, source, _ string) (Resolver, error) {
				return NewModule(name, root, source)
			},
			"git":            gitFactory,
			"git+https":      gitFactory,
			"git+ssh":        gitFactory,
			"ssh":            gitFactory,
			"http":           httpFactory,
			"https":          httpFactory,
			"github":         githubFactory,
			"github+private": githubFactory,
		}
	})
}

func gitFactory(name string, root Root, source, reference string) (Resolver, error) {
	return NewGit(name, root, source, reference)
}

func httpFactory(name string, root Root, source, reference string) (Resolver, error) {
	return NewHTTP(name, root, source, reference)
}

func githubFactory(name string, root Root, source, reference string) (Resolver, error) {
	return NewGithub(name, root, source, reference)
}

// RegisterScheme adds or replaces the factory handling a URI scheme.
func RegisterScheme(scheme string, factory Factory) {
	ensureSchemes()
	schemesMu.Lock()
	defer schemesMu.Unlock()
	schemes[scheme] = factory
}

// New picks and builds the resolver for a source URI. Absolute paths
// resolve as local files regardless of any scheme registration.
func New(name string, root Root, source, reference string) (Resolver, error) {
	if filepath.IsAbs(source) {
		return NewFile(name, root, source)
	}

	ensureSchemes()
	parsed, err := url.Parse(source)
	if err != nil {
		return nil, errors.NewResolveError(name,
			fmt.Sprintf("source URI '%s' is not supported", source), err)
	}

	schemesMu.Lock()
	factory, ok := schemes[parsed.Scheme]
	schemesMu.Unlock()
	if !ok {
		return nil, errors.NewResolveError(name,
			fmt.Sprintf("source URI '%s' is not supported", source), nil)
	}
	return factory(name, root, source, reference)
}

// CacheID derives the stable identity of a source and reference pair.
func CacheID(source, reference string) string {
	sum := sha1.Sum([]byte(source + reference))
	return hex.EncodeToString(sum[:])
}

// base carries the state shared by every resolver kind.
type base struct {
	name      string
	root      Root
	source    string
	reference string
	log       *logger.Logger

	mu      sync.Mutex
	changed bool
	cacheID string
}

func newBase(name string, root Root, source, reference string) *base {
	return &base{
		name:      name,
		root:      root,
		source:    source,
		reference: reference,
		log:       loggerFor(name, root),
	}
}

func loggerFor(name string, root Root) *logger.Logger {
	if root != nil && root.Logger() != nil {
		return root.Logger().Named("resolver-" + name)
	}
	return logger.Nop()
}

func (b *base) Name() string      { return b.name }
func (b *base) Root() Root        { return b.root }
func (b *base) Source() string    { return b.source }
func (b *base) Reference() string { return b.reference }

func (b *base) CacheID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cacheID == "" {
		b.cacheID = CacheID(b.source, b.reference)
	}
	return b.cacheID
}

func (b *base) Changed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed := b.changed
	b.changed = false
	return changed
}

// SetChanged marks the resolved data as freshly fetched.
func (b *base) SetChanged() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changed = true
}

// expandSource substitutes ${NAME} variables into the source, project
// overrides first and the process environment second.
func (b *base) expandSource() string {
	return ExpandPath(b.root, b.source)
}

func (b *base) sourceURL() (*url.URL, error) {
	parsed, err := url.Parse(b.expandSource())
	if err != nil {
		return nil, errors.NewResolveError(b.name,
			fmt.Sprintf("malformed source URI '%s'", b.source), err)
	}
	return parsed, nil
}

// ExpandPath substitutes ${NAME} variables and a leading ~ in a path.
// Project environment overrides win over the process environment.
func ExpandPath(root Root, path string) string {
	expanded := os.Expand(path, func(name string) string {
		if root != nil {
			if value, ok := root.EnvVar(name); ok {
				return value
			}
		}
		return os.Getenv(name)
	})
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~/"))
		}
	}
	return expanded
}

var (
	sessionMu sync.Mutex
	session   = map[string]map[string]string{}
)

// CachedPath returns the session-cached path for a cache ID, or "".
func CachedPath(root Root, cacheID string) string {
	if root == nil {
		return ""
	}
	sessionMu.Lock()
	defer sessionMu.Unlock()
	return session[root.ContextID()][cacheID]
}

// SetCachedPath records a resolved path in the root's session cache.
func SetCachedPath(root Root, cacheID, path string) {
	if root == nil {
		return
	}
	sessionMu.Lock()
	defer sessionMu.Unlock()
	paths, ok := session[root.ContextID()]
	if !ok {
		paths = map[string]string{}
		session[root.ContextID()] = paths
	}
	paths[cacheID] = path
}

// SessionCache copies every cached path of a root context.
func SessionCache(root Root) map[string]string {
	if root == nil {
		return nil
	}
	sessionMu.Lock()
	defer sessionMu.Unlock()
	out := map[string]string{}
	for cacheID, path := range session[root.ContextID()] {
		out[cacheID] = path
	}
	return out
}

// ResetCache drops every cached path of a root context.
func ResetCache(root Root) {
	if root == nil {
		return
	}
	sessionMu.Lock()
	defer sessionMu.Unlock()
	delete(session, root.ContextID())
}

// Path resolves a source and returns its local path, consulting the
// session cache first. The resolved path must exist on disk.
func Path(ctx context.Context, r Resolver) (string, error) {
	if cached := CachedPath(r.Root(), r.CacheID()); cached != "" {
		return cached, nil
	}

	path, err := r.Resolve(ctx)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", errors.NewResolveError(r.Name(),
			fmt.Sprintf("unable to locate '%s' at %s", r.Name(), path), err)
	}

	log := loggerFor(r.Name(), r.Root())
	if r.Changed() {
		log.Infof("Saved %s data to %s", r.Name(), path)
	} else {
		log.Infof("Found %s data at %s", r.Name(), path)
	}

	SetCachedPath(r.Root(), r.CacheID(), path)
	return path, nil
}
