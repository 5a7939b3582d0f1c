// Package project ties the parameter store, flowgraphs and resolvers
// together into the root context of a build pipeline. A Project owns the
// option, arg, record and dataroot sections of the store, mounts named
// flowgraphs, and acts as the resolver root for dataroot resolution.
package project

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/rtrevinnoc/siliconcompiler/internal/flowgraph"
	"github.com/rtrevinnoc/siliconcompiler/internal/logger"
	"github.com/rtrevinnoc/siliconcompiler/internal/resolver"
	"github.com/rtrevinnoc/siliconcompiler/internal/schema"
)

// Project is the root context of a pipeline run. It carries the parameter
// store holding every option, flowgraph and record, plus the session
// identity used by the resolver cache.
type Project struct {
	store     *schema.Store
	contextID string
	workDir   string
	log       *logger.Logger
}

var _ resolver.Root = (*Project)(nil)

// New creates a project with a freshly declared store. The design name may
// be empty and set later through the manifest.
func New(design string) *Project {
	store := schema.NewStore()
	edit := schema.Edit(store)
	w := schema.Wildcard

	mustInsert(edit, schema.Key("option", "design"),
		schema.MustParameter("str").
			WithShortHelp("name of the design being built"))
	mustInsert(edit, schema.Key("option", "flow"),
		schema.MustParameter("str").
			WithScope(schema.ScopeJob).
			WithShortHelp("flowgraph selected for the run"))
	mustInsert(edit, schema.Key("option", "from"),
		schema.MustParameter("[str]").
			WithScope(schema.ScopeJob).
			WithShortHelp("steps to start execution from"))
	mustInsert(edit, schema.Key("option", "to"),
		schema.MustParameter("[str]").
			WithScope(schema.ScopeJob).
			WithShortHelp("steps to end execution at"))
	mustInsert(edit, schema.Key("option", "prune"),
		schema.MustParameter("[(str,str)]").
			WithScope(schema.ScopeJob).
			WithShortHelp("nodes whose branches are pruned from the run"))
	mustInsert(edit, schema.Key("option", "cachedir"),
		schema.MustParameter("dir").
			WithScope(schema.ScopeJob).
			WithShortHelp("download cache for dataroot sources"))
	mustInsert(edit, schema.Key("option", "builddir"),
		schema.MustParameter("dir").
			WithScope(schema.ScopeJob).
			WithDefault("build").
			WithShortHelp("compilation output directory"))
	mustInsert(edit, schema.Key("option", "jobname"),
		schema.MustParameter("str").
			WithScope(schema.ScopeJob).
			WithDefault("job0").
			WithShortHelp("job directory name inside the build directory"))
	mustInsert(edit, schema.Key("option", "env", w),
		schema.MustParameter("str").
			WithShortHelp("environment variable override"))

	mustInsert(edit, schema.Key("arg", "step"),
		schema.MustParameter("str").
			WithScope(schema.ScopeJob).
			WithShortHelp("step argument of the active task"))
	mustInsert(edit, schema.Key("arg", "index"),
		schema.MustParameter("str").
			WithScope(schema.ScopeJob).
			WithShortHelp("index argument of the active task"))

	mustInsert(edit, schema.Key("record", "status"),
		schema.MustParameter("str").
			WithPerNode(schema.PerNodeRequired).
			WithShortHelp("execution status of a node"))
	mustInsert(edit, schema.Key("record", "inputnode"),
		schema.MustParameter("[(str,str)]").
			WithPerNode(schema.PerNodeRequired).
			WithShortHelp("input nodes selected by a task"))

	mustInsert(edit, schema.Key("dataroot", w, "path"),
		schema.MustParameter("str").
			WithShortHelp("source location of a data directory"))
	mustInsert(edit, schema.Key("dataroot", w, "tag"),
		schema.MustParameter("str").
			WithShortHelp("version reference of a data directory"))

	// The template flowgraph lets journal replay and manifest loading
	// instantiate flows the project never mounted explicitly.
	mustInsert(edit, schema.Key("flowgraph", w), flowgraph.New(w).Store())

	workDir, err := os.Getwd()
	if err != nil {
		workDir = "."
	}

	p := &Project{
		store:     store,
		contextID: uuid.NewString(),
		workDir:   workDir,
		log:       logger.Nop(),
	}
	if design != "" {
		if err := store.Set(schema.Key("option", "design"), design); err != nil {
			panic(err)
		}
	}
	return p
}

func mustInsert(edit *schema.EditStore, key schema.Keypath, item any) {
	if err := edit.Insert(key, item); err != nil {
		panic(err)
	}
}

// UseLogger attaches the logger the project and its resolvers write to.
func (p *Project) UseLogger(log *logger.Logger) {
	if log == nil {
		log = logger.Nop()
	}
	p.log = log
}

// UseWorkDir anchors relative paths at a directory other than the process
// working directory.
func (p *Project) UseWorkDir(dir string) {
	p.workDir = dir
}

// Store exposes the backing parameter store.
func (p *Project) Store() *schema.Store {
	return p.store
}

// Journal returns the root journal of the project store.
func (p *Project) Journal() *schema.Journal {
	return p.store.Journal()
}

// Name returns the design name.
func (p *Project) Name() string {
	return p.getString("option", "design")
}

// ContextID identifies this project for the resolver session cache.
func (p *Project) ContextID() string {
	return p.contextID
}

// WorkDir returns the directory relative paths are anchored at.
func (p *Project) WorkDir() string {
	return p.workDir
}

// Logger returns the project logger.
func (p *Project) Logger() *logger.Logger {
	return p.log
}

// EnvVar returns a project environment override from [option,env].
func (p *Project) EnvVar(name string) (string, bool) {
	value, err := p.store.Get(schema.Key("option", "env", name))
	if err != nil {
		return "", false
	}
	s, ok := value.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// SetEnv records an environment variable override.
func (p *Project) SetEnv(name, value string) error {
	return p.store.Set(schema.Key("option", "env", name), value)
}

// Lookup reads a path stored at a schema keypath, honoring the current
// arg step and index.
func (p *Project) Lookup(key ...string) (string, error) {
	step, index := p.Arg()
	value, err := p.store.Get(schema.Key(key...),
		schema.Step(step), schema.Index(index))
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s does not hold a path", schema.Key(key...))
	}
	return s, nil
}

// SetArg sets the step and index arguments of the active task.
func (p *Project) SetArg(step, index string) error {
	if err := p.store.Set(schema.Key("arg", "step"), step); err != nil {
		return err
	}
	return p.store.Set(schema.Key("arg", "index"), index)
}

// Arg returns the step and index arguments of the active task.
func (p *Project) Arg() (string, string) {
	return p.getString("arg", "step"), p.getString("arg", "index")
}

// AddFlowgraph mounts a flowgraph into the project store. Mounting a name
// that is already present is a no-op.
func (p *Project) AddFlowgraph(f *flowgraph.Flowgraph) error {
	key := schema.Key("flowgraph", f.Name())
	if p.store.Has(key) {
		return nil
	}
	return schema.Edit(p.store).Insert(key, f.Store())
}

// SetFlow mounts a flowgraph and selects it for the run.
func (p *Project) SetFlow(f *flowgraph.Flowgraph) error {
	if err := p.AddFlowgraph(f); err != nil {
		return err
	}
	return p.SelectFlow(f.Name())
}

// SelectFlow points [option,flow] at a mounted flowgraph.
func (p *Project) SelectFlow(name string) error {
	if !p.store.Has(schema.Key("flowgraph", name)) {
		return fmt.Errorf("%s has not been loaded", name)
	}
	return p.store.Set(schema.Key("option", "flow"), name)
}

// Flowgraph returns a mounted flowgraph by name.
func (p *Project) Flowgraph(name string) (*flowgraph.Flowgraph, error) {
	entry, err := schema.Edit(p.store).Search(schema.Key("flowgraph", name))
	if err != nil {
		return nil, fmt.Errorf("%s has not been loaded", name)
	}
	store, ok := entry.(*schema.Store)
	if !ok {
		return nil, fmt.Errorf("%s has not been loaded", name)
	}
	return flowgraph.FromStore(store), nil
}

// Flowgraphs returns the mounted flowgraph names in sorted order.
func (p *Project) Flowgraphs() []string {
	names, err := p.store.Keys("flowgraph")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == schema.Wildcard {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Flow returns the flowgraph selected by [option,flow].
func (p *Project) Flow() (*flowgraph.Flowgraph, error) {
	name := p.getString("option", "flow")
	if name == "" {
		return nil, fmt.Errorf("[option,flow] has not been set")
	}
	return p.Flowgraph(name)
}

// Runtime builds the runtime view of the selected flowgraph from the
// from, to and prune options.
func (p *Project) Runtime() (*flowgraph.Runtime, error) {
	flow, err := p.Flow()
	if err != nil {
		return nil, err
	}
	return flowgraph.NewRuntime(flow, flowgraph.RuntimeOptions{
		FromSteps: p.From(),
		ToSteps:   p.To(),
		Prune:     p.Prune(),
	})
}

// SetFrom replaces the list of steps execution starts from.
func (p *Project) SetFrom(steps ...string) error {
	return p.store.Set(schema.Key("option", "from"), steps)
}

// From returns the steps execution starts from.
func (p *Project) From() []string {
	return p.getStrings("option", "from")
}

// SetTo replaces the list of steps execution ends at.
func (p *Project) SetTo(steps ...string) error {
	return p.store.Set(schema.Key("option", "to"), steps)
}

// To returns the steps execution ends at.
func (p *Project) To() []string {
	return p.getStrings("option", "to")
}

// AddPrune marks a node whose branch is removed from the run.
func (p *Project) AddPrune(n flowgraph.Node) error {
	return p.store.Add(schema.Key("option", "prune"),
		[]string{n.Step, n.Index})
}

// Prune returns the pruned nodes.
func (p *Project) Prune() []flowgraph.Node {
	value, err := p.store.Get(schema.Key("option", "prune"))
	if err != nil {
		return nil
	}
	pairs, ok := value.([]any)
	if !ok {
		return nil
	}
	nodes := make([]flowgraph.Node, 0, len(pairs))
	for _, raw := range pairs {
		pair, ok := raw.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		step, _ := pair[0].(string)
		index, _ := pair[1].(string)
		nodes = append(nodes, flowgraph.Node{Step: step, Index: index})
	}
	return nodes
}

// SetCacheDir overrides the dataroot download cache directory.
func (p *Project) SetCacheDir(dir string) error {
	return p.store.Set(schema.Key("option", "cachedir"), dir)
}

// CacheDir returns the configured download cache directory, or "" for the
// default location.
func (p *Project) CacheDir() string {
	return p.getString("option", "cachedir")
}

// SetJobName names the job directory inside the build directory.
func (p *Project) SetJobName(name string) error {
	return p.store.Set(schema.Key("option", "jobname"), name)
}

// JobName returns the job directory name.
func (p *Project) JobName() string {
	return p.getString("option", "jobname")
}

// SetBuildDir overrides the compilation output directory.
func (p *Project) SetBuildDir(dir string) error {
	return p.store.Set(schema.Key("option", "builddir"), dir)
}

// BuildDir returns the absolute compilation output directory. Relative
// settings are anchored at the project working directory.
func (p *Project) BuildDir() string {
	dir := p.getString("option", "builddir")
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(p.workDir, dir)
}

// JobDir returns the directory of the current job,
// <builddir>/<design>/<jobname>.
func (p *Project) JobDir() (string, error) {
	name := p.Name()
	if name == "" {
		return "", fmt.Errorf("a design name has not been set")
	}
	return filepath.Join(p.BuildDir(), name, p.JobName()), nil
}

// NodeDir returns the working directory of a flowgraph node,
// <builddir>/<design>/<jobname>/<step>/<index>.
func (p *Project) NodeDir(n flowgraph.Node) (string, error) {
	jobDir, err := p.JobDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(jobDir, n.Step, n.Index), nil
}

// RecordStatus stores the execution status of a node.
func (p *Project) RecordStatus(n flowgraph.Node, status flowgraph.Status) error {
	return p.store.Set(schema.Key("record", "status"), string(status),
		schema.Step(n.Step), schema.Index(n.Index))
}

// NodeStatus returns the recorded status of a node. Nodes without a record
// are pending.
func (p *Project) NodeStatus(n flowgraph.Node) flowgraph.Status {
	value, err := p.store.Get(schema.Key("record", "status"),
		schema.Step(n.Step), schema.Index(n.Index))
	if err != nil {
		return flowgraph.StatusPending
	}
	s, ok := value.(string)
	if !ok || s == "" {
		return flowgraph.StatusPending
	}
	status, err := flowgraph.ParseStatus(s)
	if err != nil {
		return flowgraph.StatusPending
	}
	return status
}

// RecordInputNodes stores the input nodes a task selected.
func (p *Project) RecordInputNodes(n flowgraph.Node, inputs []flowgraph.Node) error {
	pairs := make([]any, 0, len(inputs))
	for _, in := range inputs {
		pairs = append(pairs, []any{in.Step, in.Index})
	}
	return p.store.Set(schema.Key("record", "inputnode"), pairs,
		schema.Step(n.Step), schema.Index(n.Index))
}

// InputNodes returns the recorded input nodes of a node.
func (p *Project) InputNodes(n flowgraph.Node) []flowgraph.Node {
	value, err := p.store.Get(schema.Key("record", "inputnode"),
		schema.Step(n.Step), schema.Index(n.Index))
	if err != nil {
		return nil
	}
	pairs, ok := value.([]any)
	if !ok {
		return nil
	}
	nodes := make([]flowgraph.Node, 0, len(pairs))
	for _, raw := range pairs {
		pair, ok := raw.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		step, _ := pair[0].(string)
		index, _ := pair[1].(string)
		nodes = append(nodes, flowgraph.Node{Step: step, Index: index})
	}
	return nodes
}

// SetDataroot registers a data source by name. A local file path anchors
// at its parent directory. Redefining a name with the same source and tag
// is a no-op; changing either is an error.
func (p *Project) SetDataroot(name, source, tag string) error {
	if source == "" {
		return fmt.Errorf("a dataroot path must be specified")
	}
	if info, err := os.Stat(source); err == nil && !info.IsDir() {
		abs, err := filepath.Abs(source)
		if err == nil {
			source = filepath.Dir(abs)
		}
	}

	pathKey := schema.Key("dataroot", name, "path")
	tagKey := schema.Key("dataroot", name, "tag")
	if p.store.Has(pathKey) {
		if p.getString("dataroot", name, "path") != source ||
			p.getString("dataroot", name, "tag") != tag {
			return fmt.Errorf("%s has already been defined", name)
		}
		return nil
	}

	if err := p.store.Set(pathKey, source); err != nil {
		return err
	}
	return p.store.Set(tagKey, tag)
}

// Dataroot returns the source and tag registered under a name.
func (p *Project) Dataroot(name string) (string, string, error) {
	if !p.store.Has(schema.Key("dataroot", name, "path")) {
		return "", "", fmt.Errorf("%s is not a recognized source", name)
	}
	return p.getString("dataroot", name, "path"),
		p.getString("dataroot", name, "tag"), nil
}

// Dataroots returns the registered data source names in sorted order.
func (p *Project) Dataroots() []string {
	names, err := p.store.Keys("dataroot")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == schema.Wildcard {
			continue
		}
		out = append(out, name)
	}
	return out
}

// ResolveDataroot locates a registered data source, fetching and caching
// remote sources as needed, and returns its local path.
func (p *Project) ResolveDataroot(ctx context.Context, name string) (string, error) {
	source, tag, err := p.Dataroot(name)
	if err != nil {
		return "", err
	}
	r, err := resolver.New(name, p, source, tag)
	if err != nil {
		return "", err
	}
	return resolver.Path(ctx, r)
}

// WriteManifest serializes the project store, embedding the journal when
// one is active.
func (p *Project) WriteManifest(w io.Writer) error {
	return p.store.WriteManifest(w)
}

// ReadManifest restores project state from a manifest.
func (p *Project) ReadManifest(r io.Reader) error {
	return p.store.ReadManifest(r)
}

// SaveManifest writes the manifest to a file.
func (p *Project) SaveManifest(path string) error {
	return p.store.SaveManifest(path)
}

// LoadManifest reads a manifest file into the project store.
func (p *Project) LoadManifest(path string) error {
	return p.store.LoadManifest(path)
}

// Replay applies the journal embedded in a manifest file to this project.
func (p *Project) Replay(path string) error {
	return schema.ReplayFile(p.store, path)
}

func (p *Project) getString(key ...string) string {
	value, err := p.store.Get(schema.Key(key...))
	if err != nil {
		return ""
	}
	s, _ := value.(string)
	return s
}

func (p *Project) getStrings(key ...string) []string {
	value, err := p.store.Get(schema.Key(key...))
	if err != nil {
		return nil
	}
	s, _ := value.([]string)
	return s
}
