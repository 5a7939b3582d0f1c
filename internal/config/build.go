package config

import (
	"sort"

	"github.com/rtrevinnoc/siliconcompiler/internal/flowgraph"
	"github.com/rtrevinnoc/siliconcompiler/internal/project"
	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// Build instantiates a validated pipeline definition into a project. The
// flow is constructed, mounted and selected, then options, environment
// overrides and dataroots are applied.
func Build(p *Pipeline) (*project.Project, error) {
	if p == nil {
		return nil, errors.NewValidationError("pipeline", "pipeline is nil", nil)
	}

	f := flowgraph.New(p.Flow.Name)
	for _, n := range p.Flow.Nodes {
		opts := []flowgraph.NodeOption{flowgraph.WithIndex(n.Index)}
		if len(n.Args) > 0 {
			opts = append(opts, flowgraph.WithArgs(n.Args...))
		}
		if _, err := f.AddNode(n.Step, n.Tool, n.Task, opts...); err != nil {
			return nil, err
		}
	}
	for _, e := range p.Flow.Edges {
		err := f.AddEdge(e.Tail, e.Head,
			flowgraph.TailIndex(e.TailIndex), flowgraph.HeadIndex(e.HeadIndex))
		if err != nil {
			return nil, err
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	proj := project.New(p.Name)
	if err := proj.SetFlow(f); err != nil {
		return nil, err
	}

	if len(p.Options.From) > 0 {
		if err := proj.SetFrom(p.Options.From...); err != nil {
			return nil, err
		}
	}
	if len(p.Options.To) > 0 {
		if err := proj.SetTo(p.Options.To...); err != nil {
			return nil, err
		}
	}
	for _, ref := range p.Options.Prune {
		err := proj.AddPrune(flowgraph.Node{Step: ref.Step, Index: ref.Index})
		if err != nil {
			return nil, err
		}
	}
	if p.Options.JobName != "" {
		if err := proj.SetJobName(p.Options.JobName); err != nil {
			return nil, err
		}
	}
	if p.Options.BuildDir != "" {
		if err := proj.SetBuildDir(p.Options.BuildDir); err != nil {
			return nil, err
		}
	}
	if p.Options.CacheDir != "" {
		if err := proj.SetCacheDir(p.Options.CacheDir); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(p.Env))
	for name := range p.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := proj.SetEnv(name, p.Env[name]); err != nil {
			return nil, err
		}
	}

	for _, d := range p.Dataroots {
		if err := proj.SetDataroot(d.Name, d.Source, d.Ref); err != nil {
			return nil, err
		}
	}

	return proj, nil
}
