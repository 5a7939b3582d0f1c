// Package config loads declarative pipeline definitions from YAML and
// builds runnable projects from them.
package config

import (
	"gopkg.in/yaml.v3"
)

// Pipeline is the full pipeline definition document.
type Pipeline struct {
	Name      string            `yaml:"name" validate:"required,min=1,max=100"`
	Flow      FlowDef           `yaml:"flow"`
	Options   OptionsDef        `yaml:"options,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Dataroots []DatarootDef     `yaml:"dataroots,omitempty" validate:"omitempty,dive"`
}

// FlowDef declares the execution graph: the nodes running tool tasks and
// the edges wiring their outputs together.
type FlowDef struct {
	Name  string    `yaml:"name" validate:"required,step_id"`
	Nodes []NodeDef `yaml:"nodes" validate:"required,min=1,dive"`
	Edges []EdgeDef `yaml:"edges,omitempty" validate:"omitempty,dive"`
}

// NodeDef declares a single node of the flow.
type NodeDef struct {
	Step  string   `yaml:"step" validate:"required,step_id"`
	Index string   `yaml:"index,omitempty" validate:"omitempty,step_id"`
	Tool  string   `yaml:"tool" validate:"required,min=1"`
	Task  string   `yaml:"task" validate:"required,min=1"`
	Args  []string `yaml:"args,omitempty"`
}

// UnmarshalYAML applies the default index for nodes that omit it.
func (n *NodeDef) UnmarshalYAML(value *yaml.Node) error {
	type rawNode NodeDef
	var temp rawNode
	if err := value.Decode(&temp); err != nil {
		return err
	}
	*n = NodeDef(temp)
	if n.Index == "" {
		n.Index = "0"
	}
	return nil
}

// EdgeDef connects the tail node's output into the head node's inputs.
type EdgeDef struct {
	Tail      string `yaml:"tail" validate:"required,step_id"`
	Head      string `yaml:"head" validate:"required,step_id"`
	TailIndex string `yaml:"tailindex,omitempty" validate:"omitempty,step_id"`
	HeadIndex string `yaml:"headindex,omitempty" validate:"omitempty,step_id"`
}

// UnmarshalYAML applies the default indexes for edges that omit them.
func (e *EdgeDef) UnmarshalYAML(value *yaml.Node) error {
	type rawEdge EdgeDef
	var temp rawEdge
	if err := value.Decode(&temp); err != nil {
		return err
	}
	*e = EdgeDef(temp)
	if e.TailIndex == "" {
		e.TailIndex = "0"
	}
	if e.HeadIndex == "" {
		e.HeadIndex = "0"
	}
	return nil
}

// OptionsDef carries the run options applied to the project.
type OptionsDef struct {
	From     []string  `yaml:"from,omitempty" validate:"omitempty,dive,step_id"`
	To       []string  `yaml:"to,omitempty" validate:"omitempty,dive,step_id"`
	Prune    []NodeRef `yaml:"prune,omitempty" validate:"omitempty,dive"`
	JobName  string    `yaml:"jobname,omitempty" validate:"omitempty,step_id"`
	BuildDir string    `yaml:"builddir,omitempty"`
	CacheDir string    `yaml:"cachedir,omitempty"`
}

// NodeRef names a declared node by step and index.
type NodeRef struct {
	Step  string `yaml:"step" validate:"required,step_id"`
	Index string `yaml:"index,omitempty" validate:"omitempty,step_id"`
}

// UnmarshalYAML applies the default index for references that omit it.
func (r *NodeRef) UnmarshalYAML(value *yaml.Node) error {
	type rawRef NodeRef
	var temp rawRef
	if err := value.Decode(&temp); err != nil {
		return err
	}
	*r = NodeRef(temp)
	if r.Index == "" {
		r.Index = "0"
	}
	return nil
}

// DatarootDef registers a named data source the pipeline depends on.
type DatarootDef struct {
	Name   string `yaml:"name" validate:"required,step_id"`
	Source string `yaml:"source" validate:"required,source_uri"`
	Ref    string `yaml:"ref,omitempty"`
}
