// Package flowgraph models the build pipeline as a directed acyclic graph
// of (step, index) nodes stored inside a parameter store, and computes the
// pruned runtime views used to schedule and inspect a run.
package flowgraph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rtrevinnoc/siliconcompiler/internal/schema"
	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// Node identifies a single vertex in a flowgraph.
type Node struct {
	Step  string
	Index string
}

// String renders the node in step/index form.
func (n Node) String() string {
	return n.Step + "/" + n.Index
}

// ParseNode parses "step/index" notation. A bare step gets index "0".
func ParseNode(s string) (Node, error) {
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return Node{}, fmt.Errorf("empty node name")
		}
		return Node{Step: parts[0], Index: "0"}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Node{}, fmt.Errorf("malformed node name %q", s)
		}
		return Node{Step: parts[0], Index: parts[1]}, nil
	}
	return Node{}, fmt.Errorf("malformed node name %q", s)
}

// Flowgraph is a DAG of pipeline nodes backed by a parameter store. Each
// node carries its tool, task, arguments, metric weights and the list of
// input nodes feeding it.
type Flowgraph struct {
	name  string
	store *schema.Store
}

// New creates an empty flowgraph with the given name.
func New(name string) *Flowgraph {
	store := schema.NewNamedStore(name)
	edit := schema.Edit(store)
	w := schema.Wildcard

	mustInsert(edit, schema.Key(w, w, "tool"),
		schema.MustParameter("str").WithShortHelp("tool executing the node"))
	mustInsert(edit, schema.Key(w, w, "task"),
		schema.MustParameter("str").WithShortHelp("task performed by the node"))
	mustInsert(edit, schema.Key(w, w, "args"),
		schema.MustParameter("[str]").WithShortHelp("extra task arguments"))
	mustInsert(edit, schema.Key(w, w, "input"),
		schema.MustParameter("[(str,str)]").WithShortHelp("input nodes"))
	mustInsert(edit, schema.Key(w, w, "weight", w),
		schema.MustParameter("float").WithShortHelp("metric weight"))
	mustInsert(edit, schema.Key(w, w, "goal", w),
		schema.MustParameter("float").WithShortHelp("metric goal"))

	return &Flowgraph{name: name, store: store}
}

// FromStore wraps an existing flowgraph store, typically one mounted in a
// project manifest.
func FromStore(store *schema.Store) *Flowgraph {
	return &Flowgraph{name: store.Name(), store: store}
}

func mustInsert(edit *schema.EditStore, key schema.Keypath, item any) {
	if err := edit.Insert(key, item); err != nil {
		panic(err)
	}
}

// Name returns the flowgraph name.
func (f *Flowgraph) Name() string {
	return f.name
}

// Store exposes the backing parameter store so the flowgraph can be
// mounted into a project tree.
func (f *Flowgraph) Store() *schema.Store {
	return f.store
}

// NodeOption adjusts node creation.
type NodeOption func(*nodeSettings)

type nodeSettings struct {
	index string
	args  []string
}

// WithIndex sets the node index, which defaults to "0".
func WithIndex(index string) NodeOption {
	return func(s *nodeSettings) { s.index = index }
}

// WithArgs attaches extra task arguments to the node.
func WithArgs(args ...string) NodeOption {
	return func(s *nodeSettings) { s.args = args }
}

func checkName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if name == schema.Wildcard || name == schema.GlobalKey {
		return fmt.Errorf("%s name %q is reserved", kind, name)
	}
	if strings.ContainsAny(name, "/, \t\n") {
		return fmt.Errorf("%s name %q contains reserved characters", kind, name)
	}
	return nil
}

// AddNode declares a node running tool/task. Declaring the same
// (step, index) again overwrites its metadata.
func (f *Flowgraph) AddNode(step, tool, task string, opts ...NodeOption) (Node, error) {
	settings := nodeSettings{index: "0"}
	for _, opt := range opts {
		opt(&settings)
	}

	if err := checkName("step", step); err != nil {
		return Node{}, errors.NewGraphError(f.name, err.Error(), err)
	}
	if err := checkName("index", settings.index); err != nil {
		return Node{}, errors.NewGraphError(f.name, err.Error(), err)
	}
	if tool == "" || task == "" {
		return Node{}, errors.NewGraphError(f.name,
			fmt.Sprintf("node %s/%s requires a tool and a task", step, settings.index), nil)
	}

	node := Node{Step: step, Index: settings.index}
	if err := f.store.Set(schema.Key(step, settings.index, "tool"), tool); err != nil {
		return Node{}, err
	}
	if err := f.store.Set(schema.Key(step, settings.index, "task"), task); err != nil {
		return Node{}, err
	}
	if len(settings.args) > 0 {
		if err := f.store.Set(schema.Key(step, settings.index, "args"), settings.args); err != nil {
			return Node{}, err
		}
	}
	return node, nil
}

// EdgeOption adjusts edge creation.
type EdgeOption func(*edgeSettings)

type edgeSettings struct {
	tailIndex string
	headIndex string
}

// TailIndex selects the tail node index, which defaults to "0".
func TailIndex(index string) EdgeOption {
	return func(s *edgeSettings) { s.tailIndex = index }
}

// HeadIndex selects the head node index, which defaults to "0".
func HeadIndex(index string) EdgeOption {
	return func(s *edgeSettings) { s.headIndex = index }
}

// AddEdge connects tail into head's input set. Both endpoints must be
// declared; a duplicate edge is a no-op.
func (f *Flowgraph) AddEdge(tailStep, headStep string, opts ...EdgeOption) error {
	settings := edgeSettings{tailIndex: "0", headIndex: "0"}
	for _, opt := range opts {
		opt(&settings)
	}

	tail := Node{Step: tailStep, Index: settings.tailIndex}
	head := Node{Step: headStep, Index: settings.headIndex}
	if !f.Has(tail) {
		return errors.NewGraphError(f.name,
			fmt.Sprintf("edge references undeclared node %s", tail), nil)
	}
	if !f.Has(head) {
		return errors.NewGraphError(f.name,
			fmt.Sprintf("edge references undeclared node %s", head), nil)
	}

	inputs, err := f.NodeInputs(head)
	if err != nil {
		return err
	}
	for _, existing := range inputs {
		if existing == tail {
			return nil
		}
	}
	return f.store.Add(schema.Key(head.Step, head.Index, "input"),
		[]string{tail.Step, tail.Index})
}

// Has reports whether a node is declared.
func (f *Flowgraph) Has(n Node) bool {
	return f.store.Has(schema.Key(n.Step, n.Index))
}

// Nodes lists all declared nodes sorted by step, then numeric index.
func (f *Flowgraph) Nodes() []Node {
	var out []Node
	steps, err := f.store.Keys()
	if err != nil {
		return nil
	}
	for _, step := range steps {
		if step == schema.Wildcard {
			continue
		}
		indexes, err := f.store.Keys(step)
		if err != nil {
			continue
		}
		for _, index := range indexes {
			if index == schema.Wildcard {
				continue
			}
			out = append(out, Node{Step: step, Index: index})
		}
	}
	sortNodes(out)
	return out
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Step != nodes[j].Step {
			return nodes[i].Step < nodes[j].Step
		}
		return lessIndex(nodes[i].Index, nodes[j].Index)
	})
}

// lessIndex orders numeric indexes numerically so "2" sorts before "10".
func lessIndex(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

// NodeInputs returns the declared inputs of a node in edge insertion
// order.
func (f *Flowgraph) NodeInputs(n Node) ([]Node, error) {
	raw, err := f.store.Get(schema.Key(n.Step, n.Index, "input"))
	if err != nil {
		return nil, err
	}
	return pairsToNodes(raw)
}

func pairsToNodes(raw any) ([]Node, error) {
	pairs, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("malformed input node list %v", raw)
	}
	out := make([]Node, 0, len(pairs))
	for _, rawPair := range pairs {
		pair, ok := rawPair.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("malformed input node %v", rawPair)
		}
		step, _ := pair[0].(string)
		index, _ := pair[1].(string)
		out = append(out, Node{Step: step, Index: index})
	}
	return out, nil
}

// NodeOutputs returns the nodes that consume n, sorted.
func (f *Flowgraph) NodeOutputs(n Node) ([]Node, error) {
	var out []Node
	for _, candidate := range f.Nodes() {
		inputs, err := f.NodeInputs(candidate)
		if err != nil {
			return nil, err
		}
		for _, input := range inputs {
			if input == n {
				out = append(out, candidate)
				break
			}
		}
	}
	return out, nil
}

// EntryNodes returns the nodes with no inputs, sorted.
func (f *Flowgraph) EntryNodes() ([]Node, error) {
	var out []Node
	for _, n := range f.Nodes() {
		inputs, err := f.NodeInputs(n)
		if err != nil {
			return nil, err
		}
		if len(inputs) == 0 {
			out = append(out, n)
		}
	}
	return out, nil
}

// ExitNodes returns the nodes nothing consumes, sorted.
func (f *Flowgraph) ExitNodes() ([]Node, error) {
	consumed := map[Node]bool{}
	for _, n := range f.Nodes() {
		inputs, err := f.NodeInputs(n)
		if err != nil {
			return nil, err
		}
		for _, input := range inputs {
			consumed[input] = true
		}
	}

	var out []Node
	for _, n := range f.Nodes() {
		if !consumed[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

// NodeTool returns the tool configured for a node.
func (f *Flowgraph) NodeTool(n Node) (string, error) {
	return f.nodeString(n, "tool")
}

// NodeTask returns the task configured for a node.
func (f *Flowgraph) NodeTask(n Node) (string, error) {
	return f.nodeString(n, "task")
}

func (f *Flowgraph) nodeString(n Node, key string) (string, error) {
	raw, err := f.store.Get(schema.Key(n.Step, n.Index, key))
	if err != nil {
		return "", err
	}
	s, _ := raw.(string)
	return s, nil
}

// NodeArgs returns the extra task arguments configured for a node.
func (f *Flowgraph) NodeArgs(n Node) ([]string, error) {
	raw, err := f.store.Get(schema.Key(n.Step, n.Index, "args"))
	if err != nil {
		return nil, err
	}
	args, _ := raw.([]string)
	return args, nil
}

// SetNodeWeight sets the weight of a metric on a node.
func (f *Flowgraph) SetNodeWeight(n Node, metric string, weight float64) error {
	return f.store.Set(schema.Key(n.Step, n.Index, "weight", metric), weight)
}

// NodeWeight reads the weight of a metric on a node.
func (f *Flowgraph) NodeWeight(n Node, metric string) (float64, error) {
	raw, err := f.store.Get(schema.Key(n.Step, n.Index, "weight", metric))
	if err != nil {
		return 0, err
	}
	weight, _ := raw.(float64)
	return weight, nil
}

// SetNodeGoal sets the goal of a metric on a node.
func (f *Flowgraph) SetNodeGoal(n Node, metric string, goal float64) error {
	return f.store.Set(schema.Key(n.Step, n.Index, "goal", metric), goal)
}

// NodeGoal reads the goal of a metric on a node.
func (f *Flowgraph) NodeGoal(n Node, metric string) (float64, error) {
	raw, err := f.store.Get(schema.Key(n.Step, n.Index, "goal", metric))
	if err != nil {
		return 0, err
	}
	goal, _ := raw.(float64)
	return goal, nil
}

// RemoveNode deletes a node and splices its inputs onto its dependents.
// An empty index removes every index of the step.
func (f *Flowgraph) RemoveNode(step, index string) error {
	var victims []Node
	for _, n := range f.Nodes() {
		if n.Step == step && (index == "" || n.Index == index) {
			victims = append(victims, n)
		}
	}
	if len(victims) == 0 {
		return errors.NewGraphError(f.name,
			fmt.Sprintf("node %s/%s is not declared", step, index), nil)
	}

	for _, victim := range victims {
		preds, err := f.NodeInputs(victim)
		if err != nil {
			return err
		}

		for _, consumer := range f.Nodes() {
			if consumer == victim {
				continue
			}
			inputs, err := f.NodeInputs(consumer)
			if err != nil {
				return err
			}
			spliced := splice(inputs, victim, preds)
			if spliced == nil {
				continue
			}
			if err := f.setInputs(consumer, spliced); err != nil {
				return err
			}
		}

		if err := f.store.Remove(schema.Key(victim.Step, victim.Index)); err != nil {
			return err
		}
		remaining, err := f.store.Keys(victim.Step)
		if err != nil {
			return err
		}
		concrete := 0
		for _, idx := range remaining {
			if idx != schema.Wildcard {
				concrete++
			}
		}
		if concrete == 0 {
			if err := f.store.Remove(schema.Key(victim.Step)); err != nil {
				return err
			}
		}
	}
	return nil
}

// splice replaces victim with its predecessors inside an input list,
// preserving order. It returns nil when the list does not reference the
// victim.
func splice(inputs []Node, victim Node, preds []Node) []Node {
	found := false
	out := make([]Node, 0, len(inputs)+len(preds))
	for _, input := range inputs {
		if input != victim {
			out = append(out, input)
			continue
		}
		found = true
		for _, pred := range preds {
			duplicate := false
			for _, existing := range out {
				if existing == pred {
					duplicate = true
					break
				}
			}
			if !duplicate {
				out = append(out, pred)
			}
		}
	}
	if !found {
		return nil
	}
	return out
}

func (f *Flowgraph) setInputs(n Node, inputs []Node) error {
	pairs := make([]any, len(inputs))
	for i, input := range inputs {
		pairs[i] = []any{input.Step, input.Index}
	}
	return f.store.Set(schema.Key(n.Step, n.Index, "input"), pairs)
}

// ExecutionOrder returns the nodes grouped into dependency levels. With
// reverse set, the levels follow the transposed edges, ordering exits
// first.
func (f *Flowgraph) ExecutionOrder(reverse bool) ([][]Node, error) {
	nodes := f.Nodes()
	edges := map[Node][]Node{}
	for _, n := range nodes {
		inputs, err := f.NodeInputs(n)
		if err != nil {
			return nil, err
		}
		for _, input := range inputs {
			if reverse {
				edges[n] = append(edges[n], input)
			} else {
				edges[input] = append(edges[input], n)
			}
		}
	}
	return levelize(f.name, nodes, edges)
}

// levelize runs Kahn's algorithm, keeping each level sorted for
// deterministic output.
func levelize(flow string, nodes []Node, edges map[Node][]Node) ([][]Node, error) {
	indegree := map[Node]int{}
	for _, n := range nodes {
		indegree[n] = 0
	}
	for _, targets := range edges {
		for _, target := range targets {
			indegree[target]++
		}
	}

	var queue []Node
	for _, n := range nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	sortNodes(queue)

	processed := 0
	var levels [][]Node
	for len(queue) > 0 {
		level := append([]Node(nil), queue...)
		levels = append(levels, level)

		var next []Node
		for _, n := range level {
			processed++
			for _, target := range edges[n] {
				indegree[target]--
				if indegree[target] == 0 {
					next = append(next, target)
				}
			}
		}
		sortNodes(next)
		queue = next
	}

	if processed != len(nodes) {
		var stuck []Node
		for _, n := range nodes {
			if indegree[n] > 0 {
				stuck = append(stuck, n)
			}
		}
		sortNodes(stuck)
		return nil, errors.NewGraphError(flow,
			fmt.Sprintf("cycle detected involving %s", stuck[0]), nil)
	}
	return levels, nil
}

// Validate checks the flowgraph for structural problems: nodes missing
// tool or task metadata, edges referencing undeclared nodes and cycles.
func (f *Flowgraph) Validate() error {
	nodes := f.Nodes()
	declared := map[Node]bool{}
	for _, n := range nodes {
		declared[n] = true
	}

	for _, n := range nodes {
		tool, err := f.NodeTool(n)
		if err != nil {
			return err
		}
		task, err := f.NodeTask(n)
		if err != nil {
			return err
		}
		if tool == "" || task == "" {
			return errors.NewGraphError(f.name,
				fmt.Sprintf("node %s is missing tool or task metadata", n), nil)
		}

		inputs, err := f.NodeInputs(n)
		if err != nil {
			return err
		}
		for _, input := range inputs {
			if !declared[input] {
				return errors.NewGraphError(f.name,
					fmt.Sprintf("node %s references undeclared input %s", n, input), nil)
			}
		}
	}

	_, err := f.ExecutionOrder(false)
	return err
}
