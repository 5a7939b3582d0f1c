package flowgraph

import (
	"fmt"
	"sort"

	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// RuntimeOptions narrows a flowgraph to the portion a run should execute.
type RuntimeOptions struct {
	// FromSteps limits execution to nodes reachable from these steps.
	// Empty means the graph's entry nodes.
	FromSteps []string

	// ToSteps limits execution to nodes that can reach these steps.
	// Empty means the graph's exit nodes.
	ToSteps []string

	// Prune removes these nodes and everything depending on them.
	Prune []Node
}

// Runtime is a pruned, restricted view of a flowgraph. The underlying
// graph is not modified; the view recomputes node sets and edges limited
// to the surviving nodes.
type Runtime struct {
	flow    *Flowgraph
	nodes   []Node
	inSet   map[Node]bool
	inputs  map[Node][]Node
	unknown []string
}

// NewRuntime computes the runtime view of a flowgraph. Pruned nodes and
// their transitive dependents are removed first, then the view keeps only
// nodes on a path between the from and to steps.
func NewRuntime(f *Flowgraph, opts RuntimeOptions) (*Runtime, error) {
	all := f.Nodes()
	declared := map[Node]bool{}
	for _, n := range all {
		declared[n] = true
	}

	fullInputs := map[Node][]Node{}
	for _, n := range all {
		inputs, err := f.NodeInputs(n)
		if err != nil {
			return nil, err
		}
		fullInputs[n] = inputs
	}

	alive := map[Node]bool{}
	for _, n := range all {
		alive[n] = true
	}
	for _, victim := range opts.Prune {
		if !declared[victim] {
			return nil, errors.NewGraphError(f.Name(),
				fmt.Sprintf("pruned node %s is not declared", victim), nil)
		}
		for doomed := range dependents(victim, all, fullInputs) {
			delete(alive, doomed)
		}
	}

	var unknown []string
	fromNodes := stepNodes(opts.FromSteps, all, alive, &unknown)
	toNodes := stepNodes(opts.ToSteps, all, alive, &unknown)
	if len(opts.FromSteps) == 0 {
		fromNodes = entryNodesOf(all, alive, fullInputs)
	}
	if len(opts.ToSteps) == 0 {
		toNodes = exitNodesOf(all, alive, fullInputs)
	}

	forward := reach(fromNodes, all, alive, fullInputs, false)
	backward := reach(toNodes, all, alive, fullInputs, true)

	inSet := map[Node]bool{}
	var nodes []Node
	for _, n := range all {
		if alive[n] && forward[n] && backward[n] {
			inSet[n] = true
			nodes = append(nodes, n)
		}
	}
	sortNodes(nodes)

	inputs := map[Node][]Node{}
	for _, n := range nodes {
		var kept []Node
		for _, input := range fullInputs[n] {
			if inSet[input] {
				kept = append(kept, input)
			}
		}
		inputs[n] = kept
	}

	return &Runtime{
		flow:    f,
		nodes:   nodes,
		inSet:   inSet,
		inputs:  inputs,
		unknown: unknown,
	}, nil
}

// dependents collects a node and everything transitively consuming it.
func dependents(root Node, all []Node, inputs map[Node][]Node) map[Node]bool {
	doomed := map[Node]bool{root: true}
	for changed := true; changed; {
		changed = false
		for _, n := range all {
			if doomed[n] {
				continue
			}
			for _, input := range inputs[n] {
				if doomed[input] {
					doomed[n] = true
					changed = true
					break
				}
			}
		}
	}
	return doomed
}

// stepNodes expands step names into their live nodes, recording steps
// that match nothing.
func stepNodes(steps []string, all []Node, alive map[Node]bool, unknown *[]string) []Node {
	var out []Node
	for _, step := range steps {
		matched := false
		for _, n := range all {
			if n.Step == step && alive[n] {
				out = append(out, n)
				matched = true
			}
		}
		if !matched {
			*unknown = append(*unknown, step)
		}
	}
	return out
}

func entryNodesOf(all []Node, alive map[Node]bool, inputs map[Node][]Node) []Node {
	var out []Node
	for _, n := range all {
		if !alive[n] {
			continue
		}
		hasInput := false
		for _, input := range inputs[n] {
			if alive[input] {
				hasInput = true
				break
			}
		}
		if !hasInput {
			out = append(out, n)
		}
	}
	return out
}

func exitNodesOf(all []Node, alive map[Node]bool, inputs map[Node][]Node) []Node {
	consumed := map[Node]bool{}
	for _, n := range all {
		if !alive[n] {
			continue
		}
		for _, input := range inputs[n] {
			if alive[input] {
				consumed[input] = true
			}
		}
	}
	var out []Node
	for _, n := range all {
		if alive[n] && !consumed[n] {
			out = append(out, n)
		}
	}
	return out
}

// reach walks edges from the seed nodes, forward toward dependents or
// backward toward inputs, over the live subgraph.
func reach(seeds []Node, all []Node, alive map[Node]bool, inputs map[Node][]Node, backward bool) map[Node]bool {
	seen := map[Node]bool{}
	queue := make([]Node, 0, len(seeds))
	for _, n := range seeds {
		if alive[n] && !seen[n] {
			seen[n] = true
			queue = append(queue, n)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if backward {
			for _, input := range inputs[current] {
				if alive[input] && !seen[input] {
					seen[input] = true
					queue = append(queue, input)
				}
			}
			continue
		}
		for _, n := range all {
			if !alive[n] || seen[n] {
				continue
			}
			for _, input := range inputs[n] {
				if input == current {
					seen[n] = true
					queue = append(queue, n)
					break
				}
			}
		}
	}
	return seen
}

// Nodes lists the surviving nodes sorted by step, then numeric index.
func (r *Runtime) Nodes() []Node {
	return append([]Node(nil), r.nodes...)
}

// Contains reports whether a node survived the restriction.
func (r *Runtime) Contains(n Node) bool {
	return r.inSet[n]
}

// UnknownSteps returns the from/to steps that matched no declared node.
// They are reported rather than failing the run.
func (r *Runtime) UnknownSteps() []string {
	if len(r.unknown) == 0 {
		return nil
	}
	out := append([]string(nil), r.unknown...)
	sort.Strings(out)
	return out
}

// NodeInputs returns a node's inputs restricted to surviving nodes, in
// edge insertion order.
func (r *Runtime) NodeInputs(n Node) []Node {
	return append([]Node(nil), r.inputs[n]...)
}

// EntryNodes returns the surviving nodes whose restricted input set is
// empty.
func (r *Runtime) EntryNodes() []Node {
	var out []Node
	for _, n := range r.nodes {
		if len(r.inputs[n]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// ExitNodes returns the surviving nodes no surviving node consumes.
func (r *Runtime) ExitNodes() []Node {
	consumed := map[Node]bool{}
	for _, n := range r.nodes {
		for _, input := range r.inputs[n] {
			consumed[input] = true
		}
	}
	var out []Node
	for _, n := range r.nodes {
		if !consumed[n] {
			out = append(out, n)
		}
	}
	return out
}

// ExecutionOrder groups the surviving nodes into dependency levels over
// the restricted edges.
func (r *Runtime) ExecutionOrder(reverse bool) ([][]Node, error) {
	edges := map[Node][]Node{}
	for _, n := range r.nodes {
		for _, input := range r.inputs[n] {
			if reverse {
				edges[n] = append(edges[n], input)
			} else {
				edges[input] = append(edges[input], n)
			}
		}
	}
	return levelize(r.flow.Name(), r.nodes, edges)
}

// CompletedNodes returns the surviving nodes whose status reached an
// exit state.
func (r *Runtime) CompletedNodes(status func(Node) Status) []Node {
	var out []Node
	for _, n := range r.nodes {
		if status(n).IsDone() {
			out = append(out, n)
		}
	}
	return out
}

// WinningPath walks backward from the exits and returns one complete
// path in execution order. At each node the first successfully completed
// input in edge insertion order wins; when none completed, the first
// input in insertion order is taken so the path stays complete.
func (r *Runtime) WinningPath(status func(Node) Status) []Node {
	exits := r.ExitNodes()
	if len(exits) == 0 {
		return nil
	}

	current := exits[0]
	for _, exit := range exits {
		if status(exit).IsSuccess() {
			current = exit
			break
		}
	}

	path := []Node{current}
	for {
		inputs := r.inputs[current]
		if len(inputs) == 0 {
			break
		}
		next := inputs[0]
		for _, input := range inputs {
			if status(input).IsSuccess() {
				next = input
				break
			}
		}
		path = append(path, next)
		current = next
	}

	// Reverse into entry-to-exit order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
