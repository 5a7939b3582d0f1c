package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// ValidatePipeline performs structural and cross-field validation on an
// entire pipeline definition.
func ValidatePipeline(p *Pipeline) error {
	if p == nil {
		return errors.NewValidationError("pipeline", "pipeline is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(p); err != nil {
		return convertValidationError(err)
	}

	declared := make(map[string]int, len(p.Flow.Nodes))
	steps := make(map[string]bool, len(p.Flow.Nodes))
	for i, n := range p.Flow.Nodes {
		id := nodeID(n.Step, n.Index)
		if _, exists := declared[id]; exists {
			return errors.NewValidationError(fieldForNode(i, "step"),
				fmt.Sprintf("duplicate node %s", id), nil)
		}
		declared[id] = i
		steps[n.Step] = true
	}

	for i, e := range p.Flow.Edges {
		if _, ok := declared[nodeID(e.Tail, e.TailIndex)]; !ok {
			return errors.NewValidationError(fieldForEdge(i, "tail"),
				fmt.Sprintf("references undeclared node %s", nodeID(e.Tail, e.TailIndex)), nil)
		}
		if _, ok := declared[nodeID(e.Head, e.HeadIndex)]; !ok {
			return errors.NewValidationError(fieldForEdge(i, "head"),
				fmt.Sprintf("references undeclared node %s", nodeID(e.Head, e.HeadIndex)), nil)
		}
	}

	if cycle := detectCycle(p.Flow); len(cycle) > 0 {
		return errors.NewValidationError("flow.edges",
			fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")), nil)
	}

	for _, step := range p.Options.From {
		if !steps[step] {
			return errors.NewValidationError("options.from",
				fmt.Sprintf("references unknown step %q", step), nil)
		}
	}
	for _, step := range p.Options.To {
		if !steps[step] {
			return errors.NewValidationError("options.to",
				fmt.Sprintf("references unknown step %q", step), nil)
		}
	}
	for i, ref := range p.Options.Prune {
		if _, ok := declared[nodeID(ref.Step, ref.Index)]; !ok {
			return errors.NewValidationError(fmt.Sprintf("options.prune[%d]", i),
				fmt.Sprintf("references undeclared node %s", nodeID(ref.Step, ref.Index)), nil)
		}
	}

	names := make([]string, 0, len(p.Env))
	for name := range p.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !envNamePattern.MatchString(name) {
			return errors.NewValidationError("env",
				fmt.Sprintf("invalid variable name %q", name), nil)
		}
	}

	seen := make(map[string]bool, len(p.Dataroots))
	for i, d := range p.Dataroots {
		if seen[d.Name] {
			return errors.NewValidationError(fmt.Sprintf("dataroots[%d].name", i),
				fmt.Sprintf("duplicate dataroot %q", d.Name), nil)
		}
		seen[d.Name] = true
	}

	return nil
}

func nodeID(step, index string) string {
	return step + "/" + index
}
