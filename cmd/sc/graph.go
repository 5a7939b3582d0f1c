package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rtrevinnoc/siliconcompiler/internal/flowgraph"
)

type graphOptions struct {
	pipelinePath string
	from         []string
	to           []string
	prune        []string
}

func newGraphCmd(root *rootFlags) *cobra.Command {
	opts := graphOptions{}

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect the runtime flowgraph of a pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.pipelinePath, "config", "c", "", "Path to pipeline definition")
	cmd.MarkFlagRequired("config") //nolint:errcheck
	cmd.Flags().StringSliceVar(&opts.from, "from", nil, "Entry steps, overriding the pipeline options")
	cmd.Flags().StringSliceVar(&opts.to, "to", nil, "Exit steps, overriding the pipeline options")
	cmd.Flags().StringSliceVar(&opts.prune, "prune", nil, "Nodes to remove, as step/index")

	return cmd
}

func runGraph(cmd *cobra.Command, root *rootFlags, opts graphOptions) error {
	proj, err := loadProject(root, opts.pipelinePath)
	if err != nil {
		return err
	}

	if len(opts.from) > 0 {
		if err := proj.SetFrom(opts.from...); err != nil {
			return err
		}
	}
	if len(opts.to) > 0 {
		if err := proj.SetTo(opts.to...); err != nil {
			return err
		}
	}
	for _, raw := range opts.prune {
		node, err := flowgraph.ParseNode(raw)
		if err != nil {
			return err
		}
		if err := proj.AddPrune(node); err != nil {
			return err
		}
	}

	flow, err := proj.Flow()
	if err != nil {
		return err
	}
	runtime, err := proj.Runtime()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Design: %s\n", proj.Name())
	fmt.Fprintf(out, "Flow:   %s\n", flow.Name())

	if unknown := runtime.UnknownSteps(); len(unknown) > 0 {
		fmt.Fprintf(out, "\nIgnoring unknown steps: %s\n", strings.Join(unknown, ", "))
	}

	fmt.Fprintf(out, "\nNodes:\n")
	for _, n := range runtime.Nodes() {
		tool, err := flow.NodeTool(n)
		if err != nil {
			return err
		}
		task, err := flow.NodeTask(n)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s (%s/%s)\n", n, tool, task)
	}

	levels, err := runtime.ExecutionOrder(false)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nExecution order:\n")
	for i, level := range levels {
		fmt.Fprintf(out, "  %d: %s\n", i+1, joinNodes(level, " "))
	}

	if path := runtime.WinningPath(proj.NodeStatus); len(path) > 0 {
		fmt.Fprintf(out, "\nWinning path: %s\n", joinNodes(path, " -> "))
	}

	return nil
}

func joinNodes(nodes []flowgraph.Node, sep string) string {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		parts = append(parts, n.String())
	}
	return strings.Join(parts, sep)
}
