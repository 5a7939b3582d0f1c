package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type resolveOptions struct {
	pipelinePath string
	cacheDir     string
	parallel     int
}

func newResolveCmd(root *rootFlags) *cobra.Command {
	opts := resolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Fetch every dataroot of a pipeline into the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.pipelinePath, "config", "c", "", "Path to pipeline definition")
	cmd.MarkFlagRequired("config") //nolint:errcheck
	cmd.Flags().StringVar(&opts.cacheDir, "cache-dir", "", "Download cache directory, overriding the pipeline options")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 4, "Concurrent fetches")

	return cmd
}

func runResolve(cmd *cobra.Command, root *rootFlags, opts resolveOptions) error {
	proj, err := loadProject(root, opts.pipelinePath)
	if err != nil {
		return err
	}
	if opts.cacheDir != "" {
		if err := proj.SetCacheDir(opts.cacheDir); err != nil {
			return err
		}
	}

	paths, err := proj.ResolveAllDataroots(cmd.Context(), opts.parallel)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No dataroots registered.")
		return nil
	}

	for _, name := range proj.Dataroots() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", name, paths[name])
	}

	return nil
}
