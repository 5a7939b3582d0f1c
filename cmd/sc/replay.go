package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rtrevinnoc/siliconcompiler/internal/project"
)

type replayOptions struct {
	manifestPath string
	outputPath   string
}

func newReplayCmd(root *rootFlags) *cobra.Command {
	opts := replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a manifest's journal onto a fresh project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.manifestPath, "manifest", "m", "", "Manifest carrying an embedded journal")
	cmd.MarkFlagRequired("manifest") //nolint:errcheck
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Path for the replayed manifest")
	cmd.MarkFlagRequired("output") //nolint:errcheck

	return cmd
}

func runReplay(cmd *cobra.Command, root *rootFlags, opts replayOptions) error {
	log, err := newLogger(root)
	if err != nil {
		return err
	}

	proj := project.New("")
	proj.UseLogger(log)

	if err := proj.Replay(opts.manifestPath); err != nil {
		return err
	}
	if err := proj.SaveManifest(opts.outputPath); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Replayed %s into %s\n", opts.manifestPath, opts.outputPath)
	return nil
}
