package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rtrevinnoc/siliconcompiler/internal/config"
	"github.com/rtrevinnoc/siliconcompiler/internal/logger"
	"github.com/rtrevinnoc/siliconcompiler/internal/project"
)

type rootFlags struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "sc",
		Short:         "sc builds and inspects hardware build pipelines from declarative definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newGraphCmd(flags))
	cmd.AddCommand(newResolveCmd(flags))
	cmd.AddCommand(newReplayCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newLogger(flags *rootFlags) (*logger.Logger, error) {
	level := "info"
	if flags.verbose {
		level = "debug"
	}
	return logger.New(logger.Options{Level: level, HumanReadable: true, Writer: os.Stderr})
}

// loadProject builds a project from a pipeline definition file.
func loadProject(flags *rootFlags, path string) (*project.Project, error) {
	pipeline, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	proj, err := config.Build(pipeline)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(flags)
	if err != nil {
		return nil, err
	}
	proj.UseLogger(log)

	return proj, nil
}
