// Package cmd holds the pixel-watch command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/soocke/pixel-watch-go/config"
)

// Version is overridden at build time.
var Version = "dev"

// RunFunc starts the monitoring process and blocks until ctx ends.
type RunFunc func(ctx context.Context, cfg *config.System, configDir string) error

type rootOptions struct {
	configDir string
}

func (o *rootOptions) systemPath() string {
	return filepath.Join(o.configDir, config.SystemFile)
}

func (o *rootOptions) loadSystem() (*config.System, error) {
	cfg, err := config.Load(o.systemPath())
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", o.systemPath(), err)
	}
	return cfg, nil
}

// NewRootCmd assembles the command tree. run backs the run subcommand.
func NewRootCmd(run RunFunc) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "pixel-watch",
		Short:         "Watch application windows for visual patterns and react with input actions.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configDir, "config-dir", "c", "config", "directory holding system_config.yaml and program_configs/")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newRunCmd(opts, run),
		newInitCmd(opts),
		newAddTargetCmd(opts),
		newListCmd(opts),
		newMatchCmd(opts),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute(ctx context.Context, run RunFunc) {
	if err := NewRootCmd(run).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRunCmd(opts *rootOptions, run RunFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start monitoring every configured target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadSystem()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, opts.configDir)
		},
	}
}
