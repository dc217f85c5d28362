package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/soocke/pixel-watch-go/assets"
	"github.com/soocke/pixel-watch-go/config"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			files := []struct {
				path string
				data []byte
			}{
				{opts.systemPath(), assets.SystemConfigYAML},
				{filepath.Join(opts.configDir, config.ProgramsDir, "sample_program.yaml"), assets.SampleProgramYAML},
			}
			for _, f := range files {
				wrote, err := writeIfAbsent(f.path, f.data)
				if err != nil {
					return err
				}
				if wrote {
					fmt.Fprintln(cmd.OutOrStdout(), "created", f.path)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "exists", f.path)
				}
			}
			cfg, err := opts.loadSystem()
			if err != nil {
				return err
			}
			return os.MkdirAll(cfg.PatternDir(opts.configDir), 0o755)
		},
	}
}

func writeIfAbsent(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	return true, os.WriteFile(path, data, 0o644)
}

func newAddTargetCmd(opts *rootOptions) *cobra.Command {
	var title string
	var force bool
	c := &cobra.Command{
		Use:   "add-target NAME",
		Short: "Create a starter rule set for a window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadSystem()
			if err != nil {
				return err
			}
			programs := config.NewPrograms(nil, opts.configDir, cfg.DefaultInterval())
			name := args[0]
			if _, err := programs.Load(name); err == nil && !force {
				return fmt.Errorf("target %q already exists (use --force to overwrite)", name)
			}
			t := config.DefaultProgram(name, title)
			t.Interval = cfg.DefaultInterval()
			if err := programs.Save(t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", filepath.Join(programs.Dir(), name+".yaml"))
			return nil
		},
	}
	c.Flags().StringVar(&title, "title", "", "window title substring (defaults to NAME)")
	c.Flags().BoolVar(&force, "force", false, "overwrite an existing rule set")
	return c
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the configured targets and their rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadSystem()
			if err != nil {
				return err
			}
			programs := config.NewPrograms(nil, opts.configDir, cfg.DefaultInterval())
			names, err := programs.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, n := range names {
				t, err := programs.Load(n)
				if err != nil {
					fmt.Fprintf(out, "%s\tinvalid: %v\n", n, err)
					continue
				}
				fmt.Fprintf(out, "%s\ttitle=%q interval=%s rules=%d patterns=%v\n",
					t.Name, t.WindowTitle, t.Interval, len(t.Rules), t.Patterns())
			}
			return nil
		},
	}
}
