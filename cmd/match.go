package cmd

import (
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/soocke/pixel-watch-go/domain/recognition"
	"github.com/soocke/pixel-watch-go/domain/rules"
)

type matchOptions struct {
	pattern   string
	image     string
	dir       string
	threshold float64
	strategy  string
	all       bool
}

// newMatchCmd runs the recognition engine against an image file, for tuning
// thresholds offline.
func newMatchCmd(opts *rootOptions) *cobra.Command {
	mo := &matchOptions{}
	c := &cobra.Command{
		Use:   "match",
		Short: "Match a pattern against a saved screenshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			strategy, err := rules.ParseStrategy(mo.strategy)
			if err != nil {
				return err
			}
			dir := mo.dir
			if dir == "" {
				cfg, err := opts.loadSystem()
				if err != nil {
					return err
				}
				dir = cfg.PatternDir(opts.configDir)
			}
			engine := recognition.NewEngine(nil, recognition.Options{Refine: true})
			if _, err := engine.LoadPatterns(dir); err != nil {
				return err
			}
			if _, ok := engine.Pattern(mo.pattern); !ok {
				return fmt.Errorf("pattern %q not found in %s", mo.pattern, dir)
			}
			img, err := imaging.Open(mo.image)
			if err != nil {
				return fmt.Errorf("open image: %w", err)
			}

			out := cmd.OutOrStdout()
			if mo.all {
				matches := engine.FindAll(img, mo.pattern, mo.threshold, strategy)
				for _, m := range matches {
					fmt.Fprintf(out, "found at (%d,%d) %dx%d confidence %.3f\n", m.X, m.Y, m.W, m.H, m.Confidence)
				}
				fmt.Fprintf(out, "%d match(es)\n", len(matches))
				return nil
			}
			m := engine.FindBest(img, mo.pattern, mo.threshold, strategy)
			if !m.Found {
				fmt.Fprintf(out, "not found (best confidence %.3f)\n", m.Confidence)
				return nil
			}
			fmt.Fprintf(out, "found at (%d,%d) %dx%d confidence %.3f\n", m.X, m.Y, m.W, m.H, m.Confidence)
			return nil
		},
	}
	f := c.Flags()
	f.StringVar(&mo.pattern, "pattern", "", "pattern name (file stem)")
	f.StringVar(&mo.image, "image", "", "image to search")
	f.StringVar(&mo.dir, "dir", "", "pattern directory (defaults to the configured one)")
	f.Float64Var(&mo.threshold, "threshold", 0.8, "minimum confidence")
	f.StringVar(&mo.strategy, "strategy", "template", "template or histogram")
	f.BoolVar(&mo.all, "all", false, "report every placement instead of the best one")
	_ = c.MarkFlagRequired("pattern")
	_ = c.MarkFlagRequired("image")
	return c
}
