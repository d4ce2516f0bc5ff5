package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/watch"
)

var impactFlags struct {
	build    buildFlags
	watch    bool
	debounce int
}

var impactCmd = &cobra.Command{
	Use:   "impact",
	Short: "List test targets that need to run",
	Long: `Resolves the selected targets, fingerprints them and prints the test
targets that have no pass record for their current fingerprint under the
build configuration.

Result lines go to stdout as "<name> (<fingerprint>)"; progress goes to
stderr. Pass records are never modified.

With --watch, impact runs again whenever workspace files change.
Press Ctrl+C to stop watching.`,
	Args: cobra.NoArgs,
	RunE: runImpact,
}

func init() {
	addBuildFlags(impactCmd, &impactFlags.build)
	impactCmd.Flags().BoolVar(&impactFlags.watch, "watch", false,
		"Re-run whenever workspace files change")
	impactCmd.Flags().IntVar(&impactFlags.debounce, "debounce", 0,
		"Watch debounce window in milliseconds (default from config: 500)")

	rootCmd.AddCommand(impactCmd)
}

func runImpact(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd, &impactFlags.build)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx := cmd.Context()
	if _, err := s.coord.Impact(ctx, s.filter, s.build); err != nil {
		return err
	}
	if !impactFlags.watch {
		return nil
	}

	debounce := s.cfg.Debounce()
	if cmd.Flags().Changed("debounce") && impactFlags.debounce > 0 {
		debounce = time.Duration(impactFlags.debounce) * time.Millisecond
	}
	return watchImpact(ctx, s, debounce)
}

// watchImpact re-runs impact after each burst of changes until interrupted.
func watchImpact(ctx context.Context, s *session, debounce time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(watch.Config{
		Root:       s.root,
		Debounce:   debounce,
		IgnoreDirs: s.cfg.Targets.IgnoreDirs,
		Run: func(ctx context.Context, _ []string) error {
			if _, err := s.coord.Impact(ctx, s.filter, s.build); err != nil {
				s.printer.Error(err)
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	return w.Run(ctx)
}
