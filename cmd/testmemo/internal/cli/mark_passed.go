package cli

import (
	"github.com/spf13/cobra"
)

var markPassedFlags struct {
	build buildFlags
}

var markPassedCmd = &cobra.Command{
	Use:   "mark-passed",
	Short: "Record the selected test targets as passed",
	Long: `Resolves and fingerprints the selected targets and records every
selected test target as passed with its current fingerprint under the build
configuration.

Run it after the tests reported by 'testmemo impact' succeeded, with the
same selection and build flags.`,
	Args: cobra.NoArgs,
	RunE: runMarkPassed,
}

func init() {
	addBuildFlags(markPassedCmd, &markPassedFlags.build)
	rootCmd.AddCommand(markPassedCmd)
}

func runMarkPassed(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd, &markPassedFlags.build)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	return s.coord.MarkAsPassed(cmd.Context(), s.filter, s.build)
}
