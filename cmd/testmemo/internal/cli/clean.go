package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/passrecord"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Forget all pass records",
	Long: `Removes every pass record of the configured storage backend, for all
build configurations. Other files in the state directory are kept.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, _ []string) error {
	root, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := passrecord.Open(cfg, root)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear pass records: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared pass records (%s backend, %s)\n",
		cfg.Storage.Backend, cfg.StateDir(root))
	return nil
}
