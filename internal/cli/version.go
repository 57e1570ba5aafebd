package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"chain-watchdog/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), version.Banner())
		fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\nbuilt: %s\n", version.Commit, version.BuildDate)
	},
}
