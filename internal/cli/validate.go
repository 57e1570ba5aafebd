package cli

import (
	"github.com/spf13/cobra"
)

// validateCmd relies on PersistentPreRunE: loading already reports every error.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Validate(cmd.OutOrStdout())
	},
}
