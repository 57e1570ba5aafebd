package cli

import (
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate every allowed chain and the oracle once and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context(), cmd.OutOrStdout())
	},
}
