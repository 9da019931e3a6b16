package build

import (
	"github.com/spf13/cobra"
)

func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Inspect and update the builds ledger and per-build metadata",
		Long:  "Inspect and update builds.json and the per-build meta.json documents under the build root.",
	}
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newLatestCmd())
	cmd.AddCommand(newInsertCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newRecordCmd())
	cmd.AddCommand(newFinalizeCmd())
	return cmd
}
