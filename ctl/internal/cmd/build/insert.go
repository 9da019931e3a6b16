package build

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imageforge/imageforge-go/ctl/internal/config"
)

func newInsertCmd() *cobra.Command {
	var arch string

	cmd := &cobra.Command{
		Use:   "insert <build-id>",
		Short: "Register a build (or an additional architecture) in the ledger.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, _, err := config.OpenIndex()
			if err != nil {
				return err
			}
			if err := idx.InsertBuild(args[0], arch); err != nil {
				return err
			}
			if err := idx.BumpTimestamp(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&arch, "arch", "", "Architecture to register (default: the configured arch).")
	return cmd
}
