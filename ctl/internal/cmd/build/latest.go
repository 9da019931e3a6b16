package build

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imageforge/imageforge-go/ctl/internal/config"
)

func newLatestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Print the id of the most recent build.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, _, err := config.OpenIndex()
			if err != nil {
				return err
			}
			latest, err := idx.GetLatest()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), latest)
			return nil
		},
	}
}
