package build

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imageforge/imageforge-go/ctl/internal/config"
	"github.com/imageforge/imageforge-go/store/pkg/meta"
)

func newFinalizeCmd() *cobra.Command {
	var arch string

	cmd := &cobra.Command{
		Use:   "finalize <build-id>",
		Short: "Merge staged per-artifact metadata into the canonical meta.json.",
		Long: `Merge staged per-artifact metadata into the canonical meta.json.

With delayed merge enabled, per-artifact jobs stage their results in
meta.<artifact>.json side files so they never contend on the canonical
document. Finalizing reconciles all staged files into meta.json and removes
them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := config.OpenMeta(args[0], arch)
			if err != nil {
				return err
			}
			path, err := m.Write(meta.Final())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "finalized %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&arch, "arch", "", "Architecture of the build (default: the configured arch).")
	return cmd
}
