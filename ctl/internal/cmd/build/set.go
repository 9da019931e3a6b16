package build

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imageforge/imageforge-go/ctl/internal/config"
)

func newSetCmd() *cobra.Command {
	var arch string
	var keys []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "set <build-id> <value>",
		Short: "Set a value in a build's metadata document.",
		Long: `Set a value at a key path in a build's metadata document and persist it
through the merge-aware write path. Key path segments are given with repeated
--key flags because metadata keys may themselves contain dots.

Example:

$ imageforge build set 41.20240101.0 '{"path":"disk.qcow2","sha256":"...","size":1}' --key images --key qemu --json
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(keys) == 0 {
				return fmt.Errorf("at least one --key is required")
			}
			m, _, err := config.OpenMeta(args[0], arch)
			if err != nil {
				return err
			}
			var value any = args[1]
			if asJSON {
				if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
					return fmt.Errorf("parsing --json value: %w", err)
				}
			}
			if err := m.Set(value, keys...); err != nil {
				return err
			}
			path, err := m.Write()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&arch, "arch", "", "Architecture of the build (default: the configured arch).")
	cmd.Flags().StringArrayVar(&keys, "key", nil, "Key path segment; repeat to descend into nested objects.")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Parse the value as JSON instead of a string.")
	return cmd
}
