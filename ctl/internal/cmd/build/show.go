package build

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dsnet/golib/unitconv"
	"github.com/spf13/cobra"

	"github.com/imageforge/imageforge-go/ctl/internal/cmdfmt"
	"github.com/imageforge/imageforge-go/ctl/internal/config"
)

func newShowCmd() *cobra.Command {
	var arch string
	var artifacts bool

	cmd := &cobra.Command{
		Use:   "show <build-id>",
		Short: "Print a build's metadata document, or its recorded artifacts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := config.OpenMeta(args[0], arch)
			if err != nil {
				return err
			}
			if !artifacts {
				fmt.Fprintln(cmd.OutOrStdout(), m.String())
				return nil
			}

			cfg, err := config.Get()
			if err != nil {
				return err
			}
			images, _ := m.Get("images").(map[string]any)
			platforms := make([]string, 0, len(images))
			for p := range images {
				platforms = append(platforms, p)
			}
			sort.Strings(platforms)

			printer := cmdfmt.New(cfg.PrintJSON, cfg.Pretty)
			printer.SetHeader([]string{"platform", "path", "sha256", "size"})
			for _, p := range platforms {
				entry, ok := images[p].(map[string]any)
				if !ok {
					continue
				}
				printer.AppendRow([]any{
					p,
					entry["path"],
					entry["sha256"],
					formatSize(entry["size"]),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), printer.Render())
			return nil
		},
	}
	cmd.Flags().StringVar(&arch, "arch", "", "Architecture of the build (default: the configured arch).")
	cmd.Flags().BoolVar(&artifacts, "artifacts", false, "Print the recorded disk-image artifacts as a table.")
	return cmd
}

func formatSize(v any) string {
	var size float64
	switch t := v.(type) {
	case json.Number:
		size, _ = t.Float64()
	case float64:
		size = t
	case int64:
		size = float64(t)
	case int:
		size = float64(t)
	default:
		return ""
	}
	return unitconv.FormatPrefix(size, unitconv.IEC, 1) + "B"
}
