package build

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/spf13/cobra"

	"github.com/imageforge/imageforge-go/ctl/internal/cmdfmt"
	"github.com/imageforge/imageforge-go/ctl/internal/config"
)

func newListCmd() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known builds, newest first.",
		Long: `List known builds, newest first.

The optional --filter expression is evaluated per build with the variables
"id" (string) and "arches" (list of strings).

Example: only builds carrying an aarch64 variant:

$ imageforge build list --filter '"aarch64" in arches'
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, cfg, err := config.OpenIndex()
			if err != nil {
				return err
			}

			var program *vmProgram
			if filter != "" {
				program, err = compileFilter(filter)
				if err != nil {
					return fmt.Errorf("invalid --filter expression: %w", err)
				}
			}

			printer := cmdfmt.New(cfg.PrintJSON, cfg.Pretty)
			printer.SetHeader([]string{"id", "arches"})
			for _, b := range idx.Builds() {
				if program != nil {
					keep, err := program.run(b.ID, b.Arches)
					if err != nil {
						return err
					}
					if !keep {
						continue
					}
				}
				printer.AppendRow([]any{b.ID, strings.Join(b.Arches, ",")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), printer.Render())
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "Boolean expression selecting builds to list.")
	return cmd
}

type vmProgram struct {
	run func(id string, arches []string) (bool, error)
}

func compileFilter(src string) (*vmProgram, error) {
	env := map[string]any{"id": "", "arches": []string{}}
	program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, err
	}
	return &vmProgram{
		run: func(id string, arches []string) (bool, error) {
			out, err := expr.Run(program, map[string]any{"id": id, "arches": arches})
			if err != nil {
				return false, err
			}
			keep, ok := out.(bool)
			if !ok {
				return false, fmt.Errorf("filter did not evaluate to a boolean")
			}
			return keep, nil
		},
	}, nil
}
