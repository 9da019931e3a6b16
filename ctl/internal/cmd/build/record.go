package build

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/imageforge/imageforge-go/ctl/internal/config"
	"github.com/imageforge/imageforge-go/store/pkg/registrar"
)

func newRecordCmd() *cobra.Command {
	var arch string
	var pairs []string

	cmd := &cobra.Command{
		Use:   "record <build-id>",
		Short: "Record produced disk-image artifacts in a build's metadata.",
		Long: `Record produced disk-image artifacts in a build's metadata document.
Each --image names a platform and an artifact file relative to the build
directory. Artifacts are checksummed in parallel; platforms already recorded
are skipped.

Example:

$ imageforge build record 41.20240101.0 --image qemu=disk.qcow2 --image metal=disk.raw
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(pairs) == 0 {
				return fmt.Errorf("at least one --image is required")
			}
			images := make([]registrar.Image, 0, len(pairs))
			for _, s := range pairs {
				platform, path, ok := strings.Cut(s, "=")
				if !ok || platform == "" || path == "" {
					return fmt.Errorf("invalid --image %q, expected <platform>=<path>", s)
				}
				images = append(images, registrar.Image{Platform: platform, Path: path})
			}

			m, dir, err := config.OpenMeta(args[0], arch)
			if err != nil {
				return err
			}
			cfg, err := config.Get()
			if err != nil {
				return err
			}
			log, err := config.GetLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			r := registrar.New(afero.NewOsFs(), m,
				registrar.WithWorkers(cfg.NumWorkers),
				registrar.WithLogger(log.Logger))
			return r.RecordImages(cmd.Context(), dir, images)
		},
	}
	cmd.Flags().StringVar(&arch, "arch", "", "Architecture of the build (default: the configured arch).")
	cmd.Flags().StringArrayVar(&pairs, "image", nil, "Artifact to record as <platform>=<path>; repeatable.")
	return cmd
}
