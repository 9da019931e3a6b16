// Package registrar is the library face external collaborators (disk-image
// builders, cloud uploaders) use to record produced artifacts. They resolve a
// build directory through the index, open the build's metadata, and record
// results here; nothing ever writes meta.json directly.
package registrar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/imageforge/imageforge-go/store/pkg/meta"
)

// Image names one produced disk-image artifact.
type Image struct {
	// Platform is the images.<platform> sub-key, e.g. "qemu" or "aws".
	Platform string
	// Path is the artifact file, relative to the build directory.
	Path string
}

type Registrar struct {
	fs      afero.Fs
	meta    *meta.BuildMeta
	log     *zap.Logger
	workers int
}

type Option func(*Registrar)

// WithWorkers bounds how many artifact checksums run in parallel.
func WithWorkers(n int) Option {
	return func(r *Registrar) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(r *Registrar) { r.log = log }
}

func New(fsys afero.Fs, m *meta.BuildMeta, opts ...Option) *Registrar {
	r := &Registrar{
		fs:      fsys,
		meta:    m,
		log:     zap.NewNop(),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordImages checksums the given artifacts in parallel and records them
// under images.<platform> with one canonical metadata write. Platforms
// already present in the document are skipped, so re-running a job that
// already uploaded is a no-op for that platform.
func (r *Registrar) RecordImages(ctx context.Context, buildDir string, images []Image) error {
	type artifact struct {
		platform string
		entry    map[string]any
	}
	results := make([]*artifact, len(images))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, img := range images {
		if r.meta.Get("images", img.Platform) != nil {
			r.log.Info("artifact already recorded, skipping",
				zap.String("platform", img.Platform))
			continue
		}
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			sum, size, err := r.checksum(filepath.Join(buildDir, img.Path))
			if err != nil {
				return fmt.Errorf("checksumming %s artifact: %w", img.Platform, err)
			}
			results[i] = &artifact{
				platform: img.Platform,
				entry: map[string]any{
					"path":   img.Path,
					"sha256": sum,
					"size":   size,
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	recorded := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		if r.meta.Get("images") == nil {
			if err := r.meta.Set(map[string]any{}, "images"); err != nil {
				return err
			}
		}
		if err := r.meta.Set(res.entry, "images", res.platform); err != nil {
			return err
		}
		recorded++
	}
	if recorded == 0 {
		return nil
	}
	path, err := r.meta.Write()
	if err != nil {
		return err
	}
	r.log.Info("recorded artifacts", zap.Int("count", recorded), zap.String("path", path))
	return nil
}

func (r *Registrar) checksum(path string) (string, int64, error) {
	f, err := r.fs.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
