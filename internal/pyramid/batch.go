package pyramid

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/bioimg-tools/bioimg/internal/logger"
	"github.com/bioimg-tools/bioimg/internal/source"
	"github.com/bioimg-tools/bioimg/internal/system"
)

// Validate opens path and checks that it is a CYX stack.
func Validate(log *logger.Logger, path string) error {
	src, err := source.OpenTIFF(path)
	if err != nil {
		return err
	}
	defer src.Close()
	if err := src.CheckStack(); err != nil {
		return err
	}
	c, h, w := src.Shape()
	bits := src.SampleBits()
	size := uint64(c) * uint64(h) * uint64(w) * uint64(bits/8)
	log.Info("checked image", "path", path, "shape", fmt.Sprintf("(%d, %d, %d)", c, h, w),
		"bits", bits, "size", system.FormatBytes(size))
	return nil
}

// Dir converts every TIFF in inDir into a pyramid of the same name in
// outDir. All inputs are validated before anything is written; files are
// then converted concurrently, at most parallel at a time.
func Dir(ctx context.Context, log *logger.Logger, inDir, outDir string, parallel int, opts Options) error {
	paths, err := source.ListImages(inDir, source.TIFFExts...)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := Validate(log, p); err != nil {
			return fmt.Errorf("validating %s: %w", p, err)
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, parallel))
	for _, in := range paths {
		out := filepath.Join(outDir, filepath.Base(in))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := File(ctx, log.With("file", filepath.Base(in)), in, out, opts)
			return err
		})
	}
	return g.Wait()
}
