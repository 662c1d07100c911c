package pyramid

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/bioimg-tools/bioimg/internal/logger"
	"github.com/bioimg-tools/bioimg/internal/ome"
	"github.com/bioimg-tools/bioimg/internal/raster"
	"github.com/bioimg-tools/bioimg/internal/rescale"
	"github.com/bioimg-tools/bioimg/internal/source"
	"github.com/bioimg-tools/bioimg/internal/tiff"
)

// Options configure one pyramid run.
type Options struct {
	TileSize int
	// EightBit stretches every channel over its own range into uint8 before
	// tiling.
	EightBit    bool
	Compression tiff.Compression
	// Workers bounds how many channels are being prepared or waiting to be
	// written at once.
	Workers int
}

func (o Options) withDefaults() Options {
	if o.TileSize == 0 {
		o.TileSize = DefaultTileSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

// Stats summarises a finished file.
type Stats struct {
	Channels int
	Levels   int
	Prepare  time.Duration
	Write    time.Duration
	Total    time.Duration
}

type prepared struct {
	index  int
	base   raster.Plane
	levels []raster.Plane
	took   time.Duration
	err    error
}

// File converts the CYX TIFF at in into a pyramidal OME-TIFF at out.
// Channels are decoded, normalised and downsampled by a pool of workers
// while a single writer appends them to the output in channel order.
func File(ctx context.Context, log *logger.Logger, in, out string, opts Options) (*Stats, error) {
	opts = opts.withDefaults()
	if err := ValidateTileSize(opts.TileSize); err != nil {
		return nil, err
	}
	start := time.Now()

	src, err := source.OpenTIFF(in)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	if err := src.CheckStack(); err != nil {
		return nil, err
	}

	c, h, w := src.Shape()
	first, err := src.ReadPage(0)
	if err != nil {
		return nil, err
	}
	depth := first.Depth()
	if opts.EightBit {
		depth = raster.U8
	}
	meta := src.Metadata()
	meta.Depth = depth
	desc, err := ome.Build(meta)
	if err != nil {
		return nil, err
	}

	levels := Levels(w, h, opts.TileSize)
	log.Info("building pyramid", "input", in, "channels", c, "width", w, "height", h,
		"levels", levels, "tile", opts.TileSize)

	workers := min(opts.Workers, c)
	jobs := make(chan int)
	results := make([]chan prepared, c)
	for i := range results {
		results[i] = make(chan prepared, 1)
	}
	// A slot is taken when a channel is handed to a worker and given back
	// once the writer has flushed it, so at most workers channels are held.
	slots := make(chan struct{}, workers)
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		feed(ctx, c, slots, jobs)
	}()

	// Decoding shares the file handle, so it is serialised by a token.
	readToken := make(chan struct{}, 1)
	readToken <- struct{}{}
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				t0 := time.Now()
				res := prepared{index: i}
				select {
				case <-ctx.Done():
					res.err = ctx.Err()
					results[i] <- res
					continue
				case <-readToken:
				}
				var p raster.Plane
				if i == 0 {
					p = first
				} else {
					p, res.err = src.ReadPage(i)
				}
				readToken <- struct{}{}
				if res.err == nil && opts.EightBit {
					log.Debug("normalising channel", "channel", i)
					p = rescale.Channel(p, rescale.Range(p, 0))
				}
				if res.err == nil {
					res.base = p
					res.levels = Build(p, levels)
				}
				res.took = time.Since(t0)
				results[i] <- res
			}
		}()
	}

	tw, err := tiff.Create(out, tiff.Options{BigTIFF: true, Software: source.Software})
	if err != nil {
		return nil, err
	}
	stats := &Stats{Channels: c, Levels: levels}
	for i := range c {
		var res prepared
		select {
		case res = <-results[i]:
		case <-ctx.Done():
			tw.Abort()
			return nil, ctx.Err()
		}
		if res.err != nil {
			tw.Abort()
			return nil, fmt.Errorf("channel %d: %w", i, res.err)
		}
		stats.Prepare += res.took

		t0 := time.Now()
		po := tiff.PageOptions{
			TileSize:    opts.TileSize,
			Compression: opts.Compression,
			SubIFDs:     levels,
			PixelSize:   meta.PhysicalSizeX,
		}
		if i == 0 {
			po.Description = desc
		}
		if err := tw.WritePage(res.base, po); err != nil {
			tw.Abort()
			return nil, fmt.Errorf("channel %d base layer: %w", i, err)
		}
		log.Info("base layer written", "channel", i)
		for l, p := range res.levels {
			lw, lh := p.Size()
			log.Debug("writing level", "channel", i, "level", l, "width", lw, "height", lh)
			if err := tw.WriteReduced(p, tiff.PageOptions{TileSize: opts.TileSize, Compression: opts.Compression}); err != nil {
				tw.Abort()
				return nil, fmt.Errorf("channel %d level %d: %w", i, l, err)
			}
		}
		stats.Write += time.Since(t0)
		<-slots
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	stats.Total = time.Since(start)
	log.Info("pyramid written", "output", out, "prepare_s", stats.Prepare.Seconds(),
		"write_s", stats.Write.Seconds(), "total_s", stats.Total.Seconds())
	return stats, nil
}

// feed hands the indices 0..n-1 to jobs in order, taking a slot for each
// first. It closes jobs when done or when ctx is cancelled.
func feed(ctx context.Context, n int, slots chan<- struct{}, jobs chan<- int) {
	defer close(jobs)
	for i := range n {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			return
		}
	}
}
