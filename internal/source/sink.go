package source

import (
	"fmt"

	"github.com/bioimg-tools/bioimg/internal/ome"
	"github.com/bioimg-tools/bioimg/internal/raster"
	"github.com/bioimg-tools/bioimg/internal/tiff"
)

// Software is recorded in the Software tag of every written file.
const Software = "bioimg"

// bigTIFFThreshold leaves headroom under the classic 4 GiB limit for IFDs
// and compression overhead.
const bigTIFFThreshold = 3 << 30

// NeedsBigTIFF reports whether n bytes of pixel data call for BigTIFF.
func NeedsBigTIFF(n uint64) bool {
	return n >= bigTIFFThreshold
}

// WriteOME writes st as an OME-TIFF with one page per channel and the
// OME-XML block on the first page.
func WriteOME(path string, st *raster.Stack, meta ome.Metadata, po tiff.PageOptions) error {
	c, h, w := st.Shape()
	meta.SizeC, meta.SizeY, meta.SizeX = c, h, w
	meta.Depth = st.Depth()
	desc, err := ome.Build(meta)
	if err != nil {
		return err
	}

	tw, err := tiff.Create(path, tiff.Options{BigTIFF: NeedsBigTIFF(st.Bytes()), Software: Software})
	if err != nil {
		return err
	}
	po.PixelSize = meta.PhysicalSizeX
	for i, p := range st.Channels {
		po.Description = ""
		if i == 0 {
			po.Description = desc
		}
		if err := tw.WritePage(p, po); err != nil {
			tw.Abort()
			return fmt.Errorf("writing channel %d: %w", i, err)
		}
	}
	return tw.Close()
}

// WriteMask writes a single-page label mask.
func WriteMask(path string, p raster.Plane) error {
	w, h := p.Size()
	n := uint64(w) * uint64(h) * uint64(p.Depth().Bytes())
	tw, err := tiff.Create(path, tiff.Options{BigTIFF: NeedsBigTIFF(n), Software: Software})
	if err != nil {
		return err
	}
	if err := tw.WritePage(p, tiff.PageOptions{Compression: tiff.Deflate}); err != nil {
		tw.Abort()
		return err
	}
	return tw.Close()
}
