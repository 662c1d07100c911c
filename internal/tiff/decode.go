package tiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/klauspost/compress/zlib"
	xtiff "golang.org/x/image/tiff"

	"github.com/bioimg-tools/bioimg/internal/raster"
)

// Decode reads the pixels of p as a single grayscale plane. Single-sample
// pages with 8 to 64 bit integer or float samples, in strips or tiles,
// uncompressed or deflated, are decoded natively. Other classic TIFF pages
// (LZW, predictors, palette, RGB) go through golang.org/x/image/tiff and are
// reduced to luminance.
func (f *File) Decode(p *Page) (raster.Plane, error) {
	if err := f.native(p); err != nil {
		if f.big || !errors.Is(err, ErrUnsupported) {
			return nil, err
		}
		return f.fallback(p)
	}

	w, h := p.Width(), p.Height()
	bps := p.BitsPerSample()
	bytesPer := bps / 8
	raw := make([]byte, w*h*bytesPer)
	rowBytes := w * bytesPer

	offsets, counts := p.uints(tStripOffsets), p.uints(tStripByteCounts)
	tw, th := w, int(p.value(tRowsPerStrip, uint64(h)))
	if th > h || th <= 0 {
		th = h
	}
	across := 1
	if p.Tiled() {
		offsets, counts = p.uints(tTileOffsets), p.uints(tTileByteCounts)
		tw, th = p.TileSize()
		if tw <= 0 || th <= 0 {
			return nil, fmt.Errorf("%w: tile size %dx%d", ErrFormat, tw, th)
		}
		across = (w + tw - 1) / tw
	}
	if n := planeBytes(tw, th, bytesPer); n == 0 || n > maxPlaneBytes {
		return nil, fmt.Errorf("%w: %dx%d chunks", ErrFormat, tw, th)
	}
	if len(offsets) != len(counts) {
		return nil, fmt.Errorf("%w: %d offsets but %d byte counts", ErrFormat, len(offsets), len(counts))
	}
	down := (h + th - 1) / th
	if len(offsets) < across*down {
		return nil, fmt.Errorf("%w: %d chunks for a %dx%d grid", ErrFormat, len(offsets), across, down)
	}

	comp := p.value(tCompression, compressionNone)
	chunkRow := tw * bytesPer
	chunkBytes := uint64(chunkRow * th)
	for i := 0; i < across*down; i++ {
		chunk, err := f.readChunk(offsets[i], counts[i], comp, chunkBytes)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		x0, y0 := (i%across)*tw, (i/across)*th
		cols := min(tw, w-x0)
		for r := 0; r < th && y0+r < h; r++ {
			src := r * chunkRow
			if src+cols*bytesPer > len(chunk) {
				return nil, fmt.Errorf("%w: chunk %d is %d bytes, short of row %d", ErrFormat, i, len(chunk), r)
			}
			dst := (y0+r)*rowBytes + x0*bytesPer
			copy(raw[dst:dst+cols*bytesPer], chunk[src:src+cols*bytesPer])
		}
	}
	return samples(raw, w, h, bps, int(p.value(tSampleFormat, sampleFormatUint)), f.order)
}

// maxPlaneBytes caps the decoded size of one plane.
const maxPlaneBytes = 1 << 36

// planeBytes returns w*h*bytes, or 0 when any factor is out of range or the
// product overflows.
func planeBytes(w, h, bytes int) uint64 {
	if w <= 0 || h <= 0 || bytes <= 0 {
		return 0
	}
	n := uint64(w) * uint64(h)
	if n/uint64(w) != uint64(h) {
		return 0
	}
	total := n * uint64(bytes)
	if total/uint64(bytes) != n {
		return 0
	}
	return total
}

// native checks whether Decode can read p without x/image/tiff.
func (f *File) native(p *Page) error {
	if p.Width() <= 0 || p.Height() <= 0 {
		return fmt.Errorf("%w: image is %dx%d", ErrFormat, p.Width(), p.Height())
	}
	if spp := p.SamplesPerPixel(); spp != 1 {
		return fmt.Errorf("%w: %d samples per pixel", ErrUnsupported, spp)
	}
	switch bps := p.BitsPerSample(); bps {
	case 8, 16, 32, 64:
	default:
		return fmt.Errorf("%w: %d bits per sample", ErrUnsupported, bps)
	}
	switch c := p.value(tCompression, compressionNone); c {
	case compressionNone, compressionDeflate, compressionDeflateLegacy:
	default:
		return fmt.Errorf("%w: compression %d", ErrUnsupported, c)
	}
	if pred := p.value(tPredictor, 1); pred != 1 {
		return fmt.Errorf("%w: predictor %d", ErrUnsupported, pred)
	}
	if ph := p.value(tPhotometric, photometricBlackIsZero); ph != photometricBlackIsZero {
		return fmt.Errorf("%w: photometric interpretation %d", ErrUnsupported, ph)
	}
	switch sf := p.value(tSampleFormat, sampleFormatUint); sf {
	case sampleFormatUint, sampleFormatInt:
	case sampleFormatFloat:
		if bps := p.BitsPerSample(); bps != 32 && bps != 64 {
			return fmt.Errorf("%w: %d-bit float samples", ErrUnsupported, bps)
		}
	default:
		return fmt.Errorf("%w: sample format %d", ErrUnsupported, sf)
	}
	if n := planeBytes(p.Width(), p.Height(), p.BitsPerSample()/8); n == 0 || n > maxPlaneBytes {
		return fmt.Errorf("%w: %dx%d image of %d-bit samples is too large", ErrFormat, p.Width(), p.Height(), p.BitsPerSample())
	}
	return nil
}

// readChunk reads one strip or tile of at most want decoded bytes.
func (f *File) readChunk(off, n, comp, want uint64) ([]byte, error) {
	if n > 2*want+1024 {
		return nil, fmt.Errorf("%w: %d byte chunk for %d bytes of samples", ErrFormat, n, want)
	}
	buf := make([]byte, n)
	if err := readAt(f.r, buf, int64(off)); err != nil {
		return nil, fmt.Errorf("%w: reading %d bytes at %d: %v", ErrFormat, n, off, err)
	}
	if comp == compressionNone {
		return buf, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: deflate header: %v", ErrFormat, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, int64(want)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: inflating: %v", ErrFormat, err)
	}
	if uint64(len(out)) > want {
		return nil, fmt.Errorf("%w: chunk inflates past %d bytes", ErrFormat, want)
	}
	return out, nil
}

// samples converts raw bytes in file order to a typed grid. Signed samples
// are clamped at zero.
func samples(raw []byte, w, h, bps, format int, order binary.ByteOrder) (raster.Plane, error) {
	size := planeBytes(w, h, bps/8)
	if size == 0 || size > maxPlaneBytes || uint64(len(raw)) < size {
		return nil, fmt.Errorf("%w: %d bytes for a %dx%d plane of %d-bit samples", ErrFormat, len(raw), w, h, bps)
	}
	n := w * h
	signed := format == sampleFormatInt
	switch {
	case format == sampleFormatFloat && bps == 32:
		g := raster.NewGrid[float32](w, h)
		for i := range n {
			g.Pix[i] = float32frombits(raw[i*4:], order)
		}
		return g, nil
	case format == sampleFormatFloat && bps == 64:
		g := raster.NewGrid[float64](w, h)
		for i := range n {
			g.Pix[i] = float64frombits(raw[i*8:], order)
		}
		return g, nil
	case bps == 8:
		g := raster.NewGrid[uint8](w, h)
		for i := range n {
			v := raw[i]
			if signed && v&0x80 != 0 {
				v = 0
			}
			g.Pix[i] = v
		}
		return g, nil
	case bps == 16:
		g := raster.NewGrid[uint16](w, h)
		for i := range n {
			v := order.Uint16(raw[i*2:])
			if signed && v&0x8000 != 0 {
				v = 0
			}
			g.Pix[i] = v
		}
		return g, nil
	case bps == 32:
		g := raster.NewGrid[uint32](w, h)
		for i := range n {
			v := order.Uint32(raw[i*4:])
			if signed && v&0x80000000 != 0 {
				v = 0
			}
			g.Pix[i] = v
		}
		return g, nil
	case bps == 64:
		g := raster.NewGrid[uint64](w, h)
		for i := range n {
			v := order.Uint64(raw[i*8:])
			if signed && v&(1<<63) != 0 {
				v = 0
			}
			g.Pix[i] = v
		}
		return g, nil
	}
	return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupported, bps)
}

func (f *File) fallback(p *Page) (raster.Plane, error) {
	// x/image expands every pixel to at most 8 bytes.
	if n := planeBytes(p.Width(), p.Height(), 8); n == 0 || n > maxPlaneBytes {
		return nil, fmt.Errorf("%w: image is %dx%d", ErrFormat, p.Width(), p.Height())
	}
	img, err := xtiff.Decode(&pageReader{ra: f.r, order: f.order, ifd: uint32(p.Offset)})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return fromImage(img), nil
}

// pageReader presents r with the header's first-IFD offset pointing at one
// page, so decoders that only read the first page can read any of them.
type pageReader struct {
	ra    io.ReaderAt
	order binary.ByteOrder
	ifd   uint32
	off   int64
}

func (p *pageReader) ReadAt(b []byte, off int64) (int, error) {
	n, err := p.ra.ReadAt(b, off)
	var hdr [4]byte
	p.order.PutUint32(hdr[:], p.ifd)
	for i := 0; i < n; i++ {
		if pos := off + int64(i); pos >= 4 && pos < 8 {
			b[i] = hdr[pos-4]
		}
	}
	return n, err
}

func (p *pageReader) Read(b []byte) (int, error) {
	n, err := p.ReadAt(b, p.off)
	p.off += int64(n)
	return n, err
}

// fromImage reduces a decoded image to one gray plane, keeping 16-bit
// precision where the source has it.
func fromImage(img image.Image) raster.Plane {
	b := img.Bounds()
	switch m := img.(type) {
	case *image.Gray:
		g := raster.NewGrid[uint8](b.Dx(), b.Dy())
		for y := 0; y < b.Dy(); y++ {
			o := m.PixOffset(b.Min.X, b.Min.Y+y)
			copy(g.Row(y), m.Pix[o:o+b.Dx()])
		}
		return g
	case *image.Gray16:
		g := raster.NewGrid[uint16](b.Dx(), b.Dy())
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				g.Set(x, y, m.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return g
	case *image.Paletted, *image.RGBA, *image.NRGBA, *image.CMYK:
		g := raster.NewGrid[uint8](b.Dx(), b.Dy())
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				g.Set(x, y, color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y)
			}
		}
		return g
	}
	g := raster.NewGrid[uint16](b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g.Set(x, y, color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16).Y)
		}
	}
	return g
}
