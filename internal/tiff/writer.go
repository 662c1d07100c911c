package tiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/klauspost/compress/zlib"

	"github.com/bioimg-tools/bioimg/internal/raster"
	"github.com/bioimg-tools/bioimg/internal/system"
)

// Compression of written pixel chunks.
type Compression int

const (
	None Compression = iota
	Deflate
)

// ParseCompression maps a flag value to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return None, nil
	case "deflate", "zlib":
		return Deflate, nil
	}
	return None, fmt.Errorf("compression must be none or deflate, got %q", s)
}

// Options apply to the whole file.
type Options struct {
	// BigTIFF selects 64-bit offsets, needed past 4 GiB.
	BigTIFF  bool
	Software string
}

// PageOptions apply to one written page.
type PageOptions struct {
	Description string
	// TileSize is the edge of square tiles; 0 writes strips. Must be a
	// multiple of 16.
	TileSize    int
	Compression Compression
	// SubIFDs reserves this many reduced-resolution slots on a main page,
	// filled by the following WriteReduced calls.
	SubIFDs int
	// PixelSize in micrometres; 0 leaves the resolution tags out.
	PixelSize float64
}

const stripBytes = 1 << 16

// Writer streams pages into a new file. Data goes to a temporary file next to
// the target and is renamed into place by Close, so a failed write leaves no
// partial output behind.
type Writer struct {
	path string
	f    *os.File
	opts Options
	pool *system.BytePool

	pos      int64
	nextSlot int64
	pending  []int64
	pages    int
}

var order = binary.LittleEndian

// Create starts a new TIFF at path.
func Create(path string, opts Options) (*Writer, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, err
	}
	w := &Writer{path: path, f: f, opts: opts, pool: system.NewBytePool()}

	var hdr []byte
	if opts.BigTIFF {
		hdr = make([]byte, 16)
		copy(hdr, leHeader)
		order.PutUint16(hdr[2:], versionBig)
		order.PutUint16(hdr[4:], 8)
		w.nextSlot = 8
	} else {
		hdr = make([]byte, 8)
		copy(hdr, leHeader)
		order.PutUint16(hdr[2:], versionClassic)
		w.nextSlot = 4
	}
	if err := w.write(hdr); err != nil {
		w.Abort()
		return nil, err
	}
	return w, nil
}

// WritePage appends p to the main page chain.
func (w *Writer) WritePage(p raster.Plane, po PageOptions) error {
	if len(w.pending) > 0 {
		return fmt.Errorf("tiff: %d reduced pages still expected before the next page", len(w.pending))
	}
	off, slots, next, err := w.writeImage(p, po, false)
	if err != nil {
		return err
	}
	if err := w.patch(w.nextSlot, uint64(off)); err != nil {
		return err
	}
	w.nextSlot = next
	w.pending = slots
	w.pages++
	return nil
}

// WriteReduced fills the next SubIFD slot reserved by WritePage.
func (w *Writer) WriteReduced(p raster.Plane, po PageOptions) error {
	if len(w.pending) == 0 {
		return fmt.Errorf("tiff: no SubIFD slot reserved")
	}
	po.SubIFDs = 0
	po.Description = ""
	off, _, _, err := w.writeImage(p, po, true)
	if err != nil {
		return err
	}
	if err := w.patch(w.pending[0], uint64(off)); err != nil {
		return err
	}
	w.pending = w.pending[1:]
	return nil
}

// Close finishes the file and moves it to its final path.
func (w *Writer) Close() error {
	if w.pages == 0 {
		w.Abort()
		return fmt.Errorf("tiff: no pages written to %s", w.path)
	}
	if len(w.pending) > 0 {
		w.Abort()
		return fmt.Errorf("tiff: %d reduced pages missing", len(w.pending))
	}
	if err := w.f.Sync(); err != nil {
		w.Abort()
		return err
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.f.Name())
		return err
	}
	return os.Rename(w.f.Name(), w.path)
}

// Abort discards everything written so far.
func (w *Writer) Abort() {
	w.f.Close()
	os.Remove(w.f.Name())
}

func (w *Writer) write(b []byte) error {
	if !w.opts.BigTIFF && w.pos+int64(len(b)) > math.MaxUint32 {
		return fmt.Errorf("%w: classic TIFF cannot exceed 4 GiB, use BigTIFF", ErrUnsupported)
	}
	if _, err := w.f.WriteAt(b, w.pos); err != nil {
		return err
	}
	w.pos += int64(len(b))
	return nil
}

func (w *Writer) align() error {
	if w.pos%2 == 1 {
		return w.write([]byte{0})
	}
	return nil
}

func (w *Writer) patch(at int64, v uint64) error {
	var b [8]byte
	n := 4
	if w.opts.BigTIFF {
		order.PutUint64(b[:], v)
		n = 8
	} else {
		order.PutUint32(b[:], uint32(v))
	}
	_, err := w.f.WriteAt(b[:n], at)
	return err
}

// writeImage writes the pixel chunks and the IFD of one image. It returns
// the IFD offset, the positions of any reserved SubIFD slots and the
// position of the IFD's next-page field.
func (w *Writer) writeImage(p raster.Plane, po PageOptions, reduced bool) (int64, []int64, int64, error) {
	d := p.Depth()
	if d == raster.Invalid {
		return 0, nil, 0, fmt.Errorf("%w: plane has no sample type", ErrUnsupported)
	}
	if po.TileSize < 0 || po.TileSize%16 != 0 {
		return 0, nil, 0, fmt.Errorf("%w: tile size %d is not a multiple of 16", ErrUnsupported, po.TileSize)
	}
	width, height := p.Size()
	if width == 0 || height == 0 {
		return 0, nil, 0, fmt.Errorf("%w: empty %dx%d plane", ErrUnsupported, width, height)
	}

	cw, ch := width, min(height, max(1, stripBytes/(width*d.Bytes())))
	if po.TileSize > 0 {
		cw, ch = po.TileSize, po.TileSize
	}
	across, down := (width+cw-1)/cw, (height+ch-1)/ch

	offsets := make([]uint64, 0, across*down)
	counts := make([]uint64, 0, across*down)
	for ty := 0; ty < down; ty++ {
		for tx := 0; tx < across; tx++ {
			rows := ch
			if po.TileSize == 0 {
				rows = min(ch, height-ty*ch)
			}
			buf := w.pool.Get(cw * rows * d.Bytes())
			clear(buf)
			encodeChunk(buf, p, tx*cw, ty*ch, cw, rows)

			data := buf
			if po.Compression == Deflate {
				var err error
				if data, err = deflate(buf); err != nil {
					w.pool.Put(buf)
					return 0, nil, 0, err
				}
			}
			if err := w.align(); err != nil {
				w.pool.Put(buf)
				return 0, nil, 0, err
			}
			offsets = append(offsets, uint64(w.pos))
			counts = append(counts, uint64(len(data)))
			err := w.write(data)
			w.pool.Put(buf)
			if err != nil {
				return 0, nil, 0, err
			}
		}
	}

	offType := uint16(dtLong)
	subType := uint16(dtIFD)
	if w.opts.BigTIFF {
		offType, subType = dtLong8, dtIFD8
	}

	var es []entry
	if reduced {
		es = append(es, longs(tNewSubfileType, dtLong, 1))
	}
	es = append(es,
		longs(tImageWidth, dtLong, uint64(width)),
		longs(tImageLength, dtLong, uint64(height)),
		longs(tBitsPerSample, dtShort, uint64(d.Bits())),
		longs(tCompression, dtShort, compressionCode(po.Compression)),
		longs(tPhotometric, dtShort, photometricBlackIsZero),
		longs(tSamplesPerPixel, dtShort, 1),
		longs(tPlanarConfig, dtShort, 1),
		longs(tSampleFormat, dtShort, sampleFormatCode(d)),
	)
	if po.Description != "" {
		es = append(es, ascii(tImageDescription, po.Description))
	}
	if w.opts.Software != "" {
		es = append(es, ascii(tSoftware, w.opts.Software))
	}
	if po.TileSize > 0 {
		es = append(es,
			longs(tTileWidth, dtLong, uint64(cw)),
			longs(tTileLength, dtLong, uint64(ch)),
			longs(tTileOffsets, offType, offsets...),
			longs(tTileByteCounts, offType, counts...),
		)
	} else {
		es = append(es,
			longs(tRowsPerStrip, dtLong, uint64(ch)),
			longs(tStripOffsets, offType, offsets...),
			longs(tStripByteCounts, offType, counts...),
		)
	}
	if po.PixelSize > 0 {
		perCm, den := 1e4/po.PixelSize, 1e4
		if perCm*den > math.MaxUint32 {
			den = 1
		}
		num := uint32(min(math.Round(perCm*den), math.MaxUint32))
		es = append(es,
			rational(tXResolution, num, uint32(den)),
			rational(tYResolution, num, uint32(den)),
			longs(tResolutionUnit, dtShort, resolutionUnitCentimeter),
		)
	}
	if po.SubIFDs > 0 {
		es = append(es, longs(tSubIFDs, subType, make([]uint64, po.SubIFDs)...))
	}

	if err := w.align(); err != nil {
		return 0, nil, 0, err
	}
	ifdOff := w.pos
	raw, valuePos, nextPos := w.layoutIFD(es, ifdOff)
	if err := w.write(raw); err != nil {
		return 0, nil, 0, err
	}

	var slots []int64
	if po.SubIFDs > 0 {
		size := int64(4)
		if w.opts.BigTIFF {
			size = 8
		}
		base := valuePos[tSubIFDs]
		for i := 0; i < po.SubIFDs; i++ {
			slots = append(slots, base+int64(i)*size)
		}
	}
	return ifdOff, slots, nextPos, nil
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint64
	data  []byte
}

func longs(tag, typ uint16, vals ...uint64) entry {
	size := typeSize[typ]
	data := make([]byte, len(vals)*size)
	for i, v := range vals {
		switch size {
		case 2:
			order.PutUint16(data[i*2:], uint16(v))
		case 4:
			order.PutUint32(data[i*4:], uint32(v))
		case 8:
			order.PutUint64(data[i*8:], v)
		}
	}
	return entry{tag: tag, typ: typ, count: uint64(len(vals)), data: data}
}

func ascii(tag uint16, s string) entry {
	data := append([]byte(s), 0)
	return entry{tag: tag, typ: dtASCII, count: uint64(len(data)), data: data}
}

func rational(tag uint16, num, den uint32) entry {
	data := make([]byte, 8)
	order.PutUint32(data, num)
	order.PutUint32(data[4:], den)
	return entry{tag: tag, typ: dtRational, count: 1, data: data}
}

// layoutIFD serialises entries as an IFD at offset off, followed by the
// values too large to sit inline. It reports where each tag's value bytes
// landed and where the next-IFD field is.
func (w *Writer) layoutIFD(es []entry, off int64) ([]byte, map[uint16]int64, int64) {
	slices.SortFunc(es, func(a, b entry) int { return int(a.tag) - int(b.tag) })

	countSize, entrySize, inline := 2, 12, 4
	if w.opts.BigTIFF {
		countSize, entrySize, inline = 8, 20, 8
	}
	head := countSize + len(es)*entrySize + inline
	buf := make([]byte, head)
	if w.opts.BigTIFF {
		order.PutUint64(buf, uint64(len(es)))
	} else {
		order.PutUint16(buf, uint16(len(es)))
	}

	valuePos := make(map[uint16]int64, len(es))
	for i, e := range es {
		at := countSize + i*entrySize
		order.PutUint16(buf[at:], e.tag)
		order.PutUint16(buf[at+2:], e.typ)
		valAt := at + 8
		if w.opts.BigTIFF {
			order.PutUint64(buf[at+4:], e.count)
			valAt = at + 12
		} else {
			order.PutUint32(buf[at+4:], uint32(e.count))
		}

		if len(e.data) <= inline {
			copy(buf[valAt:], e.data)
			valuePos[e.tag] = off + int64(valAt)
			continue
		}
		if len(buf)%2 == 1 {
			buf = append(buf, 0)
		}
		extra := off + int64(len(buf))
		if w.opts.BigTIFF {
			order.PutUint64(buf[valAt:], uint64(extra))
		} else {
			order.PutUint32(buf[valAt:], uint32(extra))
		}
		valuePos[e.tag] = extra
		buf = append(buf, e.data...)
	}
	return buf, valuePos, off + int64(head-inline)
}

func compressionCode(c Compression) uint64 {
	if c == Deflate {
		return compressionDeflate
	}
	return compressionNone
}

func sampleFormatCode(d raster.Depth) uint64 {
	if d.IsFloat() {
		return sampleFormatFloat
	}
	return sampleFormatUint
}

func deflate(b []byte) ([]byte, error) {
	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// encodeChunk writes the cw x rows window of p starting at (x0, y0) into buf
// as little-endian samples. Cells beyond the plane are left zero.
func encodeChunk(buf []byte, p raster.Plane, x0, y0, cw, rows int) {
	switch g := p.(type) {
	case *raster.Grid[uint8]:
		encodeGrid(buf, g, x0, y0, cw, rows, 1, func(b []byte, v uint8) { b[0] = v })
	case *raster.Grid[uint16]:
		encodeGrid(buf, g, x0, y0, cw, rows, 2, func(b []byte, v uint16) { order.PutUint16(b, v) })
	case *raster.Grid[uint32]:
		encodeGrid(buf, g, x0, y0, cw, rows, 4, func(b []byte, v uint32) { order.PutUint32(b, v) })
	case *raster.Grid[uint64]:
		encodeGrid(buf, g, x0, y0, cw, rows, 8, order.PutUint64)
	case *raster.Grid[float32]:
		encodeGrid(buf, g, x0, y0, cw, rows, 4, func(b []byte, v float32) { order.PutUint32(b, math.Float32bits(v)) })
	case *raster.Grid[float64]:
		encodeGrid(buf, g, x0, y0, cw, rows, 8, func(b []byte, v float64) { order.PutUint64(b, math.Float64bits(v)) })
	default:
		encodeChunk(buf, raster.ToDepth(p, p.Depth()), x0, y0, cw, rows)
	}
}

func encodeGrid[T raster.Sample](buf []byte, g *raster.Grid[T], x0, y0, cw, rows, size int, put func([]byte, T)) {
	for r := 0; r < rows && y0+r < g.Height; r++ {
		row := g.Row(y0 + r)
		for c := 0; c < cw && x0+c < g.Width; c++ {
			put(buf[(r*cw+c)*size:], row[x0+c])
		}
	}
}
