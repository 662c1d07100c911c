package tiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

const maxPages = 1 << 16

// File is an opened TIFF or BigTIFF container.
type File struct {
	r     io.ReaderAt
	order binary.ByteOrder
	big   bool

	// Pages is the main IFD chain. Reduced-resolution planes stored as
	// SubIFDs hang off each page.
	Pages []*Page
}

// Page is one image file directory.
type Page struct {
	Offset  int64
	SubIFDs []*Page

	order  binary.ByteOrder
	fields map[uint16]field
}

type field struct {
	typ   uint16
	count uint64
	data  []byte
}

// Open parses the header and every IFD of r. Pixel data is read lazily by
// Decode.
func Open(r io.ReaderAt) (*File, error) {
	var hdr [16]byte
	if err := readAt(r, hdr[:8], 0); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrFormat, err)
	}

	f := &File{r: r}
	switch string(hdr[:2]) {
	case leHeader:
		f.order = binary.LittleEndian
	case beHeader:
		f.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte order mark %q", ErrFormat, hdr[:2])
	}

	var first uint64
	switch f.order.Uint16(hdr[2:4]) {
	case versionClassic:
		first = uint64(f.order.Uint32(hdr[4:8]))
	case versionBig:
		f.big = true
		if err := readAt(r, hdr[8:16], 8); err != nil {
			return nil, fmt.Errorf("%w: reading BigTIFF header: %v", ErrFormat, err)
		}
		if f.order.Uint16(hdr[4:6]) != 8 {
			return nil, fmt.Errorf("%w: BigTIFF offset size %d", ErrUnsupported, f.order.Uint16(hdr[4:6]))
		}
		first = f.order.Uint64(hdr[8:16])
	default:
		return nil, fmt.Errorf("%w: unknown version %d", ErrFormat, f.order.Uint16(hdr[2:4]))
	}

	seen := make(map[uint64]bool)
	for off := first; off != 0; {
		if seen[off] || len(f.Pages) >= maxPages {
			return nil, fmt.Errorf("%w: IFD chain loops at offset %d", ErrFormat, off)
		}
		seen[off] = true

		p, next, err := f.readIFD(off)
		if err != nil {
			return nil, err
		}
		for _, sub := range p.uints(tSubIFDs) {
			sp, _, err := f.readIFD(sub)
			if err != nil {
				return nil, fmt.Errorf("reading SubIFD of page %d: %w", len(f.Pages), err)
			}
			p.SubIFDs = append(p.SubIFDs, sp)
		}
		f.Pages = append(f.Pages, p)
		off = next
	}
	if len(f.Pages) == 0 {
		return nil, fmt.Errorf("%w: no image directories", ErrFormat)
	}
	return f, nil
}

// BigTIFF reports whether the container uses 64-bit offsets.
func (f *File) BigTIFF() bool { return f.big }

func (f *File) readIFD(off uint64) (*Page, uint64, error) {
	countSize, entrySize, inline := 2, 12, 4
	if f.big {
		countSize, entrySize, inline = 8, 20, 8
	}

	head := make([]byte, countSize)
	if err := readAt(f.r, head, int64(off)); err != nil {
		return nil, 0, fmt.Errorf("%w: reading IFD at %d: %v", ErrFormat, off, err)
	}
	var n uint64
	if f.big {
		n = f.order.Uint64(head)
	} else {
		n = uint64(f.order.Uint16(head))
	}
	if n > 4096 {
		return nil, 0, fmt.Errorf("%w: IFD at %d claims %d entries", ErrFormat, off, n)
	}

	body := make([]byte, int(n)*entrySize+inline)
	if err := readAt(f.r, body, int64(off)+int64(countSize)); err != nil {
		return nil, 0, fmt.Errorf("%w: reading IFD entries at %d: %v", ErrFormat, off, err)
	}

	p := &Page{Offset: int64(off), order: f.order, fields: make(map[uint16]field, n)}
	for i := 0; i < int(n); i++ {
		e := body[i*entrySize : (i+1)*entrySize]
		tag := f.order.Uint16(e[0:2])
		typ := f.order.Uint16(e[2:4])
		var count uint64
		var val []byte
		if f.big {
			count = f.order.Uint64(e[4:12])
			val = e[12:20]
		} else {
			count = uint64(f.order.Uint32(e[4:8]))
			val = e[8:12]
		}

		size, ok := typeSize[typ]
		if !ok {
			continue
		}
		total := count * uint64(size)
		if total > 1<<28 {
			return nil, 0, fmt.Errorf("%w: tag %d has %d values", ErrFormat, tag, count)
		}
		data := make([]byte, total)
		if total <= uint64(inline) {
			copy(data, val)
		} else {
			var at uint64
			if f.big {
				at = f.order.Uint64(val)
			} else {
				at = uint64(f.order.Uint32(val))
			}
			if err := readAt(f.r, data, int64(at)); err != nil {
				return nil, 0, fmt.Errorf("%w: reading tag %d values: %v", ErrFormat, tag, err)
			}
		}
		p.fields[tag] = field{typ: typ, count: count, data: data}
	}

	tail := body[int(n)*entrySize:]
	var next uint64
	if f.big {
		next = f.order.Uint64(tail)
	} else {
		next = uint64(f.order.Uint32(tail))
	}
	return p, next, nil
}

// uints returns the integer values of tag, or nil when absent.
func (p *Page) uints(tag uint16) []uint64 {
	fl, ok := p.fields[tag]
	if !ok {
		return nil
	}
	size := typeSize[fl.typ]
	out := make([]uint64, 0, fl.count)
	for i := 0; i < int(fl.count); i++ {
		b := fl.data[i*size : (i+1)*size]
		switch fl.typ {
		case dtByte, dtUndefined:
			out = append(out, uint64(b[0]))
		case dtShort:
			out = append(out, uint64(p.order.Uint16(b)))
		case dtLong, dtIFD:
			out = append(out, uint64(p.order.Uint32(b)))
		case dtLong8, dtIFD8:
			out = append(out, p.order.Uint64(b))
		default:
			return nil
		}
	}
	return out
}

func (p *Page) value(tag uint16, def uint64) uint64 {
	if v := p.uints(tag); len(v) > 0 {
		return v[0]
	}
	return def
}

func (p *Page) rational(tag uint16) (float64, bool) {
	fl, ok := p.fields[tag]
	if !ok || fl.typ != dtRational || fl.count == 0 {
		return 0, false
	}
	num := p.order.Uint32(fl.data[0:4])
	den := p.order.Uint32(fl.data[4:8])
	if den == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

func (p *Page) Width() int  { return int(p.value(tImageWidth, 0)) }
func (p *Page) Height() int { return int(p.value(tImageLength, 0)) }

func (p *Page) BitsPerSample() int   { return int(p.value(tBitsPerSample, 1)) }
func (p *Page) SamplesPerPixel() int { return int(p.value(tSamplesPerPixel, 1)) }

// Tiled reports whether pixel data is stored in tiles rather than strips.
func (p *Page) Tiled() bool {
	_, ok := p.fields[tTileWidth]
	return ok
}

// TileSize returns the tile width and length, or (0, 0) for stripped pages.
func (p *Page) TileSize() (int, int) {
	return int(p.value(tTileWidth, 0)), int(p.value(tTileLength, 0))
}

// Reduced reports whether the page is a reduced-resolution copy of another.
func (p *Page) Reduced() bool {
	return p.value(tNewSubfileType, 0)&1 == 1
}

// Description returns the ImageDescription tag, which holds OME-XML in
// OME-TIFF files.
func (p *Page) Description() string {
	fl, ok := p.fields[tImageDescription]
	if !ok || fl.typ != dtASCII {
		return ""
	}
	return strings.TrimRight(string(fl.data), "\x00")
}

// PixelSize returns the physical pixel width in micrometres derived from
// XResolution and ResolutionUnit.
func (p *Page) PixelSize() (float64, bool) {
	res, ok := p.rational(tXResolution)
	if !ok || res == 0 {
		return 0, false
	}
	switch p.value(tResolutionUnit, 2) {
	case resolutionUnitCentimeter:
		return 1e4 / res, true
	case 2:
		return 25400 / res, true
	}
	return 0, false
}

func float32frombits(b []byte, order binary.ByteOrder) float32 {
	return math.Float32frombits(order.Uint32(b))
}

func float64frombits(b []byte, order binary.ByteOrder) float64 {
	return math.Float64frombits(order.Uint64(b))
}

// readAt fills b from r at off, accepting io.EOF when b was filled.
func readAt(r io.ReaderAt, b []byte, off int64) error {
	n, err := r.ReadAt(b, off)
	if n == len(b) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return err
}
