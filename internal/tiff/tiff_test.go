package tiff

import (
	"bytes"
	"encoding/binary"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xtiff "golang.org/x/image/tiff"

	"github.com/bioimg-tools/bioimg/internal/raster"
)

func ramp[T raster.Sample](w, h int, step T) *raster.Grid[T] {
	g := raster.NewGrid[T](w, h)
	for i := range g.Pix {
		g.Pix[i] = T(i) * step
	}
	return g
}

func open(t *testing.T, path string) *File {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { fh.Close() })
	f, err := Open(fh)
	require.NoError(t, err)
	return f
}

func writeFile(t *testing.T, path string, opts Options, pages []raster.Plane, po PageOptions) {
	t.Helper()
	w, err := Create(path, opts)
	require.NoError(t, err)
	for _, p := range pages {
		require.NoError(t, w.WritePage(p, po))
	}
	require.NoError(t, w.Close())
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		page  PageOptions
		plane raster.Plane
	}{
		{"strips uint8", Options{}, PageOptions{}, ramp[uint8](37, 21, 3)},
		{"strips uint16 deflate", Options{}, PageOptions{Compression: Deflate}, ramp[uint16](300, 250, 7)},
		{"tiles uint16", Options{}, PageOptions{TileSize: 16}, ramp[uint16](40, 33, 1)},
		{"tiles uint32 deflate big", Options{BigTIFF: true}, PageOptions{TileSize: 32, Compression: Deflate}, ramp[uint32](70, 45, 100000)},
		{"uint64", Options{}, PageOptions{}, ramp[uint64](9, 4, 1 << 40)},
		{"float32", Options{}, PageOptions{TileSize: 16}, ramp[float32](20, 20, 0.25)},
		{"float64 big", Options{BigTIFF: true}, PageOptions{}, ramp[float64](5, 6, -1.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "img.tif")
			writeFile(t, path, tt.opts, []raster.Plane{tt.plane}, tt.page)

			f := open(t, path)
			assert.Equal(t, tt.opts.BigTIFF, f.BigTIFF())
			require.Len(t, f.Pages, 1)
			assert.Equal(t, tt.page.TileSize > 0, f.Pages[0].Tiled())

			got, err := f.Decode(f.Pages[0])
			require.NoError(t, err)
			assert.Equal(t, tt.plane, got)
		})
	}
}

func TestMultiPageAndMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.tiff")
	a, b := ramp[uint16](10, 8, 1), ramp[uint16](10, 8, 2)
	writeFile(t, path, Options{Software: "bioimg"}, []raster.Plane{a, b}, PageOptions{
		Description: "<OME/>",
		PixelSize:   0.325,
	})

	f := open(t, path)
	require.Len(t, f.Pages, 2)
	for i, want := range []raster.Plane{a, b} {
		p := f.Pages[i]
		assert.Equal(t, "<OME/>", p.Description())
		size, ok := p.PixelSize()
		require.True(t, ok)
		assert.InDelta(t, 0.325, size, 1e-6)

		got, err := f.Decode(p)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSubIFDPyramid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pyr.tif")
	base := ramp[uint8](64, 48, 1)
	half := ramp[uint8](32, 24, 2)
	quarter := ramp[uint8](16, 12, 4)

	w, err := Create(path, Options{BigTIFF: true})
	require.NoError(t, err)
	require.NoError(t, w.WritePage(base, PageOptions{TileSize: 16, SubIFDs: 2, Compression: Deflate}))
	assert.Error(t, w.WritePage(base, PageOptions{}), "a new page before the reduced ones")
	require.NoError(t, w.WriteReduced(half, PageOptions{TileSize: 16}))
	require.NoError(t, w.WriteReduced(quarter, PageOptions{TileSize: 16}))
	assert.Error(t, w.WriteReduced(quarter, PageOptions{}), "no slot left")
	require.NoError(t, w.Close())

	f := open(t, path)
	require.Len(t, f.Pages, 1)
	subs := f.Pages[0].SubIFDs
	require.Len(t, subs, 2)
	for i, want := range []raster.Plane{half, quarter} {
		assert.True(t, subs[i].Reduced())
		got, err := f.Decode(subs[i])
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.False(t, f.Pages[0].Reduced())
}

func TestCloseWithMissingReducedPages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pyr.tif")
	w, err := Create(path, Options{})
	require.NoError(t, err)
	require.NoError(t, w.WritePage(ramp[uint8](8, 8, 1), PageOptions{SubIFDs: 1}))
	assert.Error(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file must be removed")
}

func TestWriterRejectsBadTileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.tif")
	w, err := Create(path, Options{})
	require.NoError(t, err)
	defer w.Abort()
	err = w.WritePage(ramp[uint8](8, 8, 1), PageOptions{TileSize: 20})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestOutputReadableByXImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gray.tif")
	g := ramp[uint8](33, 17, 5)
	writeFile(t, path, Options{}, []raster.Plane{g}, PageOptions{TileSize: 16, Compression: Deflate})

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	img, err := xtiff.Decode(fh)
	require.NoError(t, err)
	gray, ok := img.(*image.Gray)
	require.True(t, ok, "got %T", img)
	assert.Equal(t, image.Rect(0, 0, 33, 17), gray.Bounds())
	assert.Equal(t, g.At(20, 10), gray.GrayAt(20, 10).Y)
}

func TestDecodeFallback(t *testing.T) {
	// Predicted RGBA is only readable through x/image/tiff.
	src := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	path := filepath.Join(t.TempDir(), "rgb.tif")
	fh, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, xtiff.Encode(fh, src, &xtiff.Options{Compression: xtiff.Deflate, Predictor: true}))
	require.NoError(t, fh.Close())

	f := open(t, path)
	require.ErrorIs(t, f.native(f.Pages[0]), ErrUnsupported)
	got, err := f.Decode(f.Pages[0])
	require.NoError(t, err)
	assert.Equal(t, raster.U8, got.Depth())
	gw, gh := got.Size()
	assert.Equal(t, []int{4, 3}, []int{gw, gh})
	assert.Equal(t, uint64(255), got.Uint64At(3, 2))
}

func TestFallbackReadsLaterPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two.tif")
	a, b := ramp[uint8](12, 5, 1), ramp[uint8](12, 5, 3)
	writeFile(t, path, Options{}, []raster.Plane{a, b}, PageOptions{Compression: Deflate})

	f := open(t, path)
	require.Len(t, f.Pages, 2)
	for i, want := range []raster.Plane{a, b} {
		got, err := f.fallback(f.Pages[i])
		require.NoError(t, err)
		assert.Equal(t, want, got, "page %d", i)
	}
}

// classic builds a little-endian TIFF with one IFD holding the given LONG
// tags, followed by payload.
func classic(tags [][2]uint32, payload []byte) []byte {
	le := binary.LittleEndian
	buf := []byte("II*\x00\x08\x00\x00\x00")
	buf = le.AppendUint16(buf, uint16(len(tags)))
	for _, tg := range tags {
		buf = le.AppendUint16(buf, uint16(tg[0]))
		buf = le.AppendUint16(buf, dtLong)
		buf = le.AppendUint32(buf, 1)
		buf = le.AppendUint32(buf, tg[1])
	}
	buf = le.AppendUint32(buf, 0)
	return append(buf, payload...)
}

func TestDecodeRejectsHugeDimensions(t *testing.T) {
	data := classic([][2]uint32{
		{tImageWidth, 0xFFFFFFFF},
		{tImageLength, 0xFFFFFFFF},
		{tBitsPerSample, 8},
		{tStripOffsets, 0},
		{tStripByteCounts, 0},
	}, nil)
	f, err := Open(bytes.NewReader(data))
	require.NoError(t, err)

	var got raster.Plane
	require.NotPanics(t, func() { got, err = f.Decode(f.Pages[0]) })
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestDecodeRejectsOversizedChunks(t *testing.T) {
	var bomb bytes.Buffer
	zw := zlib.NewWriter(&bomb)
	_, err := zw.Write(make([]byte, 1<<20))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	const hdr = 8 + 2 + 7*12 + 4
	data := classic([][2]uint32{
		{tImageWidth, 4},
		{tImageLength, 4},
		{tBitsPerSample, 8},
		{tCompression, compressionDeflate},
		{tStripOffsets, hdr},
		{tRowsPerStrip, 4},
		{tStripByteCounts, uint32(bomb.Len())},
	}, bomb.Bytes())
	f, err := Open(bytes.NewReader(data))
	require.NoError(t, err)

	_, err = f.Decode(f.Pages[0])
	assert.ErrorIs(t, err, ErrFormat)

	_, err = f.readChunk(hdr, 1<<30, compressionNone, 16)
	assert.ErrorIs(t, err, ErrFormat, "byte count far beyond the chunk size")
}

func TestOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tif")
	require.NoError(t, os.WriteFile(path, []byte("not a tiff file"), 0o644))
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	_, err = Open(fh)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("deflate")
	require.NoError(t, err)
	assert.Equal(t, Deflate, c)
	c, err = ParseCompression("none")
	require.NoError(t, err)
	assert.Equal(t, None, c)
	_, err = ParseCompression("lzw")
	assert.Error(t, err)
}
