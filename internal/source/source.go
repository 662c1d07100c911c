// Package source loads images and label masks from TIFF files. Each page of
// the main IFD chain is one channel; reduced-resolution SubIFDs are skipped.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bioimg-tools/bioimg/internal/ome"
	"github.com/bioimg-tools/bioimg/internal/raster"
	"github.com/bioimg-tools/bioimg/internal/tiff"
)

// TIFFExts are the extensions accepted for TIFF inputs and outputs.
var TIFFExts = []string{".tif", ".tiff"}

// Source is a multi-page image.
type Source interface {
	PageCount() int
	PageDimensions(index int) (width, height int, err error)
	ReadPage(index int) (raster.Plane, error)
	Close() error
}

// TIFFSource reads pages of one TIFF file on demand.
type TIFFSource struct {
	path string
	fh   *os.File
	file *tiff.File
}

// OpenTIFF opens path and parses its directory structure.
func OpenTIFF(path string) (*TIFFSource, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	f, err := tiff.Open(fh)
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &TIFFSource{path: path, fh: fh, file: f}, nil
}

func (s *TIFFSource) Path() string { return s.path }

func (s *TIFFSource) PageCount() int {
	return len(s.file.Pages)
}

func (s *TIFFSource) PageDimensions(index int) (int, int, error) {
	p, err := s.page(index)
	if err != nil {
		return 0, 0, err
	}
	return p.Width(), p.Height(), nil
}

func (s *TIFFSource) ReadPage(index int) (raster.Plane, error) {
	p, err := s.page(index)
	if err != nil {
		return nil, err
	}
	plane, err := s.file.Decode(p)
	if err != nil {
		return nil, fmt.Errorf("%s page %d: %w", s.path, index, err)
	}
	return plane, nil
}

func (s *TIFFSource) page(index int) (*tiff.Page, error) {
	if index < 0 || index >= len(s.file.Pages) {
		return nil, fmt.Errorf("%w: page %d of %d in %s", raster.ErrDimension, index, len(s.file.Pages), s.path)
	}
	return s.file.Pages[index], nil
}

// Shape returns (pages, height, width) from the first page's header.
func (s *TIFFSource) Shape() (c, h, w int) {
	p := s.file.Pages[0]
	return len(s.file.Pages), p.Height(), p.Width()
}

// Metadata returns the OME metadata of the file, falling back to the TIFF
// resolution tags and then to ome.DefaultPhysicalSize for the pixel size.
func (s *TIFFSource) Metadata() ome.Metadata {
	first := s.file.Pages[0]
	m, err := ome.Parse(first.Description())
	if err != nil {
		m = &ome.Metadata{}
	}
	c, h, w := s.Shape()
	m.SizeC, m.SizeY, m.SizeX = c, h, w
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path))
	}
	if m.PhysicalSizeX == 0 {
		if ps, ok := first.PixelSize(); ok {
			m.PhysicalSizeX = ps
		} else {
			m.PhysicalSizeX = ome.DefaultPhysicalSize
		}
	}
	if m.PhysicalSizeY == 0 {
		m.PhysicalSizeY = m.PhysicalSizeX
	}
	return *m
}

// Stack reads every page into a CYX stack.
func (s *TIFFSource) Stack() (*raster.Stack, error) {
	planes := make([]raster.Plane, 0, s.PageCount())
	for i := range s.PageCount() {
		p, err := s.ReadPage(i)
		if err != nil {
			return nil, err
		}
		planes = append(planes, p)
	}
	st, err := raster.NewStack(planes...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return st, nil
}

func (s *TIFFSource) Close() error {
	return s.fh.Close()
}

// ReadStack opens path and loads all of its pages.
func ReadStack(path string) (*raster.Stack, ome.Metadata, error) {
	src, err := OpenTIFF(path)
	if err != nil {
		return nil, ome.Metadata{}, err
	}
	defer src.Close()
	st, err := src.Stack()
	if err != nil {
		return nil, ome.Metadata{}, err
	}
	return st, src.Metadata(), nil
}

// ReadMask loads one page of a label mask. A single-page file ignores
// channel; otherwise channel selects the page.
func ReadMask(path string, channel int) (*raster.Grid[uint64], error) {
	src, err := OpenTIFF(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	if src.PageCount() == 1 {
		channel = 0
	}
	p, err := src.ReadPage(channel)
	if err != nil {
		return nil, err
	}
	if p.Depth().IsFloat() {
		return nil, fmt.Errorf("%w: %s holds %v samples, labels must be integers", tiff.ErrUnsupported, path, p.Depth())
	}
	return raster.Labels(p), nil
}

// HasExt reports whether path ends in one of exts, ignoring case.
func HasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains(exts, ext)
}

// ErrNoImages is returned by ListImages for a directory without matches.
var ErrNoImages = errors.New("source: no images found")

// ListImages returns the sorted paths of regular files in dir whose
// extension is one of exts.
func ListImages(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && HasExt(entry.Name(), exts...) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}
	slices.Sort(paths)
	return paths, nil
}

// CheckStack verifies from the page headers that every page has the size
// and sample width of the first, as a CYX image requires.
func (s *TIFFSource) CheckStack() error {
	first := s.file.Pages[0]
	for i, p := range s.file.Pages[1:] {
		if p.Width() != first.Width() || p.Height() != first.Height() {
			return fmt.Errorf("%w: %s page %d is %dx%d, page 0 is %dx%d", raster.ErrDimension,
				s.path, i+1, p.Width(), p.Height(), first.Width(), first.Height())
		}
		if p.BitsPerSample() != first.BitsPerSample() {
			return fmt.Errorf("%w: %s page %d has %d-bit samples, page 0 has %d", raster.ErrDimension,
				s.path, i+1, p.BitsPerSample(), first.BitsPerSample())
		}
	}
	return nil
}

// SampleBits is the sample width of the first page.
func (s *TIFFSource) SampleBits() int {
	return s.file.Pages[0].BitsPerSample()
}
