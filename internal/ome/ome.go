// Package ome reads and writes the OME-XML block that OME-TIFF files keep in
// the ImageDescription of their first page.
package ome

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bioimg-tools/bioimg/internal/raster"
)

const namespace = "http://www.openmicroscopy.org/Schemas/OME/2016-06"

// DefaultPhysicalSize is used when a source image carries no pixel size.
const DefaultPhysicalSize = 1.0

// ErrNoMetadata is returned by Parse when the text is not OME-XML.
var ErrNoMetadata = errors.New("ome: no OME-XML metadata")

// Metadata describes one CYX image.
type Metadata struct {
	Name     string
	SizeX    int
	SizeY    int
	SizeC    int
	Depth    raster.Depth
	Channels []string
	// Physical pixel size in micrometres; 0 means unknown.
	PhysicalSizeX float64
	PhysicalSizeY float64
}

type document struct {
	XMLName xml.Name `xml:"OME"`
	NS      string   `xml:"xmlns,attr,omitempty"`
	UUID    string   `xml:"UUID,attr,omitempty"`
	Creator string   `xml:"Creator,attr,omitempty"`
	Images  []image  `xml:"Image"`
}

type image struct {
	ID     string `xml:"ID,attr"`
	Name   string `xml:"Name,attr,omitempty"`
	Pixels pixels `xml:"Pixels"`
}

type pixels struct {
	ID                string     `xml:"ID,attr"`
	DimensionOrder    string     `xml:"DimensionOrder,attr"`
	Type              string     `xml:"Type,attr"`
	SizeX             int        `xml:"SizeX,attr"`
	SizeY             int        `xml:"SizeY,attr"`
	SizeC             int        `xml:"SizeC,attr"`
	SizeZ             int        `xml:"SizeZ,attr"`
	SizeT             int        `xml:"SizeT,attr"`
	PhysicalSizeX     float64    `xml:"PhysicalSizeX,attr,omitempty"`
	PhysicalSizeXUnit string     `xml:"PhysicalSizeXUnit,attr,omitempty"`
	PhysicalSizeY     float64    `xml:"PhysicalSizeY,attr,omitempty"`
	PhysicalSizeYUnit string     `xml:"PhysicalSizeYUnit,attr,omitempty"`
	Channels          []channel  `xml:"Channel"`
	TiffData          []tiffData `xml:"TiffData"`
}

type channel struct {
	ID              string `xml:"ID,attr"`
	Name            string `xml:"Name,attr,omitempty"`
	SamplesPerPixel int    `xml:"SamplesPerPixel,attr"`
}

type tiffData struct {
	IFD        int `xml:"IFD,attr"`
	FirstC     int `xml:"FirstC,attr"`
	PlaneCount int `xml:"PlaneCount,attr"`
}

var pixelTypes = map[raster.Depth]string{
	raster.U8:  "uint8",
	raster.U16: "uint16",
	raster.U32: "uint32",
	raster.F32: "float",
	raster.F64: "double",
}

// micrometres per unit
var units = map[string]float64{
	"":   1,
	"µm": 1,
	"um": 1,
	"nm": 1e-3,
	"mm": 1e3,
	"cm": 1e4,
	"m":  1e6,
}

// Parse extracts the first image's metadata from an OME-XML description.
func Parse(desc string) (*Metadata, error) {
	if !strings.Contains(desc, "<OME") {
		return nil, ErrNoMetadata
	}
	var doc document
	if err := xml.Unmarshal([]byte(desc), &doc); err != nil {
		return nil, fmt.Errorf("ome: parsing XML: %w", err)
	}
	if len(doc.Images) == 0 {
		return nil, fmt.Errorf("%w: no Image element", ErrNoMetadata)
	}
	img := doc.Images[0]
	px := img.Pixels
	m := &Metadata{
		Name:  img.Name,
		SizeX: px.SizeX,
		SizeY: px.SizeY,
		SizeC: px.SizeC,
	}
	for d, name := range pixelTypes {
		if name == px.Type {
			m.Depth = d
		}
	}
	for _, c := range px.Channels {
		m.Channels = append(m.Channels, c.Name)
	}

	var err error
	if m.PhysicalSizeX, err = toMicrons(px.PhysicalSizeX, px.PhysicalSizeXUnit); err != nil {
		return nil, err
	}
	if m.PhysicalSizeY, err = toMicrons(px.PhysicalSizeY, px.PhysicalSizeYUnit); err != nil {
		return nil, err
	}
	return m, nil
}

func toMicrons(v float64, unit string) (float64, error) {
	scale, ok := units[unit]
	if !ok {
		return 0, fmt.Errorf("ome: unsupported length unit %q", unit)
	}
	return v * scale, nil
}

// Build renders metadata for a CYX image stored one channel per page.
func Build(m Metadata) (string, error) {
	typ, ok := pixelTypes[m.Depth]
	if !ok {
		return "", fmt.Errorf("ome: no OME pixel type for %v", m.Depth)
	}
	if m.SizeC < 1 || m.SizeX < 1 || m.SizeY < 1 {
		return "", fmt.Errorf("%w: image is %dx%dx%d", raster.ErrDimension, m.SizeC, m.SizeY, m.SizeX)
	}
	px := pixels{
		ID:             "Pixels:0",
		DimensionOrder: "XYCZT",
		Type:           typ,
		SizeX:          m.SizeX,
		SizeY:          m.SizeY,
		SizeC:          m.SizeC,
		SizeZ:          1,
		SizeT:          1,
		TiffData:       []tiffData{{IFD: 0, FirstC: 0, PlaneCount: m.SizeC}},
	}
	if m.PhysicalSizeX > 0 {
		px.PhysicalSizeX, px.PhysicalSizeXUnit = m.PhysicalSizeX, "µm"
	}
	if m.PhysicalSizeY > 0 {
		px.PhysicalSizeY, px.PhysicalSizeYUnit = m.PhysicalSizeY, "µm"
	}
	for c := 0; c < m.SizeC; c++ {
		ch := channel{ID: fmt.Sprintf("Channel:0:%d", c), SamplesPerPixel: 1}
		if c < len(m.Channels) {
			ch.Name = m.Channels[c]
		}
		px.Channels = append(px.Channels, ch)
	}

	doc := document{
		NS:      namespace,
		UUID:    uuid.NewString(),
		Creator: "bioimg",
		Images:  []image{{ID: "Image:0", Name: m.Name, Pixels: px}},
	}
	doc.UUID = "urn:uuid:" + doc.UUID
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + string(out), nil
}
