package ome

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioimg-tools/bioimg/internal/raster"
)

func TestBuildParse(t *testing.T) {
	in := Metadata{
		Name:          "sample",
		SizeX:         640,
		SizeY:         480,
		SizeC:         3,
		Depth:         raster.U8,
		Channels:      []string{"DAPI", "CD3"},
		PhysicalSizeX: 0.65,
		PhysicalSizeY: 0.65,
	}
	desc, err := Build(in)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(desc, "<?xml"))
	assert.Contains(t, desc, `UUID="urn:uuid:`)
	assert.Contains(t, desc, `DimensionOrder="XYCZT"`)

	got, err := Parse(desc)
	require.NoError(t, err)
	want := in
	want.Channels = []string{"DAPI", "CD3", ""}
	if diff := cmp.Diff(&want, got); diff != "" {
		t.Errorf("Parse(Build()) mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRejects(t *testing.T) {
	_, err := Build(Metadata{SizeX: 1, SizeY: 1, SizeC: 1, Depth: raster.U64})
	assert.Error(t, err)

	_, err = Build(Metadata{SizeX: 1, SizeY: 1, Depth: raster.U8})
	assert.ErrorIs(t, err, raster.ErrDimension)
}

func TestParseUnits(t *testing.T) {
	desc := `<OME><Image ID="Image:0"><Pixels ID="Pixels:0" DimensionOrder="XYZCT" Type="uint16"
		SizeX="10" SizeY="5" SizeC="1" SizeZ="1" SizeT="1"
		PhysicalSizeX="325" PhysicalSizeXUnit="nm" PhysicalSizeY="0.5"/></Image></OME>`
	m, err := Parse(desc)
	require.NoError(t, err)
	assert.InDelta(t, 0.325, m.PhysicalSizeX, 1e-9)
	assert.InDelta(t, 0.5, m.PhysicalSizeY, 1e-9)
	assert.Equal(t, raster.U16, m.Depth)

	_, err = Parse(strings.Replace(desc, `"nm"`, `"parsec"`, 1))
	assert.Error(t, err)
}

func TestParseNotOME(t *testing.T) {
	_, err := Parse("ImageJ=1.53\nimages=3")
	assert.ErrorIs(t, err, ErrNoMetadata)

	_, err = Parse(`<OME xmlns="x"></OME>`)
	assert.ErrorIs(t, err, ErrNoMetadata)
}
