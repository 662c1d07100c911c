package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bioimg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: DEBUG
pyramid:
  tile_size: 512
  compress: false
expand:
  pixels: 3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 512, cfg.Pyramid.TileSize)
	assert.False(t, cfg.Pyramid.EightBit)
	assert.Equal(t, "none", cfg.Pyramid.Compression, "untouched keys keep defaults")
	assert.Equal(t, 3.0, cfg.Expand.Pixels)
	assert.Equal(t, 4, cfg.Mask2Poly.Connectivity)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bioimg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pyramid:\n  tilesize: 512\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestWriteLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Resize.FactorX = 0.25
	require.NoError(t, Write(cfg, path))

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
