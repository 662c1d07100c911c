// Package config holds the options of every bioimg tool and loads their
// defaults from an optional YAML file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string    `yaml:"log_level"`
	Mask2Poly Mask2Poly `yaml:"mask2poly"`
	Rescale   Rescale   `yaml:"rescale"`
	Pyramid   Pyramid   `yaml:"pyramid"`
	Resize    Resize    `yaml:"resize"`
	Expand    Expand    `yaml:"expand"`
	Rasterize Rasterize `yaml:"rasterize"`
}

type Mask2Poly struct {
	Input        string `yaml:"input"`
	Output       string `yaml:"output"`
	Channel      int    `yaml:"channel"`
	Connectivity int    `yaml:"connectivity"`
	CRS          string `yaml:"crs"`
}

type Rescale struct {
	Input          string  `yaml:"input"`
	Output         string  `yaml:"output"`
	PerChannel     bool    `yaml:"per_channel"`
	ClipPercentile float64 `yaml:"clip_percentile"`
	Workers        int     `yaml:"workers"`
}

type Pyramid struct {
	Input       string `yaml:"input"`
	Output      string `yaml:"output"`
	TileSize    int    `yaml:"tile_size"`
	EightBit    bool   `yaml:"compress"`
	Compression string `yaml:"compression"`
	Workers     int    `yaml:"workers"`
	// Files is how many files of a directory are converted at once.
	Files int `yaml:"files"`
}

type Resize struct {
	Input   string  `yaml:"input"`
	Output  string  `yaml:"output"`
	Factor  float64 `yaml:"factor"`
	FactorX float64 `yaml:"factor_x"`
	FactorY float64 `yaml:"factor_y"`
	Workers int     `yaml:"workers"`
}

type Expand struct {
	Input   string  `yaml:"input"`
	Output  string  `yaml:"output"`
	Channel int     `yaml:"channel"`
	Pixels  float64 `yaml:"pixels"`
}

type Rasterize struct {
	Input         string `yaml:"input"`
	Output        string `yaml:"output"`
	Reference     string `yaml:"reference"`
	Width         int    `yaml:"width"`
	Height        int    `yaml:"height"`
	LabelProperty string `yaml:"label_property"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		LogLevel: "INFO",
		Mask2Poly: Mask2Poly{
			Connectivity: 4,
			CRS:          "EPSG:4326",
		},
		Rescale: Rescale{
			PerChannel: true,
			Workers:    runtime.NumCPU(),
		},
		Pyramid: Pyramid{
			TileSize:    1072,
			EightBit:    true,
			Compression: "none",
			Workers:     runtime.NumCPU(),
			Files:       1,
		},
		Resize: Resize{
			Factor:  0.5,
			Workers: runtime.NumCPU(),
		},
		Rasterize: Rasterize{
			LabelProperty: "cellId",
		},
	}
}

// Load reads path over the defaults. Unknown keys are rejected so typos do
// not pass silently.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Write stores cfg as YAML.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
