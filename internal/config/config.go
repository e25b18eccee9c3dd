// Package config loads the declarative world file and builds the biome
// pipelines and orchestrator settings from it.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Seed      int64       `yaml:"seed"`
	ChunkSize [2]int      `yaml:"chunk_size"`
	Blend     BlendSpec   `yaml:"blend"`
	Pooling   bool        `yaml:"pooling"`
	Workers   int         `yaml:"workers"`
	Outputs   []string    `yaml:"outputs"`
	Biomes    []BiomeSpec `yaml:"biomes"`
}

type BlendSpec struct {
	Direction string `yaml:"direction"`
	Distance  int    `yaml:"distance"`
}

type BiomeSpec struct {
	Name   string               `yaml:"name"`
	Weight float64              `yaml:"weight"`
	Groups map[string]GroupSpec `yaml:"groups"`
}

type GroupSpec struct {
	Layers []LayerSpec `yaml:"layers"`
}

type LayerSpec struct {
	Name    string       `yaml:"name"`
	DataID  string       `yaml:"data_id,omitempty"`
	Sources []SourceSpec `yaml:"sources"`
	Tile    *TileSpec    `yaml:"tile,omitempty"`
}

// SourceSpec is a flat union; Type selects which fields apply.
type SourceSpec struct {
	Type string `yaml:"type"`
	Op   string `yaml:"op,omitempty"`

	// noise
	NoiseType   string  `yaml:"noise_type,omitempty"`
	Size        float64 `yaml:"size,omitempty"`
	Multiplier  float64 `yaml:"multiplier,omitempty"`
	NoiseOffset float64 `yaml:"noise_offset,omitempty"`
	Offset      float64 `yaml:"offset,omitempty"`
	Clamp       bool    `yaml:"clamp,omitempty"`
	SeedOffset  int64   `yaml:"seed_offset,omitempty"`

	// horizontal_gradient
	Sine bool `yaml:"sine,omitempty"`

	// range, shared_data
	Min    *float64 `yaml:"min,omitempty"`
	Max    *float64 `yaml:"max,omitempty"`
	Mask   bool    `yaml:"mask,omitempty"`
	DataID string  `yaml:"data_id,omitempty"`
	Invert bool    `yaml:"invert,omitempty"`

	// edge_noise
	Padding *int     `yaml:"padding,omitempty"`
	Spread  *float64 `yaml:"spread,omitempty"`
}

type TileSpec struct {
	Tiles              []TileEntrySpec `yaml:"tiles"`
	Threshold          *float64        `yaml:"threshold,omitempty"`
	RandomTilePerChunk bool            `yaml:"random_tile_per_chunk,omitempty"`
	UseAsWeight        bool            `yaml:"use_as_weight,omitempty"`
}

type TileEntrySpec struct {
	ID     string  `yaml:"id"`
	Weight float64 `yaml:"weight"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(b)
}

// Parse decodes a world document, checks it against the schema and
// validates the result.
func Parse(b []byte) (Config, error) {
	cfg := defaults()
	if err := validateSchema(b); err != nil {
		return cfg, fmt.Errorf("world.yaml: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("world.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("world.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Seed:      91597,
		ChunkSize: [2]int{32, 32},
		Blend:     BlendSpec{Direction: "horizontal", Distance: 16},
		Pooling:   true,
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Blend.Direction = strings.ToLower(strings.TrimSpace(c.Blend.Direction))
	if c.Blend.Direction == "" {
		c.Blend.Direction = "horizontal"
	}
	if len(c.Outputs) == 0 {
		// Every output any biome declares, in first-seen order.
		seen := map[string]bool{}
		for _, b := range c.Biomes {
			for _, name := range sortedGroupNames(b.Groups) {
				if !seen[name] {
					seen[name] = true
					c.Outputs = append(c.Outputs, name)
				}
			}
		}
	}
	for i := range c.Biomes {
		for name, g := range c.Biomes[i].Groups {
			for j := range g.Layers {
				if g.Layers[j].Name == "" {
					g.Layers[j].Name = fmt.Sprintf("%s_%d", name, j)
				}
				if t := g.Layers[j].Tile; t != nil {
					if t.Threshold == nil {
						t.Threshold = ptr(0.5)
					}
					for k := range t.Tiles {
						// unset weights count as 1
						if t.Tiles[k].Weight == 0 {
							t.Tiles[k].Weight = 1
						}
					}
				}
				for k := range g.Layers[j].Sources {
					normalizeSource(&g.Layers[j].Sources[k])
				}
			}
		}
	}
}

func normalizeSource(ss *SourceSpec) {
	ss.Type = strings.ToLower(strings.TrimSpace(ss.Type))
	switch ss.Type {
	case "noise":
		// Zero would make a constant field.
		if ss.Multiplier == 0 {
			ss.Multiplier = 1
		}
		if ss.Size == 0 {
			ss.Size = 0.1
		}
	case "range":
		if ss.Min == nil {
			ss.Min = ptr(0.0)
		}
		if ss.Max == nil {
			ss.Max = ptr(0.0)
		}
	case "shared_data":
		if ss.Min == nil {
			ss.Min = ptr(0.0)
		}
		if ss.Max == nil {
			ss.Max = ptr(1.0)
		}
	case "edge_noise":
		if ss.Padding == nil {
			ss.Padding = ptr(1)
		}
		if ss.Spread == nil {
			ss.Spread = ptr(0.2)
		}
		if ss.Size == 0 {
			ss.Size = 0.1
		}
	}
}

func ptr[T any](v T) *T { return &v }

func (c Config) Validate() error {
	if c.ChunkSize[0] <= 0 || c.ChunkSize[1] <= 0 {
		return fmt.Errorf("chunk_size must be > 0")
	}
	if c.Blend.Distance < 0 {
		return fmt.Errorf("blend.distance must be >= 0")
	}
	if len(c.Biomes) == 0 {
		return fmt.Errorf("biomes must not be empty")
	}
	outputs := map[string]bool{}
	for _, o := range c.Outputs {
		outputs[o] = true
	}
	seen := map[string]bool{}
	for _, b := range c.Biomes {
		if strings.TrimSpace(b.Name) == "" {
			return fmt.Errorf("biome name must not be empty")
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate biome name: %s", b.Name)
		}
		seen[b.Name] = true
		if !(b.Weight > 0) {
			return fmt.Errorf("biome %s weight must be > 0", b.Name)
		}
		for out, g := range b.Groups {
			if !outputs[out] {
				return fmt.Errorf("biome %s group %s is not a declared output", b.Name, out)
			}
			for _, l := range g.Layers {
				if len(l.Sources) == 0 {
					return fmt.Errorf("biome %s layer %s has no sources", b.Name, l.Name)
				}
				if l.Tile != nil && l.Tile.Threshold != nil && *l.Tile.Threshold >= 1 {
					return fmt.Errorf("biome %s layer %s tile threshold must be < 1", b.Name, l.Name)
				}
			}
		}
	}
	return nil
}
