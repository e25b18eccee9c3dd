package config

import (
	"fmt"
	"sort"

	"procgen2d.ai/internal/gen/field"
	"procgen2d.ai/internal/gen/noise"
	"procgen2d.ai/internal/gen/pipeline"
	"procgen2d.ai/internal/gen/source"
	"procgen2d.ai/internal/world"
)

// Build turns a validated document into the biome set and orchestrator
// settings. Biomes keep document order, which is also their blend rank.
func Build(c Config) (*pipeline.BiomeSet, world.Settings, error) {
	policy, err := world.ParsePolicy(c.Blend.Direction)
	if err != nil {
		return nil, world.Settings{}, err
	}
	s := world.Settings{
		Seed:          c.Seed,
		ChunkW:        c.ChunkSize[0],
		ChunkH:        c.ChunkSize[1],
		Policy:        policy,
		BlendDistance: c.Blend.Distance,
		Pooling:       c.Pooling,
		Outputs:       append([]string(nil), c.Outputs...),
		Workers:       c.Workers,
	}
	if err := s.Validate(); err != nil {
		return nil, s, err
	}

	biomes := make([]*pipeline.Biome, 0, len(c.Biomes))
	for _, bs := range c.Biomes {
		b := &pipeline.Biome{Name: bs.Name, Weight: bs.Weight, Groups: map[string]*pipeline.Group{}}
		for _, out := range sortedGroupNames(bs.Groups) {
			g, err := buildGroup(bs.Name+"/"+out, bs.Groups[out], c.Seed)
			if err != nil {
				return nil, s, fmt.Errorf("biome %s: %w", bs.Name, err)
			}
			b.Groups[out] = g
		}
		biomes = append(biomes, b)
	}
	set := pipeline.NewBiomeSet(biomes...)
	if !(set.TotalWeight() > 0) {
		return nil, s, fmt.Errorf("%w: total weight %v", pipeline.ErrInvalidWeights, set.TotalWeight())
	}
	return set, s, nil
}

func buildGroup(name string, gs GroupSpec, seed int64) (*pipeline.Group, error) {
	g := &pipeline.Group{Name: name}
	for _, ls := range gs.Layers {
		l := &pipeline.Layer{Name: ls.Name, DataID: ls.DataID}
		for i, ss := range ls.Sources {
			st, err := buildStep(ss, seed)
			if err != nil {
				return nil, fmt.Errorf("layer %s source %d: %w", ls.Name, i, err)
			}
			l.Steps = append(l.Steps, st)
		}
		if ls.Tile != nil {
			ts := &pipeline.TileStep{
				Threshold:          deref(ls.Tile.Threshold, 0.5),
				RandomTilePerChunk: ls.Tile.RandomTilePerChunk,
				UseAsWeight:        ls.Tile.UseAsWeight,
			}
			for _, t := range ls.Tile.Tiles {
				ts.Tiles = append(ts.Tiles, pipeline.TileEntry{ID: t.ID, Weight: t.Weight})
			}
			l.Post = ts
		}
		g.Layers = append(g.Layers, l)
	}
	return g, nil
}

func buildStep(ss SourceSpec, seed int64) (pipeline.Step, error) {
	op, err := field.ParseOp(ss.Op)
	if err != nil {
		return pipeline.Step{}, err
	}
	var src source.Source
	switch ss.Type {
	case "noise":
		kind, err := noise.ParseKind(ss.NoiseType)
		if err != nil {
			return pipeline.Step{}, err
		}
		src = source.NewNoise(source.NoiseParams{
			Type:        kind,
			Size:        ss.Size,
			Multiplier:  ss.Multiplier,
			NoiseOffset: ss.NoiseOffset,
			Offset:      ss.Offset,
			Invert:      ss.Invert,
			Clamp:       ss.Clamp,
			SeedOffset:  ss.SeedOffset,
		}, seed)
	case "horizontal_gradient":
		src = &source.HorizontalGradient{Multiplier: ss.Multiplier, Sine: ss.Sine}
	case "range":
		src = &source.Range{Min: deref(ss.Min, 0), Max: deref(ss.Max, 0), Mask: ss.Mask}
	case "shared_data":
		src = &source.SharedData{DataID: ss.DataID, Invert: ss.Invert, Min: deref(ss.Min, 0), Max: deref(ss.Max, 1), Mask: ss.Mask}
	case "edge_noise":
		src = source.NewEdgeNoise(source.EdgeNoiseParams{
			Padding:    deref(ss.Padding, 1),
			Spread:     deref(ss.Spread, 0.2),
			Size:       ss.Size,
			SeedOffset: ss.SeedOffset,
		}, seed)
	default:
		return pipeline.Step{}, fmt.Errorf("unknown source type %q", ss.Type)
	}
	return pipeline.Step{Source: src, Op: op}, nil
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func sortedGroupNames(m map[string]GroupSpec) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
