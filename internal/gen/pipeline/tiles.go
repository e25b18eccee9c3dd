package pipeline

import (
	"math/rand/v2"

	"procgen2d.ai/internal/gen/field"
)

type TileEntry struct {
	ID     string
	Weight float64
}

// TileStep turns a thresholded field into tile placement records.
type TileStep struct {
	Tiles     []TileEntry
	Threshold float64
	// RandomTilePerChunk draws one tile for the whole chunk instead of one per cell.
	RandomTilePerChunk bool
	// UseAsWeight places a tile with probability (v-threshold)/(1-threshold).
	UseAsWeight bool
}

func (s *TileStep) totalWeight() float64 {
	var t float64
	for _, e := range s.Tiles {
		t += e.Weight
	}
	return t
}

func (s *TileStep) pick(r *rand.Rand, total float64) int {
	w := r.Float64() * total
	for i, e := range s.Tiles {
		w -= e.Weight
		if w < 0 {
			return i
		}
	}
	return 0
}

func (s *TileStep) Apply(seed uint64, pc Context, data *field.Field) error {
	if len(s.Tiles) == 0 || len(pc.Changes) < data.Len() {
		return nil
	}
	r := rand.New(rand.NewPCG(seed, 0))
	total := s.totalWeight()
	tile := s.pick(r, total)
	span := 1 - s.Threshold

	for y := 0; y < data.H; y++ {
		for x := 0; x < data.W; x++ {
			i := y*data.W + x
			if !s.RandomTilePerChunk {
				tile = s.pick(r, total)
			}
			v := data.Data[i]
			if v < s.Threshold {
				continue
			}
			if s.UseAsWeight && r.Float64() >= max(v-s.Threshold, 0)/span {
				continue
			}
			pc.Changes[i].Tile = s.Tiles[tile].ID
		}
	}
	return nil
}
