package pipeline

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"procgen2d.ai/internal/gen/mathx"
)

var ErrInvalidWeights = errors.New("invalid biome weights")

// Biome maps output names to the group that generates them.
type Biome struct {
	Name   string
	Weight float64
	Groups map[string]*Group
}

func (b *Biome) Group(output string) (*Group, bool) {
	g, ok := b.Groups[output]
	return g, ok
}

func (b *Biome) Outputs() []string {
	out := make([]string, 0, len(b.Groups))
	for k := range b.Groups {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BiomeSet selects biomes per chunk by weight, in registration order.
type BiomeSet struct {
	biomes []*Biome
	total  float64
}

func NewBiomeSet(biomes ...*Biome) *BiomeSet {
	s := &BiomeSet{biomes: biomes}
	for _, b := range biomes {
		s.total += b.Weight
	}
	return s
}

func (s *BiomeSet) Biomes() []*Biome { return s.biomes }

func (s *BiomeSet) TotalWeight() float64 { return s.total }

func (s *BiomeSet) ByName(name string) (*Biome, int, bool) {
	for i, b := range s.biomes {
		if b.Name == name {
			return b, i, true
		}
	}
	return nil, -1, false
}

// Select picks the biome of chunk. It is pure: neighbours are evaluated
// without materializing them. rank is the registration index and doubles as
// the blend priority.
func (s *BiomeSet) Select(chunk mathx.Coord, seed int64) (*Biome, int, error) {
	if !(s.total > 0) {
		return nil, -1, fmt.Errorf("%w: total weight %v", ErrInvalidWeights, s.total)
	}
	r := rand.New(rand.NewPCG(mathx.Hash2(seed, chunk.X, chunk.Y), 0))
	w := r.Float64() * s.total
	for i, b := range s.biomes {
		w -= b.Weight
		if w < 0 {
			return b, i, nil
		}
	}
	return nil, -1, fmt.Errorf("%w: no biome selected for chunk %v", ErrInvalidWeights, chunk)
}
