package source

import (
	"context"

	"procgen2d.ai/internal/gen/field"
	"procgen2d.ai/internal/gen/noise"
)

type EdgeNoiseParams struct {
	Padding    int
	Spread     float64
	Size       float64
	SeedOffset int64
}

// EdgeNoise walls off the left and bottom padding and ramps up from both
// vertical edges towards the middle, with a per-chunk jitter on each side.
type EdgeNoise struct {
	p EdgeNoiseParams
	n noise.Noise2
}

func NewEdgeNoise(p EdgeNoiseParams, worldSeed int64) *EdgeNoise {
	return &EdgeNoise{p: p, n: noise.New(noise.Perlin, worldSeed)}
}

func (s *EdgeNoise) Kind() string { return "edge_noise" }

func (s *EdgeNoise) Generate(_ context.Context, sc Context, dst *field.Field) error {
	p := s.p
	half := sc.W / 2
	span := float64(half - p.Padding)
	row := float64(sc.WorldMin.Y) * p.Size
	left := s.n.Eval2(row, float64(p.SeedOffset)) * p.Spread
	right := s.n.Eval2(row, float64(p.SeedOffset+1)) * p.Spread

	for y := 0; y < sc.H; y++ {
		for x := 0; x < sc.W; x++ {
			i := y*sc.W + x
			if x < p.Padding || y >= sc.H-p.Padding {
				dst.Data[i] = 1
				continue
			}
			if x < half {
				dst.Data[i] = left + float64(max(0, x-p.Padding))/span
			} else {
				dst.Data[i] = right + float64(max(0, sc.W-x-p.Padding))/span
			}
		}
	}
	return nil
}
