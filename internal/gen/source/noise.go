package source

import (
	"context"
	"math"

	"procgen2d.ai/internal/gen/field"
	"procgen2d.ai/internal/gen/noise"
)

type NoiseParams struct {
	Type        noise.Kind
	Size        float64
	Multiplier  float64
	NoiseOffset float64
	Offset      float64
	Invert      bool
	Clamp       bool
	SeedOffset  int64
}

// Noise samples coherent noise in world space, so neighbouring chunks line up.
type Noise struct {
	p NoiseParams
	n noise.Noise2
}

func NewNoise(p NoiseParams, worldSeed int64) *Noise {
	return &Noise{p: p, n: noise.New(p.Type, worldSeed+p.SeedOffset)}
}

func (s *Noise) Kind() string { return "noise" }

func (s *Noise) Params() NoiseParams { return s.p }

func (s *Noise) Generate(_ context.Context, sc Context, dst *field.Field) error {
	p := s.p
	for y := 0; y < sc.H; y++ {
		wy := (float64(sc.WorldMin.Y+y) + p.NoiseOffset) * p.Size
		for x := 0; x < sc.W; x++ {
			wx := (float64(sc.WorldMin.X+x) + p.NoiseOffset) * p.Size
			v := (s.n.Eval2(wx, wy) + 1) * 0.5
			v = (v + p.Offset) * p.Multiplier
			if p.Invert {
				v = 1 - v
			}
			if p.Clamp {
				v = math.Min(math.Max(v, 0), 1)
			}
			dst.Data[y*sc.W+x] = v
		}
	}
	return nil
}
