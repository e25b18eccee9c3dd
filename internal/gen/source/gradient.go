package source

import (
	"context"
	"math"

	"procgen2d.ai/internal/gen/field"
)

// HorizontalGradient ramps from 0 at the left edge towards Multiplier.
type HorizontalGradient struct {
	Multiplier float64
	Sine       bool
}

func (s *HorizontalGradient) Kind() string { return "horizontal_gradient" }

func (s *HorizontalGradient) Generate(_ context.Context, sc Context, dst *field.Field) error {
	w := float64(sc.W)
	for y := 0; y < sc.H; y++ {
		for x := 0; x < sc.W; x++ {
			t := float64(x) / w
			if s.Sine {
				t = math.Sin(t * math.Pi)
			}
			dst.Data[y*sc.W+x] = t * s.Multiplier
		}
	}
	return nil
}
