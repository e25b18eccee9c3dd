// Package noise wraps the coherent-noise generators used by the field sources.
// Every generator returns values roughly in [-1,1] and is safe for concurrent
// reads once constructed.
package noise

import (
	"fmt"
	"strings"

	"github.com/aquilax/go-perlin"
	opensimplex "github.com/ojrac/opensimplex-go"
)

type Kind uint8

const (
	Perlin Kind = iota
	CellularX
	CellularY
	Simplex
)

var kindNames = [...]string{"perlin", "cellular_x", "cellular_y", "simplex"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("noise(%d)", uint8(k))
}

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Perlin, nil
	}
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown noise type %q", s)
}

// Noise2 samples a 2D noise function.
type Noise2 interface {
	Eval2(x, y float64) float64
}

type perlinNoise struct{ p *perlin.Perlin }

func (n perlinNoise) Eval2(x, y float64) float64 { return n.p.Noise2D(x, y) }

// New builds the generator for kind. Cellular kinds return F1 (CellularX) or
// F2 (CellularY) feature distances.
func New(kind Kind, seed int64) Noise2 {
	switch kind {
	case Simplex:
		return opensimplex.New(seed)
	case CellularX:
		return &Cellular{Seed: seed}
	case CellularY:
		return &Cellular{Seed: seed, Second: true}
	default:
		return perlinNoise{p: perlin.NewPerlin(2, 2, 3, seed)}
	}
}

// Line is 1D Perlin noise mapped to [0,1]; used for row/column jitter.
type Line struct{ p *perlin.Perlin }

func NewLine(seed int64) *Line {
	return &Line{p: perlin.NewPerlin(2, 2, 3, seed)}
}

func (l *Line) At(x float64) float64 {
	return (l.p.Noise1D(x) + 1) * 0.5
}
