package world

import (
	"fmt"
	"math/bits"
	"strings"

	"procgen2d.ai/internal/gen/mathx"
)

// Directions indexes the eight neighbours clockwise from north.
var Directions = [8]mathx.Coord{
	{X: 0, Y: 1},   // N
	{X: 1, Y: 1},   // NE
	{X: 1, Y: 0},   // E
	{X: 1, Y: -1},  // SE
	{X: 0, Y: -1},  // S
	{X: -1, Y: -1}, // SW
	{X: -1, Y: 0},  // W
	{X: -1, Y: 1},  // NW
}

// Policy selects which neighbours are considered for border blending.
type Policy uint8

const (
	BlendHorizontal Policy = iota
	BlendVertical
	BlendAll
)

var policyDirections = [...][]int{
	BlendHorizontal: {2, 6},
	BlendVertical:   {0, 4},
	BlendAll:        {0, 1, 2, 3, 4, 5, 6, 7},
}

func (p Policy) Directions() []int {
	if int(p) < len(policyDirections) {
		return policyDirections[p]
	}
	return nil
}

func (p Policy) horizontal() bool { return p == BlendHorizontal || p == BlendAll }
func (p Policy) vertical() bool   { return p == BlendVertical || p == BlendAll }

func (p Policy) String() string {
	switch p {
	case BlendHorizontal:
		return "horizontal"
	case BlendVertical:
		return "vertical"
	case BlendAll:
		return "all"
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "horizontal":
		return BlendHorizontal, nil
	case "vertical":
		return BlendVertical, nil
	case "all":
		return BlendAll, nil
	}
	return 0, fmt.Errorf("unknown blending direction %q", s)
}

// Edges is a bitset over Directions.
type Edges uint8

func (e Edges) Has(dir int) bool { return e&(1<<uint(dir)) != 0 }

func (e Edges) With(dir int) Edges { return e | 1<<uint(dir) }

func (e Edges) Count() int { return bits.OnesCount8(uint8(e)) }

func (e Edges) List() []int {
	var out []int
	for i := range Directions {
		if e.Has(i) {
			out = append(out, i)
		}
	}
	return out
}
