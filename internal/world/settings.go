package world

import (
	"fmt"

	"procgen2d.ai/internal/gen/mathx"
)

type Settings struct {
	Seed          int64
	ChunkW        int
	ChunkH        int
	Policy        Policy
	BlendDistance int
	Pooling       bool
	// Outputs are the named tile layers every chunk carries, in generation order.
	Outputs []string
	// Workers bounds group parallelism; <= 0 means GOMAXPROCS.
	Workers int
}

func DefaultSettings() Settings {
	return Settings{
		Seed:          91597,
		ChunkW:        32,
		ChunkH:        32,
		Policy:        BlendHorizontal,
		BlendDistance: 16,
		Pooling:       true,
		Outputs:       []string{"ground"},
	}
}

func (s Settings) Validate() error {
	if s.ChunkW <= 0 || s.ChunkH <= 0 {
		return fmt.Errorf("chunk size must be positive: %dx%d", s.ChunkW, s.ChunkH)
	}
	if s.BlendDistance < 0 {
		return fmt.Errorf("blend distance must not be negative: %d", s.BlendDistance)
	}
	if len(s.Policy.Directions()) == 0 {
		return fmt.Errorf("unknown blending policy %d", s.Policy)
	}
	if len(s.Outputs) == 0 {
		return fmt.Errorf("at least one output is required")
	}
	seen := map[string]bool{}
	for _, o := range s.Outputs {
		if o == "" || seen[o] {
			return fmt.Errorf("output names must be unique and non-empty: %q", o)
		}
		seen[o] = true
	}
	return nil
}

// ChunkOrigin is the world position of a chunk's (0,0) cell.
func (s Settings) ChunkOrigin(c mathx.Coord) mathx.Coord {
	return mathx.Coord{X: c.X * s.ChunkW, Y: c.Y * s.ChunkH}
}

// WorldToChunk returns the chunk containing a world tile position.
func (s Settings) WorldToChunk(p mathx.Coord) mathx.Coord {
	return mathx.Coord{X: mathx.FloorDiv(p.X, s.ChunkW), Y: mathx.FloorDiv(p.Y, s.ChunkH)}
}

// ToLocal converts a world position into chunk-local coordinates, reporting
// false when the position lies outside chunk.
func (s Settings) ToLocal(chunk, p mathx.Coord) (mathx.Coord, bool) {
	if s.WorldToChunk(p) != chunk {
		return mathx.Coord{}, false
	}
	return mathx.Coord{X: mathx.Mod(p.X, s.ChunkW), Y: mathx.Mod(p.Y, s.ChunkH)}, true
}
