package world

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"procgen2d.ai/internal/gen/mathx"
	"procgen2d.ai/internal/gen/pipeline"
)

type State uint8

const (
	NonGenerated State = iota
	Processing
	Generated
	Disposing
	Disposed
)

func (s State) String() string {
	switch s {
	case NonGenerated:
		return "NON_GENERATED"
	case Processing:
		return "PROCESSING"
	case Generated:
		return "GENERATED"
	case Disposing:
		return "DISPOSING"
	case Disposed:
		return "DISPOSED"
	}
	return fmt.Sprintf("STATE(%d)", uint8(s))
}

type Chunk struct {
	Coord mathx.Coord
	State State
	Edges Edges
	Biome string
	Rank  int

	// Outputs holds the merged tile records per output name (len W*H).
	Outputs map[string][]pipeline.Change

	// Neighbors is the 3x3 neighbourhood, index (dy+1)*3+(dx+1); [4] is unused.
	Neighbors [9]*Chunk

	failed bool
}

func newChunk() *Chunk {
	return &Chunk{Outputs: map[string][]pipeline.Change{}}
}

// reset prepares a pooled chunk for a new coordinate.
func (c *Chunk) reset(coord mathx.Coord, w, h int, outputs []string) {
	c.Coord = coord
	c.State = NonGenerated
	c.Edges = 0
	c.Biome = ""
	c.Rank = 0
	c.failed = false
	c.Neighbors = [9]*Chunk{}
	if c.Outputs == nil {
		c.Outputs = map[string][]pipeline.Change{}
	}
	for k := range c.Outputs {
		delete(c.Outputs, k)
	}
	for _, name := range outputs {
		c.Outputs[name] = blankChanges(w, h)
	}
}

func blankChanges(w, h int) []pipeline.Change {
	out := make([]pipeline.Change, w*h)
	for i := range out {
		out[i].Pos = mathx.Coord{X: i % w, Y: i / w}
	}
	return out
}

// Tile returns the tile placed at local (x, y) of output, or "".
func (c *Chunk) Tile(output string, x, y, w int) string {
	buf := c.Outputs[output]
	i := y*w + x
	if i < 0 || i >= len(buf) {
		return ""
	}
	return buf[i].Tile
}

// Digest hashes every output, in name order.
func (c *Chunk) Digest() [32]byte {
	names := make([]string, 0, len(c.Outputs))
	for k := range c.Outputs {
		names = append(names, k)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		for _, ch := range c.Outputs[name] {
			h.Write([]byte(ch.Tile))
			h.Write([]byte{0})
		}
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Pool hands out chunk containers. Released chunks may be returned again by
// a later Acquire.
type Pool interface {
	Acquire() *Chunk
	Release(*Chunk)
}

// StackPool reuses the most recently released chunk first.
type StackPool struct {
	free []*Chunk
}

func (p *StackPool) Acquire() *Chunk {
	if n := len(p.free); n > 0 {
		c := p.free[n-1]
		p.free = p.free[:n-1]
		return c
	}
	return newChunk()
}

func (p *StackPool) Release(c *Chunk) { p.free = append(p.free, c) }

func (p *StackPool) Len() int { return len(p.free) }

type noPool struct{}

func (noPool) Acquire() *Chunk { return newChunk() }
func (noPool) Release(*Chunk)  {}
