package world

import (
	"sync"

	"procgen2d.ai/internal/gen/mathx"
	"procgen2d.ai/internal/gen/pipeline"
)

// Renderer receives generated rows. Row slices are owned by the chunk and
// must not be retained or modified.
type Renderer interface {
	SetRow(chunk mathx.Coord, output string, y int, row []pipeline.Change)
	ClearRow(chunk mathx.Coord, output string, y int)
	// Refresh asks for boundary cells of an already generated chunk to be
	// re-evaluated after a neighbour changed.
	Refresh(chunk mathx.Coord, output string, cells []mathx.Coord)
}

// Renderers fans rows out to several renderers.
type Renderers []Renderer

func (rs Renderers) SetRow(chunk mathx.Coord, output string, y int, row []pipeline.Change) {
	for _, r := range rs {
		r.SetRow(chunk, output, y, row)
	}
}

func (rs Renderers) ClearRow(chunk mathx.Coord, output string, y int) {
	for _, r := range rs {
		r.ClearRow(chunk, output, y)
	}
}

func (rs Renderers) Refresh(chunk mathx.Coord, output string, cells []mathx.Coord) {
	for _, r := range rs {
		r.Refresh(chunk, output, cells)
	}
}

type tileKey struct {
	Output string
	Pos    mathx.Coord
}

// MemoryRenderer keeps the world-space tile map in memory.
type MemoryRenderer struct {
	W, H int

	mu        sync.Mutex
	tiles     map[tileKey]string
	rows      int
	refreshes int
}

func NewMemoryRenderer(w, h int) *MemoryRenderer {
	return &MemoryRenderer{W: w, H: h, tiles: map[tileKey]string{}}
}

func (m *MemoryRenderer) SetRow(chunk mathx.Coord, output string, y int, row []pipeline.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows++
	for _, ch := range row {
		k := tileKey{Output: output, Pos: mathx.Coord{X: chunk.X*m.W + ch.Pos.X, Y: chunk.Y*m.H + ch.Pos.Y}}
		if ch.Tile == "" {
			delete(m.tiles, k)
			continue
		}
		m.tiles[k] = ch.Tile
	}
}

func (m *MemoryRenderer) ClearRow(chunk mathx.Coord, output string, y int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for x := 0; x < m.W; x++ {
		delete(m.tiles, tileKey{Output: output, Pos: mathx.Coord{X: chunk.X*m.W + x, Y: chunk.Y*m.H + y}})
	}
}

func (m *MemoryRenderer) Refresh(mathx.Coord, string, []mathx.Coord) {
	m.mu.Lock()
	m.refreshes++
	m.mu.Unlock()
}

// TileAt returns the tile at a world position.
func (m *MemoryRenderer) TileAt(output string, x, y int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tiles[tileKey{Output: output, Pos: mathx.Coord{X: x, Y: y}}]
}

func (m *MemoryRenderer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tiles)
}

func (m *MemoryRenderer) Rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows
}

func (m *MemoryRenderer) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}
