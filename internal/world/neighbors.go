package world

import "procgen2d.ai/internal/gen/mathx"

func neighborIndex(dx, dy int) int { return (dy+1)*3 + (dx + 1) }

// link connects c with every live chunk of its 3x3 neighbourhood.
func (g *Generator) link(c *Chunk) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n, ok := g.chunks[c.Coord.Add(mathx.Coord{X: dx, Y: dy})]
			if !ok {
				continue
			}
			i := neighborIndex(dx, dy)
			c.Neighbors[i] = n
			n.Neighbors[8-i] = c
		}
	}
}

func unlink(c *Chunk) {
	for i, n := range c.Neighbors {
		if n == nil {
			continue
		}
		if n.Neighbors[8-i] == c {
			n.Neighbors[8-i] = nil
		}
		c.Neighbors[i] = nil
	}
}

// boundaryCells lists the cells of a chunk that touch its neighbour at
// offset (dx, dy).
func boundaryCells(dx, dy, w, h int) []mathx.Coord {
	xs := axisCells(dx, w)
	ys := axisCells(dy, h)
	out := make([]mathx.Coord, 0, len(xs)*len(ys))
	for _, y := range ys {
		for _, x := range xs {
			out = append(out, mathx.Coord{X: x, Y: y})
		}
	}
	return out
}

func axisCells(d, n int) []int {
	switch {
	case d > 0:
		return []int{n - 1}
	case d < 0:
		return []int{0}
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// refreshNeighbors asks the renderer to re-evaluate the borders generated
// neighbours share with c.
func (g *Generator) refreshNeighbors(c *Chunk) {
	for i, n := range c.Neighbors {
		if n == nil || n.State != Generated {
			continue
		}
		dx, dy := i%3-1, i/3-1
		// Cells of n that face c.
		cells := boundaryCells(-dx, -dy, g.settings.ChunkW, g.settings.ChunkH)
		for _, out := range g.settings.Outputs {
			g.renderer.Refresh(n.Coord, out, cells)
		}
	}
}
