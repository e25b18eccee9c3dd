// Package world owns the live chunk map and drives chunk generation and
// disposal as resumable jobs.
package world

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"procgen2d.ai/internal/gen/mathx"
	"procgen2d.ai/internal/gen/pipeline"
)

var (
	ErrChunkExists      = errors.New("chunk already exists")
	ErrChunkNotFound    = errors.New("chunk not found")
	ErrChunkGenerating  = errors.New("chunk is still generating")
	ErrDisposeCancelled = errors.New("dispose cancelled")
)

// BiomeSource picks the biome of a chunk. Implementations must be pure.
type BiomeSource interface {
	Select(chunk mathx.Coord, seed int64) (*pipeline.Biome, int, error)
}

// Generator is the chunk orchestrator.
//
// Accessed only from the host loop goroutine, except Close.
type Generator struct {
	settings Settings
	biomes   BiomeSource
	renderer Renderer
	pool     Pool
	masks    Masks
	log      *log.Logger

	chunks    map[mathx.Coord]*Chunk
	pending   map[mathx.Coord]*Job
	disposing map[mathx.Coord]*Job

	onGenerated []func(*Chunk)
	onDisposed  []func(mathx.Coord)

	closeOnce sync.Once
	closed    chan struct{}
}

func NewGenerator(s Settings, biomes BiomeSource, r Renderer, logger *log.Logger) (*Generator, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if biomes == nil {
		return nil, fmt.Errorf("biome source is required")
	}
	if r == nil {
		r = Renderers(nil)
	}
	if logger == nil {
		logger = log.Default()
	}
	var pool Pool = noPool{}
	if s.Pooling {
		pool = &StackPool{}
	}
	return &Generator{
		settings:  s,
		biomes:    biomes,
		renderer:  r,
		pool:      pool,
		masks:     ComputeMasks(s.ChunkW, s.ChunkH, s.BlendDistance, s.Policy, s.Seed),
		log:       logger,
		chunks:    map[mathx.Coord]*Chunk{},
		pending:   map[mathx.Coord]*Job{},
		disposing: map[mathx.Coord]*Job{},
		closed:    make(chan struct{}),
	}, nil
}

// SetPool replaces the chunk pool. Call before the first Generate.
func (g *Generator) SetPool(p Pool) {
	if p == nil {
		p = noPool{}
	}
	g.pool = p
}

func (g *Generator) Settings() Settings { return g.settings }

func (g *Generator) Masks() Masks { return g.masks }

func (g *Generator) OnGenerated(fn func(*Chunk)) { g.onGenerated = append(g.onGenerated, fn) }

func (g *Generator) OnDisposed(fn func(mathx.Coord)) { g.onDisposed = append(g.onDisposed, fn) }

// Close raises the dispose signal. Running dispose jobs stop at their next
// step with ErrDisposeCancelled; generation is not affected.
func (g *Generator) Close() {
	g.closeOnce.Do(func() { close(g.closed) })
}

func (g *Generator) closing() bool {
	select {
	case <-g.closed:
		return true
	default:
		return false
	}
}

// Chunk returns the live chunk at coord.
func (g *Generator) Chunk(coord mathx.Coord) (*Chunk, bool) {
	c, ok := g.chunks[coord]
	return c, ok
}

// Chunks lists the live coordinates in row-major order.
func (g *Generator) Chunks() []mathx.Coord { return sortedKeys(g.chunks) }

// Pending lists chunks whose generation job has not finished.
func (g *Generator) Pending() []mathx.Coord { return sortedKeys(g.pending) }

// Disposing lists chunks whose dispose job has not finished.
func (g *Generator) Disposing() []mathx.Coord { return sortedKeys(g.disposing) }

func sortedKeys[V any](m map[mathx.Coord]V) []mathx.Coord {
	out := make([]mathx.Coord, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// Edges computes the edge set of coord: bit i is set when the neighbour in
// direction i belongs to a different biome of higher rank. Neighbours do not
// need to be live.
func (g *Generator) Edges(coord mathx.Coord) (Edges, [8]*pipeline.Biome, error) {
	var (
		edges Edges
		nbs   [8]*pipeline.Biome
	)
	own, rank, err := g.biomes.Select(coord, g.settings.Seed)
	if err != nil {
		return 0, nbs, err
	}
	for _, dir := range g.settings.Policy.Directions() {
		nb, nrank, err := g.biomes.Select(coord.Add(Directions[dir]), g.settings.Seed)
		if err != nil {
			return 0, nbs, err
		}
		if nb != own && rank < nrank {
			edges = edges.With(dir)
			nbs[dir] = nb
		}
	}
	return edges, nbs, nil
}

// Generate registers coord and returns its generation job. The chunk is
// live and Processing once Generate returns.
func (g *Generator) Generate(coord mathx.Coord) (*Job, error) {
	if _, ok := g.chunks[coord]; ok {
		return nil, fmt.Errorf("%w: %v", ErrChunkExists, coord)
	}
	c := g.pool.Acquire()
	c.reset(coord, g.settings.ChunkW, g.settings.ChunkH, g.settings.Outputs)
	c.State = Processing
	g.chunks[coord] = c
	g.link(c)

	j := &Job{g: g, c: c, kind: jobGenerate}
	g.pending[coord] = j
	return j, nil
}

// GenerateSync generates coord to completion.
func (g *Generator) GenerateSync(ctx context.Context, coord mathx.Coord) (*Chunk, error) {
	j, err := g.Generate(coord)
	if err != nil {
		return nil, err
	}
	if err := j.Run(ctx); err != nil {
		return nil, err
	}
	return j.Chunk(), nil
}

// Dispose removes coord from the live map and returns the job that clears
// and releases it. A chunk still generating cannot be disposed unless its
// generation failed.
func (g *Generator) Dispose(coord mathx.Coord) (*Job, error) {
	c, ok := g.chunks[coord]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrChunkNotFound, coord)
	}
	if c.State == Processing && !c.failed {
		return nil, fmt.Errorf("%w: %v", ErrChunkGenerating, coord)
	}
	delete(g.chunks, coord)
	delete(g.pending, coord)
	unlink(c)
	c.State = Disposing

	j := &Job{g: g, c: c, kind: jobDispose}
	g.disposing[coord] = j
	return j, nil
}

func (g *Generator) finishGenerate(c *Chunk) {
	g.refreshNeighbors(c)
	c.State = Generated
	delete(g.pending, c.Coord)
	for _, fn := range g.onGenerated {
		fn(c)
	}
}

func (g *Generator) finishDispose(c *Chunk) {
	coord := c.Coord
	g.pool.Release(c)
	c.State = Disposed
	delete(g.disposing, coord)
	for _, fn := range g.onDisposed {
		fn(coord)
	}
}

func (g *Generator) failGenerate(c *Chunk, err error) {
	c.failed = true
	delete(g.pending, c.Coord)
	g.log.Printf("generate chunk %v: %v", c.Coord, err)
}
