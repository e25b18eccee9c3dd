package world

import (
	"context"
	"fmt"

	"procgen2d.ai/internal/gen/pipeline"
	"procgen2d.ai/internal/gen/shared"
)

type jobKind uint8

const (
	jobGenerate jobKind = iota
	jobDispose
)

type phase uint8

const (
	phaseOwn phase = iota
	phaseBlend
	phaseRows
	phaseFinish
	phaseDone
)

type blendItem struct {
	dir    int
	output string
	biome  *pipeline.Biome
	// last marks the final output of a direction.
	last bool
}

// Job is a resumable chunk generation or disposal. Each Step advances one
// resumption point; the host loop interleaves steps of many jobs.
type Job struct {
	g    *Generator
	c    *Chunk
	kind jobKind

	phase  phase
	next   int
	reg    *shared.Registry
	biome  *pipeline.Biome
	blends []blendItem

	done bool
	err  error
}

func (j *Job) Chunk() *Chunk { return j.c }

func (j *Job) Done() bool { return j.done }

func (j *Job) Err() error { return j.err }

// Disposal reports whether the job disposes its chunk.
func (j *Job) Disposal() bool { return j.kind == jobDispose }

// Step runs the next resumption point and reports whether more remain.
func (j *Job) Step(ctx context.Context) bool {
	if j.done {
		return false
	}
	var err error
	if j.kind == jobDispose {
		err = j.stepDispose()
	} else {
		// Generation always runs to completion once started.
		err = j.stepGenerate(context.WithoutCancel(ctx))
	}
	if err != nil {
		j.err = err
		j.done = true
		if j.kind == jobGenerate {
			j.g.failGenerate(j.c, err)
		}
	}
	return !j.done
}

// Run drives the job to completion.
func (j *Job) Run(ctx context.Context) error {
	for j.Step(ctx) {
	}
	return j.err
}

func (j *Job) stepGenerate(ctx context.Context) error {
	g, c, s := j.g, j.c, j.g.settings
	switch j.phase {
	case phaseOwn:
		if j.reg == nil {
			biome, rank, err := g.biomes.Select(c.Coord, s.Seed)
			if err != nil {
				return err
			}
			edges, nbs, err := g.Edges(c.Coord)
			if err != nil {
				return err
			}
			j.biome = biome
			c.Biome, c.Rank, c.Edges = biome.Name, rank, edges
			j.reg = shared.NewRegistry()
			if s.BlendDistance > 0 {
				for _, dir := range edges.List() {
					for i, out := range s.Outputs {
						j.blends = append(j.blends, blendItem{dir: dir, output: out, biome: nbs[dir], last: i == len(s.Outputs)-1})
					}
				}
			}
		}
		out := s.Outputs[j.next]
		if _, err := j.runGroup(ctx, j.biome, out, c.Outputs[out]); err != nil {
			return err
		}
		j.next++
		if j.next == len(s.Outputs) {
			j.reg.Clear()
			j.advance(phaseBlend)
		}

	case phaseBlend:
		if j.next >= len(j.blends) {
			j.advance(phaseRows)
			return nil
		}
		it := j.blends[j.next]
		tmp := blankChanges(s.ChunkW, s.ChunkH)
		ran, err := j.runGroup(ctx, it.biome, it.output, tmp)
		if err != nil {
			return err
		}
		// A neighbour without a group for this output leaves the band as is.
		if ran {
			mask := g.masks[it.dir]
			dst := c.Outputs[it.output]
			for i := range dst {
				if mask[i] > 0.5 {
					dst[i].Tile = tmp[i].Tile
				}
			}
		}
		if it.last {
			j.reg.Clear()
		}
		j.next++
		if j.next == len(j.blends) {
			j.advance(phaseRows)
		}

	case phaseRows:
		y := j.next
		for _, out := range s.Outputs {
			buf := c.Outputs[out]
			g.renderer.SetRow(c.Coord, out, y, buf[y*s.ChunkW:(y+1)*s.ChunkW])
		}
		j.next++
		if j.next == s.ChunkH {
			j.advance(phaseFinish)
		}

	case phaseFinish:
		g.finishGenerate(c)
		j.phase = phaseDone
		j.done = true
	}
	return nil
}

func (j *Job) advance(p phase) {
	j.phase = p
	j.next = 0
}

// runGroup runs biome's group for output anchored at the job's chunk and
// reports whether biome has a group for output at all.
func (j *Job) runGroup(ctx context.Context, biome *pipeline.Biome, output string, dst []pipeline.Change) (bool, error) {
	grp, ok := biome.Group(output)
	if !ok {
		return false, nil
	}
	s := j.g.settings
	pc := pipeline.Context{
		WorldSeed: s.Seed,
		Chunk:     j.c.Coord,
		WorldMin:  s.ChunkOrigin(j.c.Coord),
		W:         s.ChunkW,
		H:         s.ChunkH,
		Shared:    j.reg,
		Changes:   dst,
		Workers:   s.Workers,
		Log:       j.g.log,
	}
	if _, err := grp.Run(ctx, pc); err != nil {
		return true, fmt.Errorf("chunk %v biome %s: %w", j.c.Coord, biome.Name, err)
	}
	return true, nil
}

func (j *Job) stepDispose() error {
	g, c, s := j.g, j.c, j.g.settings
	if g.closing() {
		delete(g.disposing, c.Coord)
		return fmt.Errorf("%w: %v", ErrDisposeCancelled, c.Coord)
	}
	if j.next < s.ChunkH {
		for _, out := range s.Outputs {
			g.renderer.ClearRow(c.Coord, out, j.next)
		}
		j.next++
		return nil
	}
	g.finishDispose(c)
	j.done = true
	return nil
}
