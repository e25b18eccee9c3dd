package pipeline

import (
	"context"
	"fmt"

	"procgen2d.ai/internal/gen/field"
	"procgen2d.ai/internal/gen/mathx"
	"procgen2d.ai/internal/gen/source"
	"procgen2d.ai/internal/gen/task"
)

// Step is one entry of a layer's source chain. Op is ignored for sources that
// transform the running field in place.
type Step struct {
	Source source.Source
	Op     field.Op
}

// PostStep runs after the group join, in layer order.
type PostStep interface {
	Apply(seed uint64, pc Context, data *field.Field) error
}

type Layer struct {
	Name string
	// DataID publishes the final field to the pass registry when set.
	DataID string
	Steps  []Step
	Post   PostStep
}

type layerRun struct {
	layer *Layer
	seed  uint64
	data  *field.Field
	done  task.Handle
}

// schedule adds the layer's chain to g. Source i+1 starts only after source
// i has been combined, so the chain folds in declared order.
func (l *Layer) schedule(g *task.Graph, pc Context, index int) (*layerRun, error) {
	run := &layerRun{
		layer: l,
		seed:  mathx.LayerSeed(pc.WorldSeed, index, pc.Chunk),
		data:  field.New(pc.W, pc.H),
	}

	var prev task.Handle
	for i, st := range l.Steps {
		sc := source.Context{
			Seed:     mathx.SourceSeed(run.seed, i),
			Chunk:    pc.Chunk,
			WorldMin: pc.WorldMin,
			W:        pc.W,
			H:        pc.H,
			Shared:   pc.Shared,
			Log:      pc.Log,
		}
		name := fmt.Sprintf("%s/%d:%s", l.Name, i, st.Source.Kind())

		switch src := st.Source.(type) {
		case source.Transformer:
			data := run.data
			prev = g.Add(name, func(context.Context) error {
				return src.Transform(sc, data)
			}, prev)

		case source.Generator:
			tmp := field.New(pc.W, pc.H)
			deps := []task.Handle{prev}
			gen := func(ctx context.Context) error { return src.Generate(ctx, sc, tmp) }
			if dep, ok := st.Source.(source.Dependent); ok {
				tok, found := dep.DependsOn(sc)
				if !found {
					// Not published by an earlier layer of this pass: keep the zero field.
					gen = func(context.Context) error {
						pc.logger().Printf("layer %s: could not find shared data for source %d in chunk %v", l.Name, i, pc.Chunk)
						return nil
					}
				}
				deps = append(deps, tok)
			}
			genH := g.Add(name, gen, deps...)
			op := st.Op
			data := run.data
			prev = g.Add(name+"/"+op.String(), func(context.Context) error {
				return field.Combine(op, data, tmp)
			}, genH, prev)

		default:
			return nil, fmt.Errorf("layer %s: source %d (%s) neither generates nor transforms", l.Name, i, st.Source.Kind())
		}
	}

	run.done = g.Join(l.Name, prev)
	if l.DataID != "" {
		if err := pc.Shared.Publish(l.DataID, run.data, run.done); err != nil {
			return nil, fmt.Errorf("layer %s: %w", l.Name, err)
		}
	}
	return run, nil
}
