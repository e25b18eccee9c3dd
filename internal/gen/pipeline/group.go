package pipeline

import (
	"context"
	"fmt"

	"procgen2d.ai/internal/gen/field"
	"procgen2d.ai/internal/gen/shared"
	"procgen2d.ai/internal/gen/task"
)

// Group is the set of layers that produces one named output of a biome.
type Group struct {
	Name   string
	Layers []*Layer
}

func (g *Group) LayerCount() int { return len(g.Layers) }

// Result holds the final field of every layer of one group run.
type Result struct {
	fields map[string]*field.Field
	order  []string
}

// Field returns the final field of the named layer. Fields that were
// published stay owned by the registry and are only valid until it is cleared.
func (r *Result) Field(layer string) (*field.Field, bool) {
	f, ok := r.fields[layer]
	return f, ok
}

func (r *Result) Layers() []string { return r.order }

// Run schedules every layer into one graph, waits for all of them and then
// applies the post-steps in layer order.
func (g *Group) Run(ctx context.Context, pc Context) (*Result, error) {
	if pc.Shared == nil {
		pc.Shared = shared.NewRegistry()
	}
	graph := task.New(pc.Workers)

	runs := make([]*layerRun, 0, len(g.Layers))
	dones := make([]task.Handle, 0, len(g.Layers))
	for i, l := range g.Layers {
		run, err := l.schedule(graph, pc, i)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", g.Name, err)
		}
		runs = append(runs, run)
		dones = append(dones, run.done)
	}
	graph.Join(g.Name, dones...)

	if err := graph.Run(ctx); err != nil {
		return nil, fmt.Errorf("group %s: %w", g.Name, err)
	}

	res := &Result{fields: make(map[string]*field.Field, len(runs))}
	for _, run := range runs {
		if run.layer.Post != nil {
			if err := run.layer.Post.Apply(run.seed, pc, run.data); err != nil {
				return nil, fmt.Errorf("group %s: layer %s: %w", g.Name, run.layer.Name, err)
			}
		}
		res.fields[run.layer.Name] = run.data
		res.order = append(res.order, run.layer.Name)
	}
	return res, nil
}
