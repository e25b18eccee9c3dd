package source

import (
	"context"
	"errors"

	"procgen2d.ai/internal/gen/field"
	"procgen2d.ai/internal/gen/shared"
	"procgen2d.ai/internal/gen/task"
)

// SharedData reads a field another layer published in the same pass.
type SharedData struct {
	DataID   string
	Invert   bool
	Min, Max float64
	Mask     bool
}

func (s *SharedData) Kind() string { return "shared_data" }

// DependsOn reports the writer's token, or false when nothing has been
// published under DataID yet.
func (s *SharedData) DependsOn(sc Context) (task.Handle, bool) {
	if sc.Shared == nil {
		return task.Handle{}, false
	}
	return sc.Shared.Token(s.DataID)
}

// Generate leaves dst zeroed when the id was never published; generation
// continues with that default field.
func (s *SharedData) Generate(ctx context.Context, sc Context, dst *field.Field) error {
	if sc.Shared == nil {
		sc.logger().Printf("shared data %q: no registry for chunk %v", s.DataID, sc.Chunk)
		return nil
	}
	src, err := sc.Shared.Await(ctx, s.DataID)
	if errors.Is(err, shared.ErrNotFound) {
		sc.logger().Printf("could not find shared data %q for chunk %v", s.DataID, sc.Chunk)
		return nil
	}
	if err != nil {
		return err
	}
	n := min(len(src.Data), len(dst.Data))
	for i := 0; i < n; i++ {
		v := src.Data[i]
		if s.Invert {
			v = 1 - field.Saturate(v)
		}
		dst.Data[i] = remap(v, s.Min, s.Max, s.Mask)
	}
	return nil
}
