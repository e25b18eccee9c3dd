// Package source holds the elementary field generators a layer chains together.
package source

import (
	"context"
	"log"

	"procgen2d.ai/internal/gen/field"
	"procgen2d.ai/internal/gen/mathx"
	"procgen2d.ai/internal/gen/shared"
	"procgen2d.ai/internal/gen/task"
)

// Context is what a single source sees while generating one chunk.
type Context struct {
	Seed     uint64
	Chunk    mathx.Coord
	WorldMin mathx.Coord
	W, H     int
	Shared   *shared.Registry
	Log      *log.Logger
}

type Source interface {
	Kind() string
}

// Generator computes an independent field into dst. dst is zeroed and sized
// to the chunk; the layer combines it into its running field afterwards.
type Generator interface {
	Source
	Generate(ctx context.Context, sc Context, dst *field.Field) error
}

// Transformer rewrites the layer's running field in place instead of being
// combined into it.
type Transformer interface {
	Source
	Transform(sc Context, data *field.Field) error
}

// Dependent sources must not start before the returned handle completes.
type Dependent interface {
	DependsOn(sc Context) (task.Handle, bool)
}

func (sc Context) logger() *log.Logger {
	if sc.Log != nil {
		return sc.Log
	}
	return log.Default()
}
