// Package pipeline composes sources into layers, layers into groups and groups
// into biomes, and runs a group for one chunk as a task graph.
package pipeline

import (
	"log"

	"procgen2d.ai/internal/gen/mathx"
	"procgen2d.ai/internal/gen/shared"
)

// Change is one tile placement record in chunk-local coordinates. An empty
// Tile clears the cell.
type Change struct {
	Pos  mathx.Coord `json:"pos"`
	Tile string      `json:"tile,omitempty"`
}

// Context is the read-only input of one group run.
type Context struct {
	WorldSeed int64
	Chunk     mathx.Coord
	WorldMin  mathx.Coord
	W, H      int
	Shared    *shared.Registry
	// Changes receives tile records from the layer post-steps (len W*H).
	Changes []Change
	Workers int
	Log     *log.Logger
}

func (pc Context) logger() *log.Logger {
	if pc.Log != nil {
		return pc.Log
	}
	return log.Default()
}
