package world

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"procgen2d.ai/internal/gen/field"
	"procgen2d.ai/internal/gen/mathx"
	"procgen2d.ai/internal/gen/pipeline"
	"procgen2d.ai/internal/gen/source"
)

// fillBiome places tile everywhere and publishes a constant field under "h".
func fillBiome(name, tile string, h float64) *pipeline.Biome {
	hl := &pipeline.Layer{
		Name:   "h",
		DataID: "h",
		Steps: []pipeline.Step{
			{Source: &source.HorizontalGradient{Multiplier: 0}, Op: field.Add},
			{Source: &source.Range{Min: 0, Max: 0, Mask: true}},
			{Source: &source.Range{Min: 0, Max: 1 / h}},
		},
	}
	tiles := &pipeline.Layer{
		Name:  "tiles",
		Steps: []pipeline.Step{{Source: &source.SharedData{DataID: "h", Min: h - 0.01, Max: h + 0.01, Mask: true}, Op: field.Add}},
		Post:  &pipeline.TileStep{Tiles: []pipeline.TileEntry{{ID: tile, Weight: 1}}, Threshold: 0.5},
	}
	return &pipeline.Biome{
		Name:   name,
		Weight: 1,
		Groups: map[string]*pipeline.Group{"ground": {Name: name + "/ground", Layers: []*pipeline.Layer{hl, tiles}}},
	}
}

// columns puts biome a (rank 0) on chunk column 0 and b (rank 1) elsewhere.
type columns struct{ a, b *pipeline.Biome }

func (c columns) Select(chunk mathx.Coord, _ int64) (*pipeline.Biome, int, error) {
	if chunk.X == 0 {
		return c.a, 0, nil
	}
	return c.b, 1, nil
}

func testGenerator(t *testing.T) (*Generator, *MemoryRenderer) {
	t.Helper()
	s := DefaultSettings()
	s.ChunkW, s.ChunkH = 16, 4
	s.BlendDistance = 8
	s.Workers = 2
	r := NewMemoryRenderer(s.ChunkW, s.ChunkH)
	biomes := columns{a: fillBiome("plains", "grass", 0.5), b: fillBiome("desert", "sand", 1)}
	g, err := NewGenerator(s, biomes, r, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g, r
}

func TestEdgesAreAsymmetric(t *testing.T) {
	g, _ := testGenerator(t)
	low, _, err := g.Edges(mathx.Coord{X: 0, Y: 0})
	if err != nil {
		t.Fatalf("Edges: %v", err)
	}
	if !low.Has(2) || !low.Has(6) || low.Count() != 2 {
		t.Fatalf("rank 0 chunk edges=%08b want E and W", low)
	}
	high, _, _ := g.Edges(mathx.Coord{X: 1, Y: 0})
	if high != 0 {
		t.Fatalf("rank 1 chunk edges=%08b want none", high)
	}
	same, _, _ := g.Edges(mathx.Coord{X: 3, Y: 0})
	if same != 0 {
		t.Fatalf("same-biome edges=%08b want none", same)
	}
}

func TestGenerateBlendsWithHigherRankNeighbours(t *testing.T) {
	g, r := testGenerator(t)
	c, err := g.GenerateSync(context.Background(), mathx.Coord{X: 0, Y: 0})
	if err != nil {
		t.Fatalf("GenerateSync: %v", err)
	}
	if c.State != Generated || c.Biome != "plains" || c.Rank != 0 {
		t.Fatalf("chunk=%+v", c)
	}
	m := g.Masks()
	s := g.Settings()
	for i, ch := range c.Outputs["ground"] {
		want := "grass"
		if m[2][i] > 0.5 || m[6][i] > 0.5 {
			want = "sand"
		}
		if ch.Tile != want {
			t.Fatalf("cell %v tile=%q want %q", ch.Pos, ch.Tile, want)
		}
		if got := r.TileAt("ground", ch.Pos.X, ch.Pos.Y); got != want {
			t.Fatalf("rendered %v=%q want %q", ch.Pos, got, want)
		}
	}
	if r.Rows() != s.ChunkH {
		t.Fatalf("rows=%d want %d", r.Rows(), s.ChunkH)
	}
}

func TestBlendSkipsNeighbourWithoutGroup(t *testing.T) {
	s := DefaultSettings()
	s.ChunkW, s.ChunkH = 16, 4
	s.BlendDistance = 8
	r := NewMemoryRenderer(s.ChunkW, s.ChunkH)
	bare := &pipeline.Biome{Name: "void", Weight: 1, Groups: map[string]*pipeline.Group{}}
	g, err := NewGenerator(s, columns{a: fillBiome("plains", "grass", 0.5), b: bare}, r, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	c, err := g.GenerateSync(context.Background(), mathx.Coord{X: 0, Y: 0})
	if err != nil {
		t.Fatalf("GenerateSync: %v", err)
	}
	if c.Edges.Count() != 2 {
		t.Fatalf("edges=%08b want E and W", c.Edges)
	}
	for _, ch := range c.Outputs["ground"] {
		if ch.Tile != "grass" {
			t.Fatalf("cell %v tile=%q want grass", ch.Pos, ch.Tile)
		}
	}
}

func TestSharedDataIsScopedPerPass(t *testing.T) {
	// Both biomes publish "h": the own pass and each blend direction must
	// start from an empty registry or the second publish is a duplicate.
	g, _ := testGenerator(t)
	c, err := g.GenerateSync(context.Background(), mathx.Coord{X: 0, Y: 0})
	if err != nil {
		t.Fatalf("GenerateSync: %v", err)
	}
	if c.Edges.Count() != 2 {
		t.Fatalf("edges=%08b", c.Edges)
	}
	// A pass reading another pass's "h" would leave cells empty.
	for _, ch := range c.Outputs["ground"] {
		if ch.Tile != "grass" && ch.Tile != "sand" {
			t.Fatalf("cell %v tile=%q", ch.Pos, ch.Tile)
		}
	}
}

func TestLifecycle(t *testing.T) {
	g, r := testGenerator(t)
	ctx := context.Background()
	at := mathx.Coord{X: 2, Y: 5}

	j, err := g.Generate(at)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := g.Generate(at); !errors.Is(err, ErrChunkExists) {
		t.Fatalf("duplicate Generate err=%v", err)
	}
	if _, err := g.Dispose(at); !errors.Is(err, ErrChunkGenerating) {
		t.Fatalf("Dispose while processing err=%v", err)
	}
	if j.Chunk().State != Processing || len(g.Pending()) != 1 {
		t.Fatalf("state=%v pending=%v", j.Chunk().State, g.Pending())
	}
	if err := j.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	c := j.Chunk()
	if c.State != Generated || len(g.Pending()) != 0 {
		t.Fatalf("state=%v pending=%v", c.State, g.Pending())
	}

	var disposed []mathx.Coord
	g.OnDisposed(func(c mathx.Coord) { disposed = append(disposed, c) })

	dj, err := g.Dispose(at)
	if err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if _, ok := g.Chunk(at); ok {
		t.Fatalf("chunk still live after Dispose")
	}
	if c.State != Disposing || len(g.Disposing()) != 1 {
		t.Fatalf("state=%v", c.State)
	}
	if _, err := g.Dispose(at); !errors.Is(err, ErrChunkNotFound) {
		t.Fatalf("second Dispose err=%v", err)
	}
	if err := dj.Run(ctx); err != nil {
		t.Fatalf("dispose Run: %v", err)
	}
	if c.State != Disposed || len(disposed) != 1 || disposed[0] != at {
		t.Fatalf("state=%v disposed=%v", c.State, disposed)
	}
	if r.Len() != 0 {
		t.Fatalf("renderer still holds %d tiles", r.Len())
	}
	if p := g.pool.(*StackPool); p.Len() != 1 {
		t.Fatalf("pool len=%d want 1", p.Len())
	}

	// The pooled container comes back reset.
	j2, err := g.Generate(mathx.Coord{X: 9, Y: 9})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if j2.Chunk() != c || c.State != Processing || c.Coord != (mathx.Coord{X: 9, Y: 9}) {
		t.Fatalf("pooled chunk not reused: %+v", j2.Chunk())
	}
}

func TestDisposeWithoutPooling(t *testing.T) {
	s := DefaultSettings()
	s.ChunkW, s.ChunkH = 4, 4
	s.Pooling = false
	b := fillBiome("plains", "grass", 0.5)
	g, err := NewGenerator(s, pipeline.NewBiomeSet(b), nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	ctx := context.Background()
	c, err := g.GenerateSync(ctx, mathx.Coord{})
	if err != nil {
		t.Fatalf("GenerateSync: %v", err)
	}
	j, _ := g.Dispose(mathx.Coord{})
	if err := j.Run(ctx); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	j2, _ := g.Generate(mathx.Coord{})
	if j2.Chunk() == c {
		t.Fatalf("chunk reused with pooling off")
	}
}

func TestCloseCancelsDispose(t *testing.T) {
	g, _ := testGenerator(t)
	ctx := context.Background()
	if _, err := g.GenerateSync(ctx, mathx.Coord{X: 4}); err != nil {
		t.Fatalf("GenerateSync: %v", err)
	}
	j, _ := g.Dispose(mathx.Coord{X: 4})
	j.Step(ctx)
	g.Close()
	if err := j.Run(ctx); !errors.Is(err, ErrDisposeCancelled) {
		t.Fatalf("err=%v want ErrDisposeCancelled", err)
	}
	if j.Chunk().State != Disposing {
		t.Fatalf("state=%v", j.Chunk().State)
	}
}

func TestNeighborLinks(t *testing.T) {
	g, r := testGenerator(t)
	ctx := context.Background()
	a, err := g.GenerateSync(ctx, mathx.Coord{X: 1, Y: 0})
	if err != nil {
		t.Fatalf("GenerateSync: %v", err)
	}
	b, err := g.GenerateSync(ctx, mathx.Coord{X: 2, Y: 1})
	if err != nil {
		t.Fatalf("GenerateSync: %v", err)
	}
	i := neighborIndex(1, 1)
	if a.Neighbors[i] != b || b.Neighbors[8-i] != a {
		t.Fatalf("diagonal neighbours not linked")
	}
	if r.Refreshes() == 0 {
		t.Fatalf("no boundary refresh after neighbour generated")
	}
	j, _ := g.Dispose(b.Coord)
	if a.Neighbors[i] != nil {
		t.Fatalf("neighbour link survived dispose")
	}
	j.Run(ctx)
}

func TestBoundaryCells(t *testing.T) {
	if got := boundaryCells(1, 1, 4, 3); len(got) != 1 || got[0] != (mathx.Coord{X: 3, Y: 2}) {
		t.Fatalf("corner=%v", got)
	}
	if got := boundaryCells(-1, 0, 4, 3); len(got) != 3 || got[2] != (mathx.Coord{X: 0, Y: 2}) {
		t.Fatalf("west column=%v", got)
	}
}

func TestGenerationFailureLeavesChunkDisposable(t *testing.T) {
	s := DefaultSettings()
	s.ChunkW, s.ChunkH = 4, 4
	dup := &pipeline.Biome{Name: "dup", Weight: 1, Groups: map[string]*pipeline.Group{"ground": {Layers: []*pipeline.Layer{
		{Name: "a", DataID: "x", Steps: []pipeline.Step{{Source: &source.HorizontalGradient{}, Op: field.Add}}},
		{Name: "b", DataID: "x", Steps: []pipeline.Step{{Source: &source.HorizontalGradient{}, Op: field.Add}}},
	}}}}
	g, err := NewGenerator(s, pipeline.NewBiomeSet(dup), nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if _, err := g.GenerateSync(context.Background(), mathx.Coord{}); err == nil {
		t.Fatalf("expected duplicate data id error")
	}
	if len(g.Pending()) != 0 {
		t.Fatalf("failed chunk still pending")
	}
	if _, err := g.Dispose(mathx.Coord{}); err != nil {
		t.Fatalf("Dispose failed chunk: %v", err)
	}
}

func TestRunnerStreamsAroundFocus(t *testing.T) {
	g, _ := testGenerator(t)
	ctx := context.Background()
	var generated int
	g.OnGenerated(func(*Chunk) { generated++ })

	run := NewRunner(g, 8)
	run.SetRadius(1)
	run.Stream(mathx.Coord{X: 1, Y: 1})
	if run.Len() != 9 {
		t.Fatalf("queued=%d want 9", run.Len())
	}
	if n := run.Tick(ctx); n != 8 {
		t.Fatalf("tick steps=%d want budget 8", n)
	}
	run.Drain(ctx)
	if generated != 9 || len(g.Chunks()) != 9 {
		t.Fatalf("generated=%d live=%d", generated, len(g.Chunks()))
	}

	// Moving three chunks east keeps nothing of the old window.
	run.Stream(mathx.Coord{X: 3*16 + 1, Y: 1})
	run.Drain(ctx)
	if len(g.Chunks()) != 9 || len(g.Disposing()) != 0 {
		t.Fatalf("live=%v disposing=%v", g.Chunks(), g.Disposing())
	}
	if _, ok := g.Chunk(mathx.Coord{X: 0, Y: 0}); ok {
		t.Fatalf("old chunk still live")
	}
	m := run.Metrics()
	if m.Live != 9 || m.Generated != 18 || m.Disposed != 9 || m.Queued != 0 {
		t.Fatalf("metrics=%+v", m)
	}
}

func TestRunnerDisposesChunkLeftWhileGenerating(t *testing.T) {
	g, _ := testGenerator(t)
	ctx := context.Background()
	run := NewRunner(g, 1)
	run.Stream(mathx.Coord{})
	run.Tick(ctx)
	if c, ok := g.Chunk(mathx.Coord{}); !ok || c.State != Processing {
		t.Fatalf("chunk not mid-generation")
	}

	// The focus moves away once and then stays put.
	run.Stream(mathx.Coord{X: 5 * 16, Y: 0})
	run.Drain(ctx)
	if _, ok := g.Chunk(mathx.Coord{}); ok {
		t.Fatalf("chunk left behind while generating is still live")
	}
	m := run.Metrics()
	if m.Live != 1 || m.Generated != 2 || m.Disposed != 1 || m.Queued != 0 {
		t.Fatalf("metrics=%+v", m)
	}
}

func TestRunnerShutdownCancelsDisposals(t *testing.T) {
	g, _ := testGenerator(t)
	run := NewRunner(g, 4)
	run.SetRadius(1)
	run.Stream(mathx.Coord{X: 1, Y: 1})
	run.Drain(context.Background())

	// Shutdown order of the server: stop the loop, close the generator,
	// then drain what is left before observers go away.
	run.Stream(mathx.Coord{X: 3*16 + 1, Y: 1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = run.Run(ctx, 1)
	}()
	cancel()
	g.Close()
	<-done
	run.Drain(context.Background())

	if len(g.Pending()) != 0 || len(g.Disposing()) != 0 || run.Len() != 0 {
		t.Fatalf("pending=%v disposing=%v queued=%d", g.Pending(), g.Disposing(), run.Len())
	}
	for _, coord := range g.Chunks() {
		if c, _ := g.Chunk(coord); c.State != Generated {
			t.Fatalf("chunk %v state=%v", coord, c.State)
		}
	}
	if m := run.Metrics(); m.Generated != 18 || m.Disposed != 0 {
		t.Fatalf("metrics=%+v", m)
	}
}

func TestSettingsCoordinates(t *testing.T) {
	s := DefaultSettings()
	s.ChunkW, s.ChunkH = 16, 8
	if c := s.WorldToChunk(mathx.Coord{X: -1, Y: 8}); c != (mathx.Coord{X: -1, Y: 1}) {
		t.Fatalf("WorldToChunk=%v", c)
	}
	if o := s.ChunkOrigin(mathx.Coord{X: -1, Y: 1}); o != (mathx.Coord{X: -16, Y: 8}) {
		t.Fatalf("ChunkOrigin=%v", o)
	}
	l, ok := s.ToLocal(mathx.Coord{X: -1, Y: 1}, mathx.Coord{X: -1, Y: 9})
	if !ok || l != (mathx.Coord{X: 15, Y: 1}) {
		t.Fatalf("ToLocal=%v %v", l, ok)
	}
	if _, ok := s.ToLocal(mathx.Coord{}, mathx.Coord{X: 16}); ok {
		t.Fatalf("ToLocal accepted a position outside the chunk")
	}
}
