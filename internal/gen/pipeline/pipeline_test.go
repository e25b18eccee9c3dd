package pipeline

import (
	"context"
	"errors"
	"testing"

	"procgen2d.ai/internal/gen/field"
	"procgen2d.ai/internal/gen/mathx"
	"procgen2d.ai/internal/gen/shared"
	"procgen2d.ai/internal/gen/source"
)

func changeBuffer(w, h int) []Change {
	out := make([]Change, w*h)
	for i := range out {
		out[i].Pos = mathx.Coord{X: i % w, Y: i / w}
	}
	return out
}

func gradientLayer(name string, mult float64) *Layer {
	return &Layer{
		Name:  name,
		Steps: []Step{{Source: &source.HorizontalGradient{Multiplier: mult}, Op: field.Add}},
	}
}

func TestGroupSingleGradientLayer(t *testing.T) {
	g := &Group{Name: "ground", Layers: []*Layer{gradientLayer("height", 4)}}
	res, err := g.Run(context.Background(), Context{WorldSeed: 1, W: 4, H: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	f, ok := res.Field("height")
	if !ok {
		t.Fatalf("missing layer result")
	}
	want := []float64{0, 1, 2, 3}
	for i := range want {
		if f.Data[i] != want[i] {
			t.Fatalf("field=%v want %v", f.Data, want)
		}
	}
}

func TestTileThresholdPlacement(t *testing.T) {
	l := gradientLayer("tiles", 4)
	l.Steps = append(l.Steps, Step{Source: &source.Range{Min: 0, Max: 4}})
	l.Post = &TileStep{Tiles: []TileEntry{{ID: "rock", Weight: 1}}, Threshold: 0.5}
	g := &Group{Name: "ground", Layers: []*Layer{l}}

	changes := changeBuffer(4, 1)
	if _, err := g.Run(context.Background(), Context{WorldSeed: 1, W: 4, H: 1, Changes: changes}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, c := range changes {
		placed := c.Tile == "rock"
		if placed != (i == 2 || i == 3) {
			t.Fatalf("unexpected placement: %+v", changes)
		}
	}
}

func TestChainCombinesInDeclaredOrder(t *testing.T) {
	// ((0 + x) - x/2) * 2x: reordering the subtract changes the result.
	l := &Layer{Name: "chain", Steps: []Step{
		{Source: &source.HorizontalGradient{Multiplier: 4}, Op: field.Add},
		{Source: &source.HorizontalGradient{Multiplier: 2}, Op: field.Subtract},
		{Source: &source.HorizontalGradient{Multiplier: 8}, Op: field.Multiply},
	}}
	g := &Group{Name: "g", Layers: []*Layer{l}}
	res, err := g.Run(context.Background(), Context{W: 4, H: 1, Workers: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	f, _ := res.Field("chain")
	// x=2: ((0+2)-1)*4 = 4, x=3: 1.5*6 = 9
	if f.Data[2] != 4 || f.Data[3] != (3-1.5)*6 {
		t.Fatalf("unexpected chain result %v", f.Data)
	}
}

func TestSharedDataAcrossLayers(t *testing.T) {
	producer := gradientLayer("height", 4)
	producer.DataID = "height"
	consumer := &Layer{Name: "water", Steps: []Step{
		{Source: &source.SharedData{DataID: "height", Min: 0, Max: 4}, Op: field.Add},
	}}
	reg := shared.NewRegistry()
	g := &Group{Name: "g", Layers: []*Layer{producer, consumer}}
	res, err := g.Run(context.Background(), Context{W: 4, H: 1, Shared: reg})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	f, _ := res.Field("water")
	want := []float64{0, 0.25, 0.5, 0.75}
	for i := range want {
		if f.Data[i] != want[i] {
			t.Fatalf("water=%v want %v", f.Data, want)
		}
	}
	if !reg.Contains("height") {
		t.Fatalf("published field should stay in the registry until cleared")
	}
}

func TestSharedDataConsumerBeforeProducerIsDegraded(t *testing.T) {
	consumer := &Layer{Name: "water", Steps: []Step{
		{Source: &source.SharedData{DataID: "height", Max: 1}, Op: field.Add},
	}}
	producer := gradientLayer("height", 4)
	producer.DataID = "height"
	g := &Group{Name: "g", Layers: []*Layer{consumer, producer}}
	res, err := g.Run(context.Background(), Context{W: 4, H: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	f, _ := res.Field("water")
	for _, v := range f.Data {
		if v != 0 {
			t.Fatalf("expected zero field, got %v", f.Data)
		}
	}
}

func TestDuplicateDataIDIsFatal(t *testing.T) {
	a := gradientLayer("a", 1)
	a.DataID = "x"
	b := gradientLayer("b", 1)
	b.DataID = "x"
	g := &Group{Name: "g", Layers: []*Layer{a, b}}
	_, err := g.Run(context.Background(), Context{W: 2, H: 2})
	if !errors.Is(err, shared.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestTileStepRandomTilePerChunk(t *testing.T) {
	s := &TileStep{
		Tiles:              []TileEntry{{ID: "a", Weight: 1}, {ID: "b", Weight: 1}},
		Threshold:          0,
		RandomTilePerChunk: true,
	}
	f := field.New(8, 8)
	changes := changeBuffer(8, 8)
	if err := s.Apply(99, Context{W: 8, H: 8, Changes: changes}, f); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	first := changes[0].Tile
	for _, c := range changes {
		if c.Tile != first {
			t.Fatalf("expected one tile for the whole chunk, got %q and %q", first, c.Tile)
		}
	}

	again := changeBuffer(8, 8)
	_ = s.Apply(99, Context{W: 8, H: 8, Changes: again}, f)
	if again[0].Tile != first {
		t.Fatalf("tile choice should be seeded")
	}
}

func TestTileStepUseAsWeight(t *testing.T) {
	s := &TileStep{Tiles: []TileEntry{{ID: "a", Weight: 1}}, Threshold: 0.5, UseAsWeight: true}
	f := field.New(16, 16)
	for i := range f.Data {
		if i%2 == 0 {
			f.Data[i] = 1 // always placed
		} else {
			f.Data[i] = 0.5 // never placed: probability 0
		}
	}
	changes := changeBuffer(16, 16)
	_ = s.Apply(5, Context{W: 16, H: 16, Changes: changes}, f)
	for i, c := range changes {
		if (c.Tile != "") != (i%2 == 0) {
			t.Fatalf("cell %d placement mismatch: %q", i, c.Tile)
		}
	}
}

func TestBiomeSelectionIsPure(t *testing.T) {
	set := NewBiomeSet(
		&Biome{Name: "plains", Weight: 1},
		&Biome{Name: "desert", Weight: 2},
		&Biome{Name: "forest", Weight: 1},
	)
	seen := map[string]bool{}
	for x := -20; x < 20; x++ {
		c := mathx.Coord{X: x, Y: x * 3}
		b1, r1, err := set.Select(c, 1234)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		b2, r2, _ := set.Select(c, 1234)
		if b1 != b2 || r1 != r2 {
			t.Fatalf("Select not deterministic for %v", c)
		}
		if set.Biomes()[r1] != b1 {
			t.Fatalf("rank should be the registration index")
		}
		seen[b1.Name] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected several biomes over 40 chunks, got %v", seen)
	}
}

func TestBiomeSelectionRejectsBadWeights(t *testing.T) {
	set := NewBiomeSet(&Biome{Name: "void", Weight: 0})
	if _, _, err := set.Select(mathx.Coord{}, 1); !errors.Is(err, ErrInvalidWeights) {
		t.Fatalf("expected ErrInvalidWeights, got %v", err)
	}
}
