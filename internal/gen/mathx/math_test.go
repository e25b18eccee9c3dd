package mathx

import "testing"

func TestFloorDivAndMod(t *testing.T) {
	if got := FloorDiv(-1, 16); got != -1 {
		t.Fatalf("FloorDiv(-1,16)=%d", got)
	}
	if got := FloorDiv(33, 16); got != 2 {
		t.Fatalf("FloorDiv(33,16)=%d", got)
	}
	if got := Mod(-1, 16); got != 15 {
		t.Fatalf("Mod(-1,16)=%d", got)
	}
}

func TestLayerSeedMatchesRecomputation(t *testing.T) {
	c := Coord{X: -3, Y: 7}
	chunkHash := Hash2(0, -3, 7)
	want := mix64(mix64(mix64(uint64(int64(42))) ^ 2) ^ chunkHash)
	if got := LayerSeed(42, 2, c); got != want {
		t.Fatalf("LayerSeed=%d want %d", got, want)
	}
	if LayerSeed(42, 2, c) == LayerSeed(42, 3, c) {
		t.Fatalf("layer index must change the seed")
	}
	if LayerSeed(42, 2, c) == LayerSeed(43, 2, c) {
		t.Fatalf("world seed must change the seed")
	}
	if LayerSeed(42, 2, c) == LayerSeed(42, 2, Coord{X: -3, Y: 8}) {
		t.Fatalf("chunk must change the seed")
	}
}

func TestHashSeqIsOrdered(t *testing.T) {
	if HashSeq(1, 2) == HashSeq(2, 1) {
		t.Fatalf("HashSeq should be order sensitive")
	}
	if HashSeq(1, 2) != HashSeq(1, 2) {
		t.Fatalf("HashSeq should be deterministic")
	}
}
