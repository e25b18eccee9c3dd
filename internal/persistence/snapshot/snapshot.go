// Package snapshot exports generated chunks to a zstd-compressed file: one
// JSON header line followed by a gob body.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"procgen2d.ai/internal/gen/mathx"
	"procgen2d.ai/internal/gen/pipeline"
	"procgen2d.ai/internal/world"
)

const Version = 1

type Header struct {
	Version int   `json:"version"`
	Seed    int64 `json:"seed"`
	ChunkW  int   `json:"chunk_w"`
	ChunkH  int   `json:"chunk_h"`
	Chunks  int   `json:"chunks"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Policy        string   `json:"policy"`
	BlendDistance int      `json:"blend_distance"`
	Outputs       []string `json:"outputs"`
	// Palette maps tile indices to ids; index 0 is the empty tile.
	Palette []string  `json:"palette"`
	Chunks  []ChunkV1 `json:"chunks"`
}

type ChunkV1 struct {
	CX     int    `json:"cx"`
	CY     int    `json:"cy"`
	Biome  string `json:"biome"`
	Rank   int    `json:"rank"`
	Edges  uint8  `json:"edges"`
	Digest [32]byte
	// Tiles holds one palette-indexed row-major layer per output.
	Tiles [][]uint16 `json:"tiles"`
}

// Build captures chunks in the given order.
func Build(s world.Settings, chunks []*world.Chunk) SnapshotV1 {
	snap := SnapshotV1{
		Header: Header{
			Version: Version,
			Seed:    s.Seed,
			ChunkW:  s.ChunkW,
			ChunkH:  s.ChunkH,
			Chunks:  len(chunks),
		},
		Policy:        s.Policy.String(),
		BlendDistance: s.BlendDistance,
		Outputs:       append([]string(nil), s.Outputs...),
		Palette:       []string{""},
	}
	index := map[string]uint16{"": 0}
	for _, c := range chunks {
		cv := ChunkV1{
			CX:     c.Coord.X,
			CY:     c.Coord.Y,
			Biome:  c.Biome,
			Rank:   c.Rank,
			Edges:  uint8(c.Edges),
			Digest: c.Digest(),
			Tiles:  make([][]uint16, len(s.Outputs)),
		}
		for i, out := range s.Outputs {
			buf := c.Outputs[out]
			layer := make([]uint16, len(buf))
			for j, ch := range buf {
				id, ok := index[ch.Tile]
				if !ok {
					id = uint16(len(snap.Palette))
					index[ch.Tile] = id
					snap.Palette = append(snap.Palette, ch.Tile)
				}
				layer[j] = id
			}
			cv.Tiles[i] = layer
		}
		snap.Chunks = append(snap.Chunks, cv)
	}
	return snap
}

// Changes expands one output of chunk i back into tile records.
func (s SnapshotV1) Changes(i int, output string) ([]pipeline.Change, error) {
	if i < 0 || i >= len(s.Chunks) {
		return nil, fmt.Errorf("chunk index %d out of range", i)
	}
	oi := -1
	for j, o := range s.Outputs {
		if o == output {
			oi = j
		}
	}
	if oi < 0 {
		return nil, fmt.Errorf("unknown output %q", output)
	}
	layer := s.Chunks[i].Tiles[oi]
	out := make([]pipeline.Change, len(layer))
	for j, id := range layer {
		if int(id) >= len(s.Palette) {
			return nil, fmt.Errorf("tile index %d outside palette", id)
		}
		out[j] = pipeline.Change{Pos: mathx.Coord{X: j % s.Header.ChunkW, Y: j / s.Header.ChunkW}, Tile: s.Palette[id]}
	}
	return out, nil
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	snap.Header.Chunks = len(snap.Chunks)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
