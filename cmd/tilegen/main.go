package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"procgen2d.ai/internal/config"
	"procgen2d.ai/internal/gen/mathx"
	"procgen2d.ai/internal/persistence/indexdb"
	persistlog "procgen2d.ai/internal/persistence/log"
	"procgen2d.ai/internal/persistence/snapshot"
	"procgen2d.ai/internal/world"
)

func main() {
	var (
		worldPath = flag.String("world", "./configs/world.yaml", "world config path (empty for defaults)")
		outPath   = flag.String("out", "./data/region.snap.zst", "snapshot output path (empty to skip)")
		dbPath    = flag.String("db", "", "sqlite chunk index path (optional)")
		eventsDir = flag.String("events", "", "directory for the chunk event log (optional)")
		x0        = flag.Int("x0", -1, "first chunk x")
		y0        = flag.Int("y0", -1, "first chunk y")
		x1        = flag.Int("x1", 1, "last chunk x")
		y1        = flag.Int("y1", 1, "last chunk y")
		seed      = flag.Int64("seed", 0, "override the world seed (0 keeps the config value)")
		budget    = flag.Int("steps_per_tick", 0, "job steps per tick (<=0: one per job)")
		ascii     = flag.String("ascii", "", "print this output as a character map")
		quiet     = flag.Bool("quiet", false, "suppress pipeline warnings")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[tilegen] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*worldPath)
	if err != nil {
		logger.Fatalf("load world config: %v", err)
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	biomes, settings, err := config.Build(cfg)
	if err != nil {
		logger.Fatalf("build world: %v", err)
	}
	if *x1 < *x0 || *y1 < *y0 {
		logger.Fatalf("empty region [%d,%d]x[%d,%d]", *x0, *x1, *y0, *y1)
	}

	genLog := log.New(os.Stderr, "[world] ", log.LstdFlags|log.Lmicroseconds)
	if *quiet {
		genLog = log.New(io.Discard, "", 0)
	}
	mem := world.NewMemoryRenderer(settings.ChunkW, settings.ChunkH)
	gen, err := world.NewGenerator(settings, biomes, mem, genLog)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	defer gen.Close()

	if *dbPath != "" {
		idx, err := indexdb.OpenSQLite(*dbPath)
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		idx.Observe(gen)
		if *outPath != "" {
			defer func() { idx.RecordSnapshot(*outPath, mustRead(logger, *outPath)) }()
		}
	}
	if *eventsDir != "" {
		events := persistlog.NewEventLogger(*eventsDir, logger)
		defer events.Close()
		events.Observe(gen)
	}

	ctx := context.Background()
	run := world.NewRunner(gen, *budget)
	for y := *y0; y <= *y1; y++ {
		for x := *x0; x <= *x1; x++ {
			j, err := gen.Generate(mathx.Coord{X: x, Y: y})
			if err != nil {
				logger.Fatalf("generate: %v", err)
			}
			run.Enqueue(j)
		}
	}
	ticks := 0
	for run.Len() > 0 {
		run.Tick(ctx)
		ticks++
	}

	var chunks []*world.Chunk
	for _, c := range gen.Chunks() {
		ch, _ := gen.Chunk(c)
		if ch.State != world.Generated {
			logger.Printf("chunk %v not generated (%s)", c, ch.State)
			continue
		}
		chunks = append(chunks, ch)
	}
	logger.Printf("generated %d chunks in %d ticks", len(chunks), ticks)
	for _, c := range chunks {
		d := c.Digest()
		logger.Printf("chunk %v biome=%s rank=%d edges=%08b digest=%s", c.Coord, c.Biome, c.Rank, uint8(c.Edges), hex.EncodeToString(d[:8]))
	}

	if *outPath != "" {
		if err := snapshot.WriteSnapshot(*outPath, snapshot.Build(settings, chunks)); err != nil {
			logger.Fatalf("write snapshot: %v", err)
		}
		logger.Printf("snapshot written to %s", filepath.Clean(*outPath))
	}

	if *ascii != "" {
		printMap(os.Stdout, mem, settings, *ascii, *x0, *y0, *x1, *y1)
	}
}

func mustRead(logger *log.Logger, path string) snapshot.SnapshotV1 {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		logger.Printf("read snapshot: %v", err)
	}
	return snap
}

// printMap draws one character per tile, north up.
func printMap(w io.Writer, mem *world.MemoryRenderer, s world.Settings, output string, x0, y0, x1, y1 int) {
	glyphs := map[string]byte{"": '.'}
	next := byte('a')
	var sb strings.Builder
	for y := (y1+1)*s.ChunkH - 1; y >= y0*s.ChunkH; y-- {
		for x := x0 * s.ChunkW; x < (x1+1)*s.ChunkW; x++ {
			t := mem.TileAt(output, x, y)
			g, ok := glyphs[t]
			if !ok {
				g = next
				glyphs[t] = g
				if next < 'z' {
					next++
				}
			}
			sb.WriteByte(g)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprint(w, sb.String())
	for t, g := range glyphs {
		if t != "" {
			fmt.Fprintf(w, "%c = %s\n", g, t)
		}
	}
}
