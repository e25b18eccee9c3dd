// Package indexdb keeps a queryable sqlite index of generated chunks and
// exported snapshots. Writes are asynchronous and dropped when the writer
// falls behind; the event log stays the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"procgen2d.ai/internal/gen/mathx"
	"procgen2d.ai/internal/persistence/snapshot"
	"procgen2d.ai/internal/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch         chan req
	commitWait time.Duration
	wg         sync.WaitGroup
	once sync.Once

	// mu orders sends on ch against Close.
	mu     sync.RWMutex
	closed bool

	dropChunk    atomic.Uint64
	dropDispose  atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqChunk reqKind = iota + 1
	reqDispose
	reqSnapshot
)

type req struct {
	kind reqKind

	chunk    ChunkRow
	coord    mathx.Coord
	snapshot snapshotRow
}

// ChunkRow is the indexed state of one generated chunk.
type ChunkRow struct {
	CX, CY      int
	Biome       string
	Rank        int
	Edges       uint8
	Digest      string
	GeneratedAt string
	DisposedAt  string
}

type snapshotRow struct {
	Path       string
	Seed       int64
	ChunkW     int
	ChunkH     int
	Chunks     int
	Palette    int
	RecordedAt string
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropChunkTotal    uint64
	DropDisposeTotal  uint64
	DropSnapshotTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 2*time.Second)
}

// openSQLite opens the index with commitWait as the longest time a write
// stays in an open batch.
func openSQLite(path string, commitWait time.Duration) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:         db,
		ch:         make(chan req, 65536),
		commitWait: commitWait,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			biome TEXT NOT NULL,
			rank INTEGER NOT NULL,
			edges INTEGER NOT NULL,
			digest TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			disposed_at TEXT,
			PRIMARY KEY (cx, cy)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_biome ON chunks(biome);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			chunk_w INTEGER NOT NULL,
			chunk_h INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			palette INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropChunkTotal:    s.dropChunk.Load(),
		DropDisposeTotal:  s.dropDispose.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

// enqueue hands r to the writer without blocking. It reports false when the
// queue is full; requests after Close are ignored.
func (s *SQLiteIndex) enqueue(r req) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

func (s *SQLiteIndex) RecordChunk(c *world.Chunk) {
	if s == nil {
		return
	}
	d := c.Digest()
	r := ChunkRow{
		CX:          c.Coord.X,
		CY:          c.Coord.Y,
		Biome:       c.Biome,
		Rank:        c.Rank,
		Edges:       uint8(c.Edges),
		Digest:      hex.EncodeToString(d[:]),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if !s.enqueue(req{kind: reqChunk, chunk: r}) {
		s.dropChunk.Add(1)
	}
}

func (s *SQLiteIndex) RecordDispose(c mathx.Coord) {
	if s == nil {
		return
	}
	if !s.enqueue(req{kind: reqDispose, coord: c}) {
		s.dropDispose.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	r := snapshotRow{
		Path:       path,
		Seed:       snap.Header.Seed,
		ChunkW:     snap.Header.ChunkW,
		ChunkH:     snap.Header.ChunkH,
		Chunks:     len(snap.Chunks),
		Palette:    len(snap.Palette),
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if !s.enqueue(req{kind: reqSnapshot, snapshot: r}) {
		s.dropSnapshot.Add(1)
	}
}

// Observe indexes every generated chunk of g and marks disposed ones.
func (s *SQLiteIndex) Observe(g *world.Generator) {
	g.OnGenerated(s.RecordChunk)
	g.OnDisposed(s.RecordDispose)
}

// LookupChunk reads a committed chunk row.
func (s *SQLiteIndex) LookupChunk(ctx context.Context, c mathx.Coord) (ChunkRow, bool, error) {
	var (
		r        ChunkRow
		disposed sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT cx,cy,biome,rank,edges,digest,generated_at,disposed_at FROM chunks WHERE cx=? AND cy=?`,
		c.X, c.Y,
	).Scan(&r.CX, &r.CY, &r.Biome, &r.Rank, &r.Edges, &r.Digest, &r.GeneratedAt, &disposed)
	if err == sql.ErrNoRows {
		return r, false, nil
	}
	if err != nil {
		return r, false, err
	}
	r.DisposedAt = disposed.String
	return r, true, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertChunk, _ := s.db.Prepare(`INSERT OR REPLACE INTO chunks(cx,cy,biome,rank,edges,digest,generated_at,disposed_at) VALUES(?,?,?,?,?,?,?,NULL)`)
	markDisposed, _ := s.db.Prepare(`UPDATE chunks SET disposed_at=? WHERE cx=? AND cy=?`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,seed,chunk_w,chunk_h,chunks,palette,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertChunk, markDisposed, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = s.commitWait
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	// Idle batches are committed by the ticker so readers see them.
	flush := time.NewTicker(commitMaxWait / 4)
	defer flush.Stop()

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			begin()
			if tx == nil {
				continue
			}
			switch r.kind {
			case reqChunk:
				c := r.chunk
				exec(insertChunk, c.CX, c.CY, c.Biome, c.Rank, int(c.Edges), c.Digest, c.GeneratedAt)
			case reqDispose:
				exec(markDisposed, time.Now().UTC().Format(time.RFC3339Nano), r.coord.X, r.coord.Y)
			case reqSnapshot:
				sn := r.snapshot
				exec(insertSnapshot, sn.Path, sn.Seed, sn.ChunkW, sn.ChunkH, sn.Chunks, sn.Palette, sn.RecordedAt)
			}
			if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
				commit()
			}
		case <-flush.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		}
	}
}
