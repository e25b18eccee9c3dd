// Package log writes the chunk lifecycle event log: one zstd-compressed JSON
// line per event, in a new file every UTC hour.
package log

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"procgen2d.ai/internal/gen/mathx"
	"procgen2d.ai/internal/world"
)

const (
	EventGenerated = "GENERATED"
	EventDisposed  = "DISPOSED"
)

var ErrClosed = errors.New("event log closed")

// ChunkEvent is one lifecycle entry of the chunk event log.
type ChunkEvent struct {
	Time   string `json:"time"`
	Type   string `json:"type"`
	CX     int    `json:"cx"`
	CY     int    `json:"cy"`
	Biome  string `json:"biome,omitempty"`
	Rank   int    `json:"rank,omitempty"`
	Edges  uint8  `json:"edges,omitempty"`
	Digest string `json:"digest,omitempty"`
}

// EventLogger appends chunk events to <worldDir>/events/chunks-<hour>.jsonl.zst.
// Every event is flushed through the encoder so a crash loses at most the
// current zstd frame.
type EventLogger struct {
	dir string
	now func() time.Time
	log *stdlog.Logger

	mu      sync.Mutex
	closed  bool
	hour    string
	f       *os.File
	zw      *zstd.Encoder
	bw      *bufio.Writer
	written uint64
}

func NewEventLogger(worldDir string, logger *stdlog.Logger) *EventLogger {
	if logger == nil {
		logger = stdlog.Default()
	}
	return &EventLogger{
		dir: filepath.Join(worldDir, "events"),
		now: time.Now,
		log: logger,
	}
}

// Path is the file holding events of the UTC hour containing t.
func (l *EventLogger) Path(t time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("chunks-%s.jsonl.zst", t.UTC().Format("2006-01-02-15")))
}

// Written counts events accepted since the logger was created.
func (l *EventLogger) Written() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

func (l *EventLogger) WriteEvent(ev ChunkEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	now := l.now().UTC()
	if ev.Time == "" {
		ev.Time = now.Format(time.RFC3339Nano)
	}
	if hour := now.Format("2006-01-02-15"); hour != l.hour {
		if err := l.rotateLocked(now); err != nil {
			return err
		}
		l.hour = hour
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := l.bw.Write(b); err != nil {
		return err
	}
	if err := l.bw.Flush(); err != nil {
		return err
	}
	l.written++
	return nil
}

// Close finishes the current file. Later writes return ErrClosed.
func (l *EventLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.closeFileLocked()
}

func (l *EventLogger) rotateLocked(now time.Time) error {
	if err := l.closeFileLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.Path(now), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f, l.zw = f, zw
	l.bw = bufio.NewWriterSize(zw, 64*1024)
	return nil
}

func (l *EventLogger) closeFileLocked() error {
	if l.f == nil {
		return nil
	}
	var err error
	if ferr := l.bw.Flush(); ferr != nil {
		err = ferr
	}
	if zerr := l.zw.Close(); zerr != nil && err == nil {
		err = zerr
	}
	if cerr := l.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	l.f, l.zw, l.bw = nil, nil, nil
	l.hour = ""
	return err
}

func (l *EventLogger) write(ev ChunkEvent) {
	if err := l.WriteEvent(ev); err != nil && !errors.Is(err, ErrClosed) {
		l.log.Printf("event log: %v", err)
	}
}

// Observe records every generated and disposed chunk of g.
func (l *EventLogger) Observe(g *world.Generator) {
	g.OnGenerated(func(c *world.Chunk) {
		d := c.Digest()
		l.write(ChunkEvent{
			Type:   EventGenerated,
			CX:     c.Coord.X,
			CY:     c.Coord.Y,
			Biome:  c.Biome,
			Rank:   c.Rank,
			Edges:  uint8(c.Edges),
			Digest: hex.EncodeToString(d[:]),
		})
	})
	g.OnDisposed(func(c mathx.Coord) {
		l.write(ChunkEvent{Type: EventDisposed, CX: c.X, CY: c.Y})
	})
}
