package world

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"procgen2d.ai/internal/gen/mathx"
)

// Runner is the host tick loop. Every tick it advances queued jobs by up to
// Budget steps in FIFO order, so one slow chunk never starves disposal.
type Runner struct {
	gen    *Generator
	budget int
	queue  []*Job

	focus  chan mathx.Coord
	radius int
	center *mathx.Coord
	// stale holds chunks outside the window that were still generating when
	// the focus moved; Tick disposes them once they finish.
	stale map[mathx.Coord]bool

	generated atomic.Uint64
	disposed  atomic.Uint64
	metrics   atomic.Value // Metrics

	stop chan struct{}
}

// Metrics is a copy of the loop state taken after every tick. Safe to read
// from any goroutine.
type Metrics struct {
	Live      int
	Pending   int
	Disposing int
	Queued    int
	Generated uint64
	Disposed  uint64
}

// NewRunner creates a loop over gen. budget <= 0 runs one step per job per tick.
func NewRunner(gen *Generator, budget int) *Runner {
	r := &Runner{
		gen:    gen,
		budget: budget,
		focus:  make(chan mathx.Coord, 16),
		stale:  map[mathx.Coord]bool{},
		stop:   make(chan struct{}),
	}
	gen.OnGenerated(func(*Chunk) { r.generated.Add(1) })
	gen.OnDisposed(func(mathx.Coord) { r.disposed.Add(1) })
	r.metrics.Store(Metrics{})
	return r
}

func (r *Runner) Metrics() Metrics { return r.metrics.Load().(Metrics) }

func (r *Runner) publishMetrics() {
	r.metrics.Store(Metrics{
		Live:      len(r.gen.chunks),
		Pending:   len(r.gen.pending),
		Disposing: len(r.gen.disposing),
		Queued:    len(r.queue),
		Generated: r.generated.Load(),
		Disposed:  r.disposed.Load(),
	})
}

func (r *Runner) Generator() *Generator { return r.gen }

// Focus receives world positions to stream around; the latest one wins.
func (r *Runner) Focus() chan<- mathx.Coord { return r.focus }

// SetRadius sets the streaming radius in chunks around the focus.
func (r *Runner) SetRadius(n int) { r.radius = n }

func (r *Runner) Enqueue(j *Job) {
	if j != nil && !j.Done() {
		r.queue = append(r.queue, j)
	}
}

func (r *Runner) Len() int { return len(r.queue) }

// Tick runs one frame of queued work and reports how many steps ran.
func (r *Runner) Tick(ctx context.Context) int {
	budget := r.budget
	if budget <= 0 {
		budget = len(r.queue)
	}
	steps := 0
	for steps < budget && len(r.queue) > 0 {
		progressed := false
		keep := r.queue[:0]
		for _, j := range r.queue {
			if steps < budget && !j.Done() {
				j.Step(ctx)
				steps++
				progressed = true
			}
			if j.Done() {
				if err := j.Err(); err != nil && !errors.Is(err, ErrDisposeCancelled) {
					r.gen.log.Printf("job %v: %v", j.Chunk().Coord, err)
				}
				continue
			}
			keep = append(keep, j)
		}
		r.queue = keep
		if !progressed || r.budget <= 0 {
			break
		}
	}
	r.retryStale()
	r.publishMetrics()
	return steps
}

// retryStale disposes out-of-window chunks whose generation has ended.
func (r *Runner) retryStale() {
	for _, coord := range sortedKeys(r.stale) {
		if _, ok := r.gen.Chunk(coord); !ok {
			delete(r.stale, coord)
			continue
		}
		j, err := r.gen.Dispose(coord)
		if errors.Is(err, ErrChunkGenerating) {
			continue
		}
		delete(r.stale, coord)
		if err != nil {
			r.gen.log.Printf("stream: %v", err)
			continue
		}
		r.Enqueue(j)
	}
}

// Drain ticks until the queue is empty.
func (r *Runner) Drain(ctx context.Context) {
	for len(r.queue) > 0 {
		r.Tick(ctx)
	}
}

// Stream generates every chunk within radius of the chunk holding pos and
// disposes live chunks outside it.
func (r *Runner) Stream(pos mathx.Coord) {
	s := r.gen.settings
	c := s.WorldToChunk(pos)
	if r.center != nil && *r.center == c {
		return
	}
	r.center = &c

	want := map[mathx.Coord]bool{}
	for dy := -r.radius; dy <= r.radius; dy++ {
		for dx := -r.radius; dx <= r.radius; dx++ {
			want[c.Add(mathx.Coord{X: dx, Y: dy})] = true
		}
	}
	for coord := range r.stale {
		if want[coord] {
			delete(r.stale, coord)
		}
	}
	for _, coord := range r.gen.Chunks() {
		if want[coord] {
			continue
		}
		j, err := r.gen.Dispose(coord)
		if errors.Is(err, ErrChunkGenerating) {
			r.stale[coord] = true
			continue
		}
		if err != nil {
			r.gen.log.Printf("stream: %v", err)
			continue
		}
		r.Enqueue(j)
	}
	for _, coord := range sortedKeys(want) {
		if _, ok := r.gen.Chunk(coord); ok {
			continue
		}
		j, err := r.gen.Generate(coord)
		if err != nil {
			r.gen.log.Printf("stream: %v", err)
			continue
		}
		r.Enqueue(j)
	}
}

// Run ticks at hz until ctx is done or Stop is called.
func (r *Runner) Run(ctx context.Context, hz int) error {
	if hz <= 0 {
		hz = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case pos := <-r.focus:
			r.Stream(pos)
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

func (r *Runner) Stop() { close(r.stop) }
