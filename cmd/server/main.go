package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"procgen2d.ai/internal/config"
	"procgen2d.ai/internal/gen/mathx"
	"procgen2d.ai/internal/persistence/indexdb"
	persistlog "procgen2d.ai/internal/persistence/log"
	"procgen2d.ai/internal/transport/ws"
	"procgen2d.ai/internal/world"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldPath  = flag.String("world", "./configs/world.yaml", "world config path (empty for defaults)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite chunk index")
		radius     = flag.Int("radius", 2, "streaming radius in chunks around the focus")
		tickHz     = flag.Int("tick_hz", 30, "host loop tick rate")
		stepBudget = flag.Int("steps_per_tick", 64, "job steps per tick (<=0: one per job)")
		focusX     = flag.Int("focus_x", 0, "initial focus x (world tiles)")
		focusY     = flag.Int("focus_y", 0, "initial focus y (world tiles)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*worldPath)
	if err != nil {
		logger.Fatalf("load world config: %v", err)
	}
	biomes, settings, err := config.Build(cfg)
	if err != nil {
		logger.Fatalf("build world: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", fmt.Sprintf("seed_%d", settings.Seed))
	_ = os.MkdirAll(worldDir, 0o755)

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "chunks.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Client FOCUS messages are relayed to the runner below.
	focus := make(chan mathx.Coord, 16)
	stream := ws.NewServer(settings, focus, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))

	gen, err := world.NewGenerator(settings, biomes, stream, log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	defer gen.Close()

	events := persistlog.NewEventLogger(worldDir, logger)
	defer events.Close()
	events.Observe(gen)
	if idx != nil {
		idx.Observe(gen)
	}

	runner := world.NewRunner(gen, *stepBudget)
	runner.SetRadius(*radius)
	runner.Focus() <- mathx.Coord{X: *focusX, Y: *focusY}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-focus:
				select {
				case runner.Focus() <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := runner.Run(ctx, *tickHz); err != nil && err != context.Canceled {
			logger.Printf("runner stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := runner.Metrics()

		// Minimal Prometheus exposition format.
		gauge(rw, "procgen_chunks_live", "Chunks in the live map.", m.Live)
		gauge(rw, "procgen_chunks_pending", "Chunks whose generation has not finished.", m.Pending)
		gauge(rw, "procgen_chunks_disposing", "Chunks being cleared.", m.Disposing)
		gauge(rw, "procgen_jobs_queued", "Jobs waiting in the host loop.", m.Queued)
		counter(rw, "procgen_chunks_generated_total", "Chunks generated since start.", m.Generated)
		counter(rw, "procgen_chunks_disposed_total", "Chunks disposed since start.", m.Disposed)
		gauge(rw, "procgen_ws_clients", "Connected stream clients.", stream.Clients())
		counter(rw, "procgen_ws_dropped_total", "Messages dropped for slow clients.", stream.Dropped())
		if idx != nil {
			st := idx.Stats()
			gauge(rw, "procgen_index_queue_depth", "Pending index writes.", st.QueueDepth)
			counter(rw, "procgen_index_dropped_total", "Index writes dropped.", st.DropChunkTotal+st.DropDisposeTotal+st.DropSnapshotTotal)
		}
	})
	mux.Handle("/v1/stream", stream.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s (seed=%d chunk=%dx%d blend=%s/%d)", *addr, settings.Seed, settings.ChunkW, settings.ChunkH, settings.Policy, settings.BlendDistance)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("listen: %v", err)
	}

	// Stop the loop before the deferred closes of its observers. Queued
	// disposals are cancelled; started generations finish and are recorded.
	cancel()
	gen.Close()
	<-runnerDone
	runner.Drain(context.Background())
	m := runner.Metrics()
	logger.Printf("stopped (live=%d generated=%d disposed=%d)", m.Live, m.Generated, m.Disposed)
}

func gauge[T int | uint64](rw http.ResponseWriter, name, help string, v T) {
	fmt.Fprintf(rw, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", name, help, name, name, v)
}

func counter(rw http.ResponseWriter, name, help string, v uint64) {
	fmt.Fprintf(rw, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
