// Package task runs a one-shot graph of dependent work items. Nodes start as
// soon as every dependency has completed; independent branches run in parallel
// on a bounded number of goroutines.
package task

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

type Func func(ctx context.Context) error

type node struct {
	g          *Graph
	id         int
	name       string
	fn         Func
	deps       []*node
	dependents []*node
	// external are nodes of other graphs; they are waited on, not scheduled.
	external []*node
	done     chan struct{}
}

// Handle identifies a scheduled node. The zero Handle is a completed no-op and
// may be passed wherever a dependency is expected.
type Handle struct{ n *node }

var closedCh = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Done is closed once the node has run successfully.
func (h Handle) Done() <-chan struct{} {
	if h.n == nil {
		return closedCh
	}
	return h.n.done
}

func (h Handle) Valid() bool { return h.n != nil }

func (h Handle) Name() string {
	if h.n == nil {
		return ""
	}
	return h.n.name
}

// Wait blocks until the node completes or ctx ends.
func (h Handle) Wait(ctx context.Context) error {
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Graph struct {
	workers int
	nodes   []*node
	ran     bool
}

// New returns an empty graph. workers <= 0 means GOMAXPROCS.
func New(workers int) *Graph {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Graph{workers: workers}
}

func (g *Graph) Len() int { return len(g.nodes) }

// Add schedules fn after all deps. Dependencies from another graph are
// waited on by the worker that runs fn.
func (g *Graph) Add(name string, fn Func, deps ...Handle) Handle {
	n := &node{
		g:    g,
		id:   len(g.nodes),
		name: name,
		fn:   fn,
		done: make(chan struct{}),
	}
	for _, d := range deps {
		if d.n == nil {
			continue
		}
		if d.n.g != g {
			n.external = append(n.external, d.n)
			continue
		}
		n.deps = append(n.deps, d.n)
		d.n.dependents = append(d.n.dependents, n)
	}
	g.nodes = append(g.nodes, n)
	return Handle{n: n}
}

// Join returns a node that completes when every handle has completed.
func (g *Graph) Join(name string, deps ...Handle) Handle {
	return g.Add(name, func(context.Context) error { return nil }, deps...)
}

// Run executes the graph once. The first node error cancels the remaining
// work and is returned.
func (g *Graph) Run(ctx context.Context) error {
	if g.ran {
		return fmt.Errorf("task graph already ran")
	}
	g.ran = true
	if len(g.nodes) == 0 {
		return nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)

	pending := make([]int, len(g.nodes))
	var ready []*node
	for _, n := range g.nodes {
		pending[n.id] = len(n.deps)
		if pending[n.id] == 0 {
			ready = append(ready, n)
		}
	}
	if len(ready) == 0 {
		return fmt.Errorf("task graph has no root node")
	}

	// Buffered to the node count so workers never block on completion.
	finished := make(chan *node, len(g.nodes))
	remaining := len(g.nodes)
	for remaining > 0 {
		for _, n := range ready {
			n := n
			eg.Go(func() error {
				for _, e := range n.external {
					select {
					case <-e.done:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				if err := n.fn(ctx); err != nil {
					return fmt.Errorf("%s: %w", n.name, err)
				}
				close(n.done)
				finished <- n
				return nil
			})
		}
		ready = ready[:0]

		select {
		case n := <-finished:
			remaining--
			for _, d := range n.dependents {
				pending[d.id]--
				if pending[d.id] == 0 {
					ready = append(ready, d)
				}
			}
		case <-ctx.Done():
			if err := eg.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		}
	}
	return eg.Wait()
}
