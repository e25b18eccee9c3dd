package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRunRespectsDependencies(t *testing.T) {
	g := New(4)
	var mu sync.Mutex
	var order []string
	rec := func(name string) Func {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	a := g.Add("a", rec("a"))
	b := g.Add("b", rec("b"), a)
	c := g.Add("c", rec("c"), b)
	g.Join("join", c, Handle{})

	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("unexpected order: %v", order)
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("c should be done")
	}
}

func TestRunParallelBranches(t *testing.T) {
	g := New(8)
	var n atomic.Int32
	var hs []Handle
	for i := 0; i < 50; i++ {
		hs = append(hs, g.Add("leaf", func(context.Context) error {
			n.Add(1)
			return nil
		}))
	}
	g.Join("all", hs...)
	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n.Load() != 50 {
		t.Fatalf("expected 50 runs, got %d", n.Load())
	}
}

func TestRunStopsOnError(t *testing.T) {
	g := New(1)
	boom := errors.New("boom")
	a := g.Add("a", func(context.Context) error { return boom })
	ran := false
	g.Add("b", func(context.Context) error {
		ran = true
		return nil
	}, a)
	err := g.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ran {
		t.Fatalf("dependent node should not run after failure")
	}
	if err := g.Run(context.Background()); err == nil {
		t.Fatalf("second Run should fail")
	}
}

func TestZeroHandleIsDone(t *testing.T) {
	var h Handle
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("zero handle wait: %v", err)
	}
	if h.Valid() {
		t.Fatalf("zero handle should not be valid")
	}
}

func TestRunWaitsOnOtherGraph(t *testing.T) {
	first := New(1)
	var got []string
	h := first.Add("publish", func(context.Context) error {
		got = append(got, "publish")
		return nil
	})
	if err := first.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	second := New(2)
	second.Add("consume", func(context.Context) error {
		got = append(got, "consume")
		return nil
	}, h)
	if err := second.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(got) != 2 || got[1] != "consume" {
		t.Fatalf("order=%v", got)
	}
}
