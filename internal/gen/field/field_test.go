package field

import (
	"errors"
	"math"
	"testing"
)

func fromSlice(v ...float64) *Field {
	f := New(len(v), 1)
	copy(f.Data, v)
	return f
}

func TestCombineOps(t *testing.T) {
	cases := map[Op][]float64{
		Add:      {5, 7, 9},
		Subtract: {-3, -3, -3},
		Multiply: {4, 10, 18},
		Min:      {1, 2, 3},
		Max:      {4, 5, 6},
	}
	for op, want := range cases {
		a := fromSlice(1, 2, 3)
		b := fromSlice(4, 5, 6)
		if err := Combine(op, a, b); err != nil {
			t.Fatalf("%s: %v", op, err)
		}
		for i := range want {
			if a.Data[i] != want[i] {
				t.Fatalf("%s: got %v want %v", op, a.Data, want)
			}
		}
	}
}

func TestDivideByZeroPropagates(t *testing.T) {
	a := fromSlice(1, 0, -1)
	b := fromSlice(0, 0, 0)
	if err := Combine(Divide, a, b); err != nil {
		t.Fatalf("divide: %v", err)
	}
	if !math.IsInf(a.Data[0], 1) || !math.IsNaN(a.Data[1]) || !math.IsInf(a.Data[2], -1) {
		t.Fatalf("unexpected divide result: %v", a.Data)
	}
}

func TestParseOp(t *testing.T) {
	op, err := ParseOp("Multiply")
	if err != nil || op != Multiply {
		t.Fatalf("ParseOp(Multiply)=%v,%v", op, err)
	}
	if op, err := ParseOp(""); err != nil || op != Add {
		t.Fatalf("empty op should default to add, got %v,%v", op, err)
	}
	if _, err := ParseOp("xor"); !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("expected ErrUnknownOp, got %v", err)
	}
	if err := Combine(Op(42), fromSlice(1), fromSlice(1)); !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("expected ErrUnknownOp from Combine, got %v", err)
	}
}
