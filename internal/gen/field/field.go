package field

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Field is a dense row-major scalar buffer (index y*W+x).
type Field struct {
	W, H int
	Data []float64
}

func New(w, h int) *Field {
	return &Field{W: w, H: h, Data: make([]float64, w*h)}
}

func (f *Field) Index(x, y int) int { return y*f.W + x }

func (f *Field) At(x, y int) float64 { return f.Data[f.Index(x, y)] }

func (f *Field) Set(x, y int, v float64) { f.Data[f.Index(x, y)] = v }

func (f *Field) Len() int { return len(f.Data) }

func (f *Field) Clone() *Field {
	out := &Field{W: f.W, H: f.H, Data: make([]float64, len(f.Data))}
	copy(out.Data, f.Data)
	return out
}

// Op is the cell-wise operation used to fold a source into a layer.
type Op uint8

const (
	Add Op = iota
	Subtract
	Multiply
	Divide
	Min
	Max
)

var ErrUnknownOp = errors.New("unknown combine operation")

var opNames = [...]string{"add", "subtract", "multiply", "divide", "min", "max"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// ParseOp maps a config tag to an Op. An empty tag means Add.
func ParseOp(s string) (Op, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Add, nil
	}
	for i, n := range opNames {
		if n == s {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOp, s)
}

// Combine folds rhs into lhs. Divide has no zero guard: x/0 yields ±Inf or NaN.
func Combine(op Op, lhs, rhs *Field) error {
	if lhs.Len() != rhs.Len() {
		return fmt.Errorf("combine %s: size mismatch %d != %d", op, lhs.Len(), rhs.Len())
	}
	l, r := lhs.Data, rhs.Data
	switch op {
	case Add:
		for i := range l {
			l[i] += r[i]
		}
	case Subtract:
		for i := range l {
			l[i] -= r[i]
		}
	case Multiply:
		for i := range l {
			l[i] *= r[i]
		}
	case Divide:
		for i := range l {
			l[i] /= r[i]
		}
	case Min:
		for i := range l {
			l[i] = math.Min(l[i], r[i])
		}
	case Max:
		for i := range l {
			l[i] = math.Max(l[i], r[i])
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOp, op)
	}
	return nil
}

// Saturate clamps to [0,1]. NaN stays NaN.
func Saturate(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
