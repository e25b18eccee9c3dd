package source

import "procgen2d.ai/internal/gen/field"

// Range remaps or masks the running field in place.
// With Min == Max the remap divides by zero; the result is not guarded.
type Range struct {
	Min, Max float64
	Mask     bool
}

func (s *Range) Kind() string { return "range" }

func (s *Range) Transform(_ Context, data *field.Field) error {
	for i, v := range data.Data {
		data.Data[i] = remap(v, s.Min, s.Max, s.Mask)
	}
	return nil
}

func remap(v, lo, hi float64, mask bool) float64 {
	if mask {
		if v >= lo && v <= hi {
			return 1
		}
		return 0
	}
	d := v - lo
	if d < 0 {
		d = 0
	}
	return field.Saturate(d / (hi - lo))
}
