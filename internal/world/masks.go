package world

import (
	"math"

	"procgen2d.ai/internal/gen/noise"
)

// Masks holds one blend weight per cell for every direction of the policy;
// directions outside the policy stay nil. Cells above 0.5 take the
// neighbour-anchored value.
type Masks [8][]float64

// ComputeMasks builds the per-direction masks once per configuration. Values
// are not clamped: cells deep inside the band can exceed 1 and cells
// near its inner border go negative.
func ComputeMasks(w, h, distance int, policy Policy, seed int64) Masks {
	var m Masks
	if distance <= 0 {
		for _, dir := range policy.Directions() {
			m[dir] = make([]float64, w*h)
		}
		return m
	}
	jitter := noise.NewLine(seed)
	d := float64(distance)
	inv := 1 / d

	for _, dir := range policy.Directions() {
		off := Directions[dir]
		mask := make([]float64, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := math.Inf(1)
				if policy.horizontal() && off.X != 0 {
					v = math.Min(v, edgeWeight(x, w, off.X, distance, d, jitter.At(float64(y)*inv)))
				}
				if policy.vertical() && off.Y != 0 {
					v = math.Min(v, edgeWeight(y, h, off.Y, distance, d, jitter.At(float64(x)*inv)))
				}
				if math.IsInf(v, 1) {
					v = 0
				}
				mask[y*w+x] = v
			}
		}
		m[dir] = mask
	}
	return m
}

// edgeWeight is the blend weight of cell pos on an axis of length n towards
// the edge on side sign.
func edgeWeight(pos, n, sign, distance int, d, jitter float64) float64 {
	if sign > 0 {
		if pos > n-distance {
			return 1 - float64(n-pos)/d - jitter*0.5
		}
		return 0
	}
	if pos < distance {
		return 1 - float64(pos)/d - jitter*0.5
	}
	return 0
}
