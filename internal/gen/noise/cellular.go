package noise

import (
	"math"

	"procgen2d.ai/internal/gen/mathx"
)

// Cellular is Worley noise with one jittered feature point per unit cell.
type Cellular struct {
	Seed int64
	// Second selects the distance to the second-closest feature point.
	Second bool
}

func (c *Cellular) Eval2(x, y float64) float64 {
	f1, f2 := c.Distances(x, y)
	if c.Second {
		return f2
	}
	return f1
}

// Distances returns the closest and second-closest feature distances.
func (c *Cellular) Distances(x, y float64) (f1, f2 float64) {
	cx := int(math.Floor(x))
	cy := int(math.Floor(y))
	f1, f2 = math.Inf(1), math.Inf(1)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			gx, gy := cx+dx, cy+dy
			h := mathx.Hash2(c.Seed, gx, gy)
			px := float64(gx) + float64(h&0xffff)/65536.0
			py := float64(gy) + float64((h>>16)&0xffff)/65536.0
			ddx, ddy := px-x, py-y
			d := math.Sqrt(ddx*ddx + ddy*ddy)
			switch {
			case d < f1:
				f1, f2 = d, f1
			case d < f2:
				f2 = d
			}
		}
	}
	return f1, f2
}
