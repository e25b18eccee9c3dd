package mathx

// Coord is an integer grid position. It is used for chunk coordinates as well
// as chunk-local and world tile positions.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coord) Add(o Coord) Coord { return Coord{X: c.X + o.X, Y: c.Y + o.Y} }

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, y int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func Hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// HashSeq folds the parts in order; HashSeq(a, b) != HashSeq(b, a).
func HashSeq(parts ...uint64) uint64 {
	var h uint64
	for _, p := range parts {
		h = mix64(h ^ p)
	}
	return h
}

// HashCoord is the seed-independent hash of a chunk coordinate.
func HashCoord(c Coord) uint64 {
	return Hash2(0, c.X, c.Y)
}

// LayerSeed derives the seed of layer i for chunk c under world seed w.
func LayerSeed(worldSeed int64, layer int, chunk Coord) uint64 {
	return HashSeq(uint64(worldSeed), uint64(layer), HashCoord(chunk))
}

// SourceSeed derives the seed handed to source i of a layer.
func SourceSeed(layerSeed uint64, source int) uint64 {
	return HashSeq(layerSeed, uint64(source))
}
