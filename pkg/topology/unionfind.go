package topology

import "math"

// UnionFind is a disjoint-set forest with path compression and union by size.
type UnionFind struct {
	parent []int
	size   []int
}

func NewUnionFind(n int) *UnionFind {
	uf := &UnionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *UnionFind) Find(x int) int {
	root := x
	for uf.parent[root] != root {
		root = uf.parent[root]
	}
	for uf.parent[x] != root {
		next := uf.parent[x]
		uf.parent[x] = root
		x = next
	}
	return root
}

// Union merges the sets of a and b and reports whether they were distinct.
func (uf *UnionFind) Union(a, b int) bool {
	ra, rb := uf.Find(a), uf.Find(b)
	if ra == rb {
		return false
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
	return true
}

func (uf *UnionFind) Clone() *UnionFind {
	return &UnionFind{
		parent: append([]int(nil), uf.parent...),
		size:   append([]int(nil), uf.size...),
	}
}

// PotentialSet tracks ideal constraints V(a) - V(b) = e between nodes. Each e is a
// vector of samples so time-varying sources are compared as waveforms.
type PotentialSet struct {
	parent []int
	offset [][]float64 // V(x) - V(parent[x])
	width  int
}

func NewPotentialSet(n, width int) *PotentialSet {
	p := &PotentialSet{parent: make([]int, n), offset: make([][]float64, n), width: width}
	for i := range p.parent {
		p.parent[i] = i
		p.offset[i] = make([]float64, width)
	}
	return p
}

func (p *PotentialSet) find(x int) int {
	parent := p.parent[x]
	if parent == x {
		return x
	}
	root := p.find(parent)
	if parent != root {
		for i := range p.offset[x] {
			p.offset[x][i] += p.offset[parent][i]
		}
		p.parent[x] = root
	}
	return root
}

// Add records V(a) - V(b) = e. When a and b are already related it returns the
// implied difference and false without changing anything.
func (p *PotentialSet) Add(a, b int, e []float64) ([]float64, bool) {
	ra, rb := p.find(a), p.find(b)
	if ra == rb {
		implied := make([]float64, p.width)
		for i := range implied {
			implied[i] = p.offset[a][i] - p.offset[b][i]
		}
		return implied, false
	}
	p.parent[ra] = rb
	for i := range p.offset[ra] {
		p.offset[ra][i] = e[i] - p.offset[a][i] + p.offset[b][i]
	}
	return nil, true
}

func (p *PotentialSet) Connected(a, b int) bool { return p.find(a) == p.find(b) }

// Relation returns V(a) - V(b) when a and b are related.
func (p *PotentialSet) Relation(a, b int) ([]float64, bool) {
	if p.find(a) != p.find(b) {
		return nil, false
	}
	diff := make([]float64, p.width)
	for i := range diff {
		diff[i] = p.offset[a][i] - p.offset[b][i]
	}
	return diff, true
}

func sampleTolerance(a, b []float64) float64 {
	scale := 1.0
	for i := range a {
		scale = math.Max(scale, math.Max(math.Abs(a[i]), math.Abs(b[i])))
	}
	return 1e-9 * scale
}

func SamplesEqual(a, b []float64) bool {
	tol := sampleTolerance(a, b)
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func SamplesZero(a []float64) bool {
	for _, v := range a {
		if math.Abs(v) > 1e-12 {
			return false
		}
	}
	return true
}
