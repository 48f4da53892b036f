package topology

import (
	"math"

	"github.com/edp1096/toy-circuit/internal/consts"
	"github.com/edp1096/toy-circuit/pkg/device"
)

// Topology is the node assignment for one Topology Version. It is never patched;
// any edit produces a new one through Build.
type Topology struct {
	Version   uint64
	NodeCount int

	// Nodes touching a Ground terminal. When non-empty the first entry is node 0.
	GroundNodes []int

	ComponentNodes map[string][]int

	// Point level: terminals and wire endpoints that coincide or are bound together.
	PointCount     int
	PointNode      []int
	PointTerminals [][]TerminalRef
	PointWireEnds  []int

	Wires      []string
	WirePoints map[string][2]int
	WireNodes  map[string]int
}

func (t *Topology) HasGround() bool { return len(t.GroundNodes) > 0 }

func (t *Topology) IsGroundNode(node int) bool {
	for _, g := range t.GroundNodes {
		if g == node {
			return true
		}
	}
	return false
}

type snapKey struct{ x, y int64 }

func keyOf(p device.Point) snapKey {
	return snapKey{
		x: int64(math.Round(p.X / consts.PositionEpsilon)),
		y: int64(math.Round(p.Y / consts.PositionEpsilon)),
	}
}

// PositionFunc yields world terminal positions of a component.
type PositionFunc func(*device.Component) []device.Point

// Build assigns nodes. Terminals and wire endpoints are merged into points by binding
// and coincidence, points are merged into nodes across wires, and a node needs at
// least two terminals; lone terminals get -1. The canonical ground node is node 0.
func Build(version uint64, components []*device.Component, wires []*Wire, positions PositionFunc) *Topology {
	if positions == nil {
		positions = (*device.Component).WorldTerminals
	}

	compIndex := make(map[string]int, len(components))
	termBase := make([]int, len(components))
	nTerms := 0
	for i, c := range components {
		compIndex[c.ID] = i
		termBase[i] = nTerms
		nTerms += c.TerminalCount()
	}
	total := nTerms + 2*len(wires)

	points := NewUnionFind(total)
	spatial := make(map[snapKey]int)
	snap := func(item int, p device.Point) {
		k := keyOf(p)
		if first, ok := spatial[k]; ok {
			points.Union(first, item)
			return
		}
		spatial[k] = item
	}

	for i, c := range components {
		pos := positions(c)
		for k := 0; k < c.TerminalCount() && k < len(pos); k++ {
			snap(termBase[i]+k, pos[k])
		}
	}
	for j, w := range wires {
		for e, end := range w.Ends() {
			item := nTerms + 2*j + e
			if ref := end.Ref; ref != nil {
				if ci, ok := compIndex[ref.ComponentID]; ok && ref.TerminalIndex >= 0 && ref.TerminalIndex < components[ci].TerminalCount() {
					points.Union(item, termBase[ci]+ref.TerminalIndex)
					continue
				}
			}
			snap(item, end.Point)
		}
	}

	nodes := points.Clone()
	for j := range wires {
		nodes.Union(nTerms+2*j, nTerms+2*j+1)
	}

	termCount := make(map[int]int)
	for t := 0; t < nTerms; t++ {
		termCount[nodes.Find(t)]++
	}
	nodeOf := make(map[int]int)
	for t := 0; t < nTerms; t++ {
		r := nodes.Find(t)
		if termCount[r] < 2 {
			continue
		}
		if _, ok := nodeOf[r]; !ok {
			nodeOf[r] = len(nodeOf)
		}
	}
	nodeCount := len(nodeOf)

	nodeOfItem := func(item int) int {
		if n, ok := nodeOf[nodes.Find(item)]; ok {
			return n
		}
		return -1
	}

	compNodes := make(map[string][]int, len(components))
	for i, c := range components {
		ns := make([]int, c.TerminalCount())
		for k := range ns {
			ns[k] = nodeOfItem(termBase[i] + k)
		}
		compNodes[c.ID] = ns
	}

	groundNodes := groundNodesOf(components, compNodes, nodeCount)
	if len(groundNodes) > 0 && groundNodes[0] != 0 {
		canonical := groundNodes[0]
		renumber := func(n int) int {
			switch {
			case n == canonical:
				return 0
			case n >= 0 && n < canonical:
				return n + 1
			default:
				return n
			}
		}
		for _, ns := range compNodes {
			for k := range ns {
				ns[k] = renumber(ns[k])
			}
		}
		for r, n := range nodeOf {
			nodeOf[r] = renumber(n)
		}
		for i := range groundNodes {
			groundNodes[i] = renumber(groundNodes[i])
		}
	}

	topo := &Topology{
		Version:        version,
		NodeCount:      nodeCount,
		GroundNodes:    groundNodes,
		ComponentNodes: compNodes,
		Wires:          make([]string, len(wires)),
		WirePoints:     make(map[string][2]int, len(wires)),
		WireNodes:      make(map[string]int, len(wires)),
	}

	pointOf := make(map[int]int)
	pointID := func(item int) int {
		r := points.Find(item)
		p, ok := pointOf[r]
		if !ok {
			p = len(pointOf)
			pointOf[r] = p
			topo.PointNode = append(topo.PointNode, nodeOfItem(item))
			topo.PointTerminals = append(topo.PointTerminals, nil)
			topo.PointWireEnds = append(topo.PointWireEnds, 0)
		}
		return p
	}
	for i, c := range components {
		for k := 0; k < c.TerminalCount(); k++ {
			p := pointID(termBase[i] + k)
			topo.PointTerminals[p] = append(topo.PointTerminals[p], TerminalRef{ComponentID: c.ID, TerminalIndex: k})
		}
	}
	for j, w := range wires {
		pa, pb := pointID(nTerms+2*j), pointID(nTerms+2*j+1)
		topo.PointWireEnds[pa]++
		topo.PointWireEnds[pb]++
		topo.Wires[j] = w.ID
		topo.WirePoints[w.ID] = [2]int{pa, pb}
		topo.WireNodes[w.ID] = nodeOfItem(nTerms + 2*j)
	}
	topo.PointCount = len(pointOf)

	return topo
}

// groundNodesOf lists nodes touching a Ground terminal. The first entry is the
// canonical ground: one whose wiring island holds a fully connected source, if any.
func groundNodesOf(components []*device.Component, compNodes map[string][]int, nodeCount int) []int {
	var grounds []int
	seen := make(map[int]bool)
	for _, c := range components {
		if c.Type != device.Ground {
			continue
		}
		if n := compNodes[c.ID][0]; n >= 0 && !seen[n] {
			seen[n] = true
			grounds = append(grounds, n)
		}
	}
	if len(grounds) < 2 {
		return grounds
	}

	islands := Islands(nodeCount, ComponentEdges(components, compNodes))
	islandOf := IslandIndex(nodeCount, islands)
	powered := make(map[int]bool)
	for _, c := range components {
		if !c.Type.IsSource() {
			continue
		}
		ns := compNodes[c.ID]
		if ns[0] >= 0 && ns[1] >= 0 {
			powered[islandOf[ns[0]]] = true
		}
	}

	for i, g := range grounds {
		if powered[islandOf[g]] {
			if i > 0 {
				grounds[0], grounds[i] = grounds[i], grounds[0]
			}
			break
		}
	}
	return grounds
}

// ComponentEdges links the connected terminals of every component, regardless of
// whether the component conducts.
func ComponentEdges(components []*device.Component, compNodes map[string][]int) [][2]int {
	var edges [][2]int
	for _, c := range components {
		ns := compNodes[c.ID]
		first := -1
		for _, n := range ns {
			if n < 0 {
				continue
			}
			if first < 0 {
				first = n
				continue
			}
			edges = append(edges, [2]int{first, n})
		}
	}
	return edges
}
