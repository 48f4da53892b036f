package wireflow

import (
	"math"

	"github.com/edp1096/toy-circuit/internal/consts"
	"github.com/edp1096/toy-circuit/pkg/topology"
)

// Info is what the renderer needs to animate one wire. FlowDirection is +1 when
// current runs from end A to end B, -1 for the opposite way and 0 without current.
type Info struct {
	Current       float64 `json:"current"`
	FlowDirection int     `json:"flowDirection"`
	IsShorted     bool    `json:"isShorted"`
}

// Readings is the part of a solve result the analyzer consumes.
type Readings interface {
	// TerminalCurrentsOf returns the current flowing into a component at each terminal.
	TerminalCurrentsOf(componentID string) []float64
	IsNodeShorted(node int) bool
}

// Analyzer holds the per-wire currents of one topology and one result.
type Analyzer struct {
	infos map[string]Info
}

// pair is an unordered pair of points. Wires joining the same pair are parallel
// and share one tree link.
type pair [2]int

func pairOf(a, b int) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

type edge struct {
	link  pair
	other int
}

// Analyze resolves every wire current by KCL on a spanning forest of each node's
// point graph. A tree wire carries the net component current injected into the
// subtree beyond it, so chained segments all carry the same propagated current.
// Parallel wires joining the same two points split their link's current evenly;
// other wires closing a loop inside one node carry nothing. readings may be nil, in
// which case every wire is idle.
func Analyze(topo *topology.Topology, readings Readings) *Analyzer {
	a := &Analyzer{infos: make(map[string]Info)}
	if topo == nil {
		return a
	}
	for _, id := range topo.Wires {
		a.infos[id] = Info{}
	}
	if readings == nil {
		return a
	}

	adj := make([][]edge, topo.PointCount)
	parallel := make(map[pair][]string)
	for _, id := range topo.Wires {
		node := topo.WireNodes[id]
		if node < 0 || dangling(topo, id) {
			continue
		}
		if readings.IsNodeShorted(node) {
			a.infos[id] = Info{IsShorted: true}
			continue
		}
		pts := topo.WirePoints[id]
		if pts[0] == pts[1] {
			continue
		}
		key := pairOf(pts[0], pts[1])
		if len(parallel[key]) == 0 {
			adj[pts[0]] = append(adj[pts[0]], edge{link: key, other: pts[1]})
			adj[pts[1]] = append(adj[pts[1]], edge{link: key, other: pts[0]})
		}
		parallel[key] = append(parallel[key], id)
	}

	injection := make([]float64, topo.PointCount)
	for p, terms := range topo.PointTerminals {
		for _, ref := range terms {
			tc := readings.TerminalCurrentsOf(ref.ComponentID)
			if ref.TerminalIndex < len(tc) {
				injection[p] -= tc[ref.TerminalIndex]
			}
		}
	}

	visited := make([]bool, topo.PointCount)
	for _, id := range topo.Wires {
		root := topo.WirePoints[id][0]
		if visited[root] || len(adj[root]) == 0 {
			continue
		}
		a.resolveTree(topo, root, adj, parallel, injection, visited)
	}
	return a
}

func (a *Analyzer) resolveTree(topo *topology.Topology, root int, adj [][]edge, parallel map[pair][]string, injection []float64, visited []bool) {
	type link struct {
		wires  pair
		parent int
	}

	order := []int{root}
	parent := map[int]link{}
	visited[root] = true
	for i := 0; i < len(order); i++ {
		p := order[i]
		for _, e := range adj[p] {
			if visited[e.other] {
				continue
			}
			visited[e.other] = true
			parent[e.other] = link{wires: e.link, parent: p}
			order = append(order, e.other)
		}
	}

	scale := 1.0
	for _, p := range order {
		scale = math.Max(scale, math.Abs(injection[p]))
	}
	tol := consts.CurrentEpsilon * scale

	subtotal := make(map[int]float64, len(order))
	for i := len(order) - 1; i > 0; i-- {
		p := order[i]
		subtotal[p] += injection[p]
		l := parent[p]
		subtotal[l.parent] += subtotal[p]

		// Net injection of the subtree leaves through the link towards the root,
		// split evenly over parallel wires.
		wires := parallel[l.wires]
		for _, w := range wires {
			flow := subtotal[p] / float64(len(wires))
			if topo.WirePoints[w][0] != p {
				flow = -flow
			}
			a.infos[w] = infoFor(flow, tol)
		}
	}
}

func infoFor(flowAB, tol float64) Info {
	if math.Abs(flowAB) <= tol || math.IsNaN(flowAB) {
		return Info{}
	}
	if flowAB > 0 {
		return Info{Current: flowAB, FlowDirection: 1}
	}
	return Info{Current: -flowAB, FlowDirection: -1}
}

// dangling reports whether a wire has an endpoint touching nothing but itself.
func dangling(topo *topology.Topology, wireID string) bool {
	for _, p := range topo.WirePoints[wireID] {
		if len(topo.PointTerminals[p]) == 0 && topo.PointWireEnds[p] < 2 {
			return true
		}
	}
	return false
}

// Info returns the resolved info of a wire; unknown wires are idle.
func (a *Analyzer) Info(wireID string) Info {
	return a.infos[wireID]
}

func (a *Analyzer) All() map[string]Info {
	out := make(map[string]Info, len(a.infos))
	for id, info := range a.infos {
		out[id] = info
	}
	return out
}
