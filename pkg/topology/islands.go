package topology

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Islands partitions nodes 0..n-1 into the connected components of the graph
// given by edges. Node lists are ascending and islands are ordered by their
// smallest node. Self loops and negative endpoints are ignored.
func Islands(n int, edges [][2]int) [][]int {
	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for _, e := range edges {
		if e[0] == e[1] || e[0] < 0 || e[1] < 0 || e[0] >= n || e[1] >= n {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(e[0]), T: simple.Node(e[1])})
	}

	components := topo.ConnectedComponents(g)
	islands := make([][]int, 0, len(components))
	for _, comp := range components {
		ids := make([]int, len(comp))
		for i, node := range comp {
			ids[i] = int(node.ID())
		}
		sort.Ints(ids)
		islands = append(islands, ids)
	}
	sort.Slice(islands, func(i, j int) bool { return islands[i][0] < islands[j][0] })
	return islands
}

// IslandIndex maps every node to the index of its island.
func IslandIndex(n int, islands [][]int) []int {
	index := make([]int, n)
	for i := range index {
		index[i] = -1
	}
	for i, island := range islands {
		for _, node := range island {
			index[node] = i
		}
	}
	return index
}
