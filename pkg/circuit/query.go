package circuit

import (
	"slices"

	"github.com/edp1096/toy-circuit/pkg/analysis"
	"github.com/edp1096/toy-circuit/pkg/device"
	"github.com/edp1096/toy-circuit/pkg/topology"
	"github.com/edp1096/toy-circuit/pkg/wireflow"
)

// IsComponentConnected reports whether the component takes part in the circuit.
// A rheostat only needs its two ends; the slider may float.
func (c *Circuit) IsComponentConnected(id string) bool {
	comp, ok := c.byID[id]
	if !ok {
		return false
	}
	c.ensureNodes()
	return c.connectivity.Get(id, c.version, func() bool {
		if comp.Type == device.Rheostat {
			return comp.Nodes[0] >= 0 && comp.Nodes[1] >= 0
		}
		return comp.IsFullyConnected()
	})
}

// ConnectivityComputations counts connectivity cache misses.
func (c *Circuit) ConnectivityComputations() int { return c.connectivity.Computations() }

// PositionComputations counts terminal position cache misses.
func (c *Circuit) PositionComputations() int { return c.positions.Computations() }

// IsWireInShortCircuit reports whether the wire's node is shorted in the last result.
func (c *Circuit) IsWireInShortCircuit(wireID string) bool {
	res := c.currentResult()
	if res == nil {
		return false
	}
	node, ok := c.topo.WireNodes[wireID]
	if !ok || node < 0 {
		return false
	}
	return res.IsNodeShorted(node)
}

// currentResult is the last result when it was solved on the current node
// assignment, nil when there is none or an edit has renumbered the nodes since.
func (c *Circuit) currentResult() *analysis.Result {
	c.ensureNodes()
	if c.lastResult == nil || c.lastResult.TopologyVersion != c.version {
		return nil
	}
	return c.lastResult
}

// GetWireCurrentInfo resolves the current through one wire for res, or for the
// last result when res is nil. Without a valid result for the current topology
// every wire is idle.
func (c *Circuit) GetWireCurrentInfo(wireID string, res *analysis.Result) wireflow.Info {
	if res == nil {
		res = c.currentResult()
	}
	c.ensureNodes()
	if res == nil || !res.Valid || res.TopologyVersion != c.version {
		return wireflow.Info{}
	}
	return c.wireFlow(res).Info(wireID)
}

// WireCurrents resolves every wire for the last result.
func (c *Circuit) WireCurrents() map[string]wireflow.Info {
	res := c.currentResult()
	if res == nil || !res.Valid {
		out := make(map[string]wireflow.Info, len(c.wires))
		for _, w := range c.wires {
			out[w.ID] = wireflow.Info{}
		}
		return out
	}
	return c.wireFlow(res).All()
}

func (c *Circuit) wireFlow(res *analysis.Result) *wireflow.Analyzer {
	c.ensureNodes()
	if c.flow == nil || c.flowResult != res || c.flowTopo != c.version {
		c.flow = wireflow.Analyze(c.topo, res)
		c.flowResult = res
		c.flowTopo = c.version
	}
	return c.flow
}

func (c *Circuit) LastResult() *analysis.Result { return c.lastResult }

// NodeVoltage reads a node voltage from the last result.
func (c *Circuit) NodeVoltage(node int) float64 {
	return c.currentResult().NodeVoltage(node)
}

func (c *Circuit) ComponentVoltage(id string) (float64, bool) {
	comp, ok := c.byID[id]
	if !ok {
		return 0, false
	}
	return comp.VoltageValue, true
}

func (c *Circuit) ComponentCurrent(id string) (float64, bool) {
	comp, ok := c.byID[id]
	if !ok {
		return 0, false
	}
	return comp.CurrentValue, true
}

func (c *Circuit) ComponentPower(id string) (float64, bool) {
	comp, ok := c.byID[id]
	if !ok {
		return 0, false
	}
	return comp.PowerValue, true
}

// ComponentNodes returns the node of every terminal, -1 when unconnected.
func (c *Circuit) ComponentNodes(id string) []int {
	comp, ok := c.byID[id]
	if !ok {
		return nil
	}
	c.ensureNodes()
	return slices.Clone(comp.Nodes)
}

// TerminalPositions returns world terminal positions of a component.
func (c *Circuit) TerminalPositions(id string) []device.Point {
	comp, ok := c.byID[id]
	if !ok {
		return nil
	}
	return slices.Clone(c.positions.Positions(comp))
}

// Component returns a copy of a component. Edits go through the Circuit.
func (c *Circuit) Component(id string) (device.Component, bool) {
	comp, ok := c.byID[id]
	if !ok {
		return device.Component{}, false
	}
	cp := *comp
	cp.Properties = comp.Properties.Clone()
	cp.Nodes = slices.Clone(comp.Nodes)
	if comp.TerminalExtensions != nil {
		cp.TerminalExtensions = make(map[int]device.Point, len(comp.TerminalExtensions))
		for k, v := range comp.TerminalExtensions {
			cp.TerminalExtensions[k] = v
		}
	}
	return cp, true
}

// ComponentIDs lists components in insertion order.
func (c *Circuit) ComponentIDs() []string {
	ids := make([]string, len(c.components))
	for i, comp := range c.components {
		ids[i] = comp.ID
	}
	return ids
}

// Wire returns a copy of a wire.
func (c *Circuit) Wire(id string) (topology.Wire, bool) {
	w, ok := c.wireByID[id]
	if !ok {
		return topology.Wire{}, false
	}
	cp := *w
	cp.A, cp.B = cloneEnd(w.A), cloneEnd(w.B)
	cp.ControlPoints = slices.Clone(w.ControlPoints)
	return cp, true
}

func cloneEnd(e topology.WireEnd) topology.WireEnd {
	if e.Ref != nil {
		ref := *e.Ref
		e.Ref = &ref
	}
	return e
}

// WireIDs lists wires in insertion order.
func (c *Circuit) WireIDs() []string {
	ids := make([]string, len(c.wires))
	for i, w := range c.wires {
		ids[i] = w.ID
	}
	return ids
}
