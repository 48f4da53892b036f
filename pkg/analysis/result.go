package analysis

import (
	"fmt"

	"github.com/edp1096/toy-circuit/pkg/device"
	"github.com/edp1096/toy-circuit/pkg/netlist"
	"github.com/edp1096/toy-circuit/pkg/util"
)

type Meta struct {
	Converged     bool `json:"converged"`
	Iterations    int  `json:"iterations"`
	MaxIterations int  `json:"maxIterations"`
}

type Diagnostics struct {
	ShortCircuitDetected bool     `json:"shortCircuitDetected"`
	ShortedNodes         []int    `json:"shortedNodes,omitempty"`
	ShortedComponents    []string `json:"shortedComponents,omitempty"`
	Singular             bool     `json:"singular,omitempty"`
	ConflictingSources   []string `json:"conflictingSources,omitempty"`
	CoercedComponents    []string `json:"coercedComponents,omitempty"`
	Message              string   `json:"message,omitempty"`
}

// Readout is the per-component value set copied onto the live component.
type Readout struct {
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	Power   float64 `json:"power"`
}

// Result is the outcome of one solve. It is not modified after Solve returns.
type Result struct {
	Valid    bool               `json:"valid"`
	Voltages []float64          `json:"voltages"`
	Currents map[string]float64 `json:"currents"`
	// Current flowing into the component at each terminal.
	TerminalCurrents map[string][]float64 `json:"terminalCurrents"`
	Readouts         map[string]Readout   `json:"readouts"`

	Meta        Meta        `json:"meta"`
	Diagnostics Diagnostics `json:"diagnostics"`

	Time    float64                           `json:"time"`
	Dt      float64                           `json:"dt"`
	Methods map[string]util.IntegrationMethod `json:"methods,omitempty"`

	// Node indices above refer to this node assignment.
	TopologyVersion uint64 `json:"topologyVersion"`
}

func newResult(nodeCount int, dt, t float64) *Result {
	return &Result{
		Voltages:         make([]float64, nodeCount),
		Currents:         make(map[string]float64),
		TerminalCurrents: make(map[string][]float64),
		Readouts:         make(map[string]Readout),
		Methods:          make(map[string]util.IntegrationMethod),
		Time:             t,
		Dt:               dt,
	}
}

func (r *Result) NodeVoltage(n int) float64 {
	if r == nil || n < 0 || n >= len(r.Voltages) {
		return 0
	}
	return r.Voltages[n]
}

// TerminalCurrentsOf returns the per-terminal inflow of a component, nil when unknown.
func (r *Result) TerminalCurrentsOf(id string) []float64 {
	if r == nil {
		return nil
	}
	return r.TerminalCurrents[id]
}

func (r *Result) IsNodeShorted(n int) bool {
	if r == nil {
		return false
	}
	for _, s := range r.Diagnostics.ShortedNodes {
		if s == n {
			return true
		}
	}
	return false
}

// Solution flattens the result into V(node) and I(component) entries.
func (r *Result) Solution() map[string]float64 {
	solution := make(map[string]float64, len(r.Voltages)+len(r.Currents))
	for n, v := range r.Voltages {
		solution[fmt.Sprintf("V(%d)", n)] = v
	}
	for id, i := range r.Currents {
		solution[fmt.Sprintf("I(%s)", id)] = i
	}
	return solution
}

// fill computes the node voltages, branch currents and readouts of solution x.
func (s *Solver) fill(res *Result, ctx *stepContext, x []float64) {
	p := s.plan
	for n := 0; n < p.nodeCount; n++ {
		res.Voltages[n] = x[p.nodeRow[n]]
	}

	for i := range s.netlist.Components {
		c := &s.netlist.Components[i]
		res.TerminalCurrents[c.ID] = make([]float64, c.Type.TerminalCount())
	}
	for _, b := range p.branches {
		i := s.branchCurrent(b, ctx, x)
		tc := res.TerminalCurrents[b.comp.ID]
		tc[b.Terminals[0]] += i
		tc[b.Terminals[1]] -= i
	}

	for i := range s.netlist.Components {
		c := &s.netlist.Components[i]
		tc := res.TerminalCurrents[c.ID]
		current := componentCurrent(c, tc)
		voltage := componentVoltage(c, res.Voltages)
		res.Currents[c.ID] = current
		res.Readouts[c.ID] = Readout{Voltage: voltage, Current: current, Power: voltage * current}
	}
}

// componentCurrent is the signed current through a component from terminal 0
// to terminal 1; for sources it is the current delivered out of terminal 0.
func componentCurrent(c *netlist.ComponentStamp, tc []float64) float64 {
	if len(tc) < 2 {
		return 0
	}
	switch c.Type {
	case device.PowerSource, device.ACVoltageSource:
		return -tc[0]
	case device.Rheostat:
		if c.Nodes[0] >= 0 {
			return tc[0]
		}
		return tc[2]
	}
	return tc[0]
}

func componentVoltage(c *netlist.ComponentStamp, v []float64) float64 {
	if len(c.Nodes) < 2 {
		return 0
	}
	a, b := c.Nodes[0], c.Nodes[1]
	if c.Type == device.Rheostat {
		switch {
		case a < 0:
			a = c.Nodes[2]
		case b < 0:
			b = c.Nodes[2]
		}
	}
	if a < 0 || b < 0 {
		return 0
	}
	return v[a] - v[b]
}
