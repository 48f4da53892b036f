package netlist

import (
	"math"

	"github.com/edp1096/toy-circuit/internal/consts"
	"github.com/edp1096/toy-circuit/pkg/device"
)

const Version = 1

type Meta struct {
	Version         int    `json:"version"`
	TopologyVersion uint64 `json:"topologyVersion"`
}

type Node struct {
	Index  int  `json:"index"`
	Ground bool `json:"ground"`
}

// ComponentStamp is everything the solver needs to stamp one component.
type ComponentStamp struct {
	ID        string              `json:"id"`
	Type      device.Type         `json:"type"`
	Nodes     []int               `json:"nodes"`
	Params    device.Params       `json:"params"`
	Coerced   []string            `json:"coerced,omitempty"`
	State     device.DynamicState `json:"state"`
	Connected bool                `json:"connected"`
}

// Netlist is the immutable snapshot handed from the Circuit to the solver.
type Netlist struct {
	Meta       Meta             `json:"meta"`
	Nodes      []Node           `json:"nodes"`
	Components []ComponentStamp `json:"components"`
}

func (n *Netlist) NodeCount() int { return len(n.Nodes) }

func (n *Netlist) Component(id string) (*ComponentStamp, bool) {
	for i := range n.Components {
		if n.Components[i].ID == id {
			return &n.Components[i], true
		}
	}
	return nil, false
}

// MaxFrequency is the highest frequency among connected AC sources, 0 without any.
func (n *Netlist) MaxFrequency() float64 {
	maxFreq := 0.0
	for _, c := range n.Components {
		if c.Type == device.ACVoltageSource && c.Connected {
			maxFreq = math.Max(maxFreq, c.Params.Frequency)
		}
	}
	return maxFreq
}

// HasConnected reports whether any component of typ is connected.
func (n *Netlist) HasConnected(typ device.Type) bool {
	for _, c := range n.Components {
		if c.Type == typ && c.Connected {
			return true
		}
	}
	return false
}

func (n *Netlist) Clone() *Netlist {
	clone := &Netlist{
		Meta:       n.Meta,
		Nodes:      append([]Node(nil), n.Nodes...),
		Components: make([]ComponentStamp, len(n.Components)),
	}
	for i, c := range n.Components {
		c.Nodes = append([]int(nil), c.Nodes...)
		c.Coerced = append([]string(nil), c.Coerced...)
		clone.Components[i] = c
	}
	return clone
}

type BranchKind int

const (
	Conductance BranchKind = iota
	IdealVoltage
	NortonSource
	CapacitorBranch
	InductorBranch
	DiodeBranch
)

// Branch is one two-terminal element of an expanded component. The branch
// current flows from node A to node B through the element.
type Branch struct {
	Kind       BranchKind
	Terminals  [2]int // terminal indices within the component
	A, B       int
	Resistance float64 // Conductance and NortonSource
	Source     bool    // voltage follows the component's source waveform
}

// Branches expands a component into stampable branches. Branches touching an
// unconnected terminal are dropped.
func (s *ComponentStamp) Branches() []Branch {
	var out []Branch
	add := func(b Branch) {
		b.A, b.B = s.Nodes[b.Terminals[0]], s.Nodes[b.Terminals[1]]
		if b.A < 0 || b.B < 0 {
			return
		}
		out = append(out, b)
	}
	resistive := func(t0, t1 int, r float64) {
		if r <= consts.IdealResistance {
			add(Branch{Kind: IdealVoltage, Terminals: [2]int{t0, t1}})
			return
		}
		add(Branch{Kind: Conductance, Terminals: [2]int{t0, t1}, Resistance: r})
	}

	p := s.Params
	switch s.Type {
	case device.PowerSource, device.ACVoltageSource:
		if p.InternalResistance <= consts.IdealResistance {
			add(Branch{Kind: IdealVoltage, Terminals: [2]int{0, 1}, Source: true})
		} else {
			add(Branch{Kind: NortonSource, Terminals: [2]int{0, 1}, Resistance: p.InternalResistance, Source: true})
		}
	case device.Resistor, device.Bulb, device.Ammeter:
		resistive(0, 1, p.Resistance)
	case device.Voltmeter:
		if !math.IsInf(p.Resistance, 1) {
			resistive(0, 1, p.Resistance)
		}
	case device.Rheostat:
		ra, rb := p.RheostatSegments()
		if s.Nodes[2] >= 0 {
			resistive(0, 2, ra)
			resistive(2, 1, rb)
		} else {
			resistive(0, 1, p.MaxResistance)
		}
	case device.Switch:
		if p.Closed {
			add(Branch{Kind: IdealVoltage, Terminals: [2]int{0, 1}})
		}
	case device.Capacitor:
		add(Branch{Kind: CapacitorBranch, Terminals: [2]int{0, 1}})
	case device.Inductor:
		add(Branch{Kind: InductorBranch, Terminals: [2]int{0, 1}})
	case device.Diode:
		add(Branch{Kind: DiodeBranch, Terminals: [2]int{0, 1}})
	case device.Ground, device.BlackBox:
	}
	return out
}

// SourceVoltage is the branch voltage V(A) - V(B) imposed by an ideal or Norton branch at t.
func (s *ComponentStamp) SourceVoltage(b Branch, t float64) float64 {
	if !b.Source {
		return 0
	}
	return device.SourceVoltage(s.Type, s.Params, t)
}

func (s *ComponentStamp) SourceSamples(b Branch, instants []float64) []float64 {
	samples := make([]float64, len(instants))
	for i, t := range instants {
		samples[i] = s.SourceVoltage(b, t)
	}
	return samples
}
