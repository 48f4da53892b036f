package validate

import (
	"fmt"
	"strings"

	"github.com/edp1096/toy-circuit/pkg/device"
	"github.com/edp1096/toy-circuit/pkg/netlist"
	"github.com/edp1096/toy-circuit/pkg/topology"
)

type Code string

const (
	CodeConflictingIdealSources Code = "TOPO_CONFLICTING_IDEAL_SOURCES"
	CodeCapacitorLoop           Code = "TOPO_CAPACITOR_LOOP_NO_RESISTANCE"
	CodeFloatingSubcircuit      Code = "TOPO_FLOATING_SUBCIRCUIT"
)

type Severity int

const (
	Fatal Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "fatal"
}

// Issue is a topology finding. Fatal issues are returned as the Result error.
type Issue struct {
	Code         Code
	Severity     Severity
	Message      string
	ComponentIDs []string
	Nodes        []int
}

func (i *Issue) Error() string {
	return fmt.Sprintf("%s: %s", i.Code, i.Message)
}

type Result struct {
	OK       bool
	Error    *Issue
	Warnings []*Issue
}

// Validate runs the pre-flight checks on a netlist. Source waveforms are compared
// at several instants starting at simTime.
func Validate(nl *netlist.Netlist, simTime float64) Result {
	var res Result

	if issue := conflictingSources(nl, simTime); issue != nil {
		res.Error = issue
	} else if issue := capacitorLoop(nl); issue != nil {
		res.Error = issue
	}
	res.Warnings = floatingSubcircuits(nl)
	res.OK = res.Error == nil
	return res
}

func conflictingSources(nl *netlist.Netlist, simTime float64) *Issue {
	instants := device.SampleInstants(simTime, nl.MaxFrequency())
	potentials := topology.NewPotentialSet(nl.NodeCount(), len(instants))
	zero := make([]float64, len(instants))

	type sourceRef struct {
		id   string
		node int
	}
	var sources []sourceRef

	for i := range nl.Components {
		c := &nl.Components[i]
		for _, b := range c.Branches() {
			if b.Kind != netlist.IdealVoltage || b.A == b.B {
				continue
			}
			e := zero
			if b.Source {
				e = c.SourceSamples(b, instants)
			}

			implied, merged := potentials.Add(b.A, b.B, e)
			if b.Source {
				sources = append(sources, sourceRef{id: c.ID, node: b.A})
			}
			if merged || topology.SamplesEqual(implied, e) {
				continue
			}
			if topology.SamplesZero(e) || topology.SamplesZero(implied) {
				// A zero-volt path across a source is a short circuit, handled at solve time.
				continue
			}

			var ids []string
			for _, s := range sources {
				if potentials.Connected(s.node, b.A) {
					ids = append(ids, s.id)
				}
			}
			return &Issue{
				Code:         CodeConflictingIdealSources,
				Severity:     Fatal,
				Message:      fmt.Sprintf("ideal sources %s impose different voltages between nodes %d and %d", strings.Join(ids, ", "), b.A, b.B),
				ComponentIDs: ids,
				Nodes:        []int{b.A, b.B},
			}
		}
	}
	return nil
}

// capacitorLoop looks for a loop made only of capacitors. Closed switches,
// zero-ohm ammeters and ideal resistors count as wiring, so they close a loop
// without adding resistance to it.
func capacitorLoop(nl *netlist.Netlist) *Issue {
	uf := topology.NewUnionFind(nl.NodeCount())
	for i := range nl.Components {
		for _, b := range nl.Components[i].Branches() {
			if b.Kind == netlist.IdealVoltage && !b.Source {
				uf.Union(b.A, b.B)
			}
		}
	}

	// A capacitor whose ends are already wired together is merely shorted.
	shorted := map[string]bool{}
	for i := range nl.Components {
		c := &nl.Components[i]
		for _, b := range c.Branches() {
			if b.Kind == netlist.CapacitorBranch && uf.Find(b.A) == uf.Find(b.B) {
				shorted[c.ID] = true
			}
		}
	}

	for i := range nl.Components {
		c := &nl.Components[i]
		if shorted[c.ID] {
			continue
		}
		for _, b := range c.Branches() {
			if b.Kind != netlist.CapacitorBranch || uf.Union(b.A, b.B) {
				continue
			}

			var loop []string
			root := uf.Find(b.A)
			for j := range nl.Components {
				other := &nl.Components[j]
				if other.Type == device.Capacitor && other.Connected && !shorted[other.ID] && uf.Find(other.Nodes[0]) == root {
					loop = append(loop, other.ID)
				}
			}
			return &Issue{
				Code:         CodeCapacitorLoop,
				Severity:     Fatal,
				Message:      fmt.Sprintf("capacitors %s form a loop with no resistance", strings.Join(loop, ", ")),
				ComponentIDs: loop,
				Nodes:        []int{b.A, b.B},
			}
		}
	}
	return nil
}

func floatingSubcircuits(nl *netlist.Netlist) []*Issue {
	n := nl.NodeCount()
	if n == 0 {
		return nil
	}

	var edges [][2]int
	owners := make(map[int][]string)
	for _, c := range nl.Components {
		first := -1
		for _, node := range c.Nodes {
			if node < 0 {
				continue
			}
			if first < 0 {
				first = node
				continue
			}
			edges = append(edges, [2]int{first, node})
		}
		if first >= 0 {
			owners[first] = append(owners[first], c.ID)
		}
	}

	islands := topology.Islands(n, edges)
	var warnings []*Issue
	for _, island := range islands {
		if island[0] == 0 || len(island) < 2 {
			continue
		}
		var ids []string
		for _, node := range island {
			ids = append(ids, owners[node]...)
		}
		warnings = append(warnings, &Issue{
			Code:         CodeFloatingSubcircuit,
			Severity:     Warning,
			Message:      fmt.Sprintf("components %s are not connected to the reference node", strings.Join(ids, ", ")),
			ComponentIDs: ids,
			Nodes:        island,
		})
	}
	return warnings
}
