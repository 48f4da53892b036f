package circuit

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type ProbeKind string

const (
	// NodeVoltageProbe targets a terminal as "componentID:terminalIndex" so it
	// survives node renumbering.
	NodeVoltageProbe ProbeKind = "node-voltage"
	// WireCurrentProbe targets a wire id and samples the signed A to B current.
	WireCurrentProbe ProbeKind = "wire-current"
	// ComponentCurrentProbe targets a component id.
	ComponentCurrentProbe ProbeKind = "component-current"
)

func ParseProbeKind(s string) (ProbeKind, error) {
	switch k := ProbeKind(s); k {
	case NodeVoltageProbe, WireCurrentProbe, ComponentCurrentProbe:
		return k, nil
	}
	return "", fmt.Errorf("unknown probe kind %q", s)
}

// Probe is a named observation point sampled after every step.
type Probe struct {
	ID     string
	Label  string
	Kind   ProbeKind
	Target string
}

func (p Probe) Name() string {
	if p.Label != "" {
		return p.Label
	}
	return p.ID
}

func splitTerminal(target string) (string, int, error) {
	id, idx, ok := strings.Cut(target, ":")
	if !ok {
		return "", 0, fmt.Errorf("terminal target %q is not componentID:index", target)
	}
	k, err := strconv.Atoi(idx)
	if err != nil {
		return "", 0, fmt.Errorf("terminal target %q: %w", target, err)
	}
	return id, k, nil
}

// AddObservationProbe registers a probe and returns its id.
func (c *Circuit) AddObservationProbe(p Probe) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if slices.ContainsFunc(c.probes, func(x Probe) bool { return x.ID == p.ID }) {
		return "", fmt.Errorf("adding probe %s: %w", p.ID, ErrDuplicateID)
	}

	switch p.Kind {
	case NodeVoltageProbe:
		id, k, err := splitTerminal(p.Target)
		if err != nil {
			return "", fmt.Errorf("adding probe %s: %w", p.ID, err)
		}
		comp, ok := c.byID[id]
		if !ok {
			return "", fmt.Errorf("adding probe %s: %w %s", p.ID, ErrUnknownComponent, id)
		}
		if k < 0 || k >= comp.TerminalCount() {
			return "", fmt.Errorf("adding probe %s: %s has no terminal %d", p.ID, comp, k)
		}
	case WireCurrentProbe:
		if _, ok := c.wireByID[p.Target]; !ok {
			return "", fmt.Errorf("adding probe %s: %w %s", p.ID, ErrUnknownWire, p.Target)
		}
	case ComponentCurrentProbe:
		if _, ok := c.byID[p.Target]; !ok {
			return "", fmt.Errorf("adding probe %s: %w %s", p.ID, ErrUnknownComponent, p.Target)
		}
	default:
		return "", fmt.Errorf("adding probe %s: unknown kind %q", p.ID, p.Kind)
	}

	c.probes = append(c.probes, p)
	return p.ID, nil
}

func (c *Circuit) RemoveObservationProbe(id string) error {
	n := len(c.probes)
	c.probes = slices.DeleteFunc(c.probes, func(p Probe) bool { return p.ID == id })
	if len(c.probes) == n {
		return fmt.Errorf("removing probe %s: %w", id, ErrUnknownProbe)
	}
	return nil
}

func (c *Circuit) GetAllObservationProbes() []Probe {
	return slices.Clone(c.probes)
}

// SampleProbes reads every probe from the last result, keyed by probe id.
// Probes whose target has gone read zero.
func (c *Circuit) SampleProbes() map[string]float64 {
	out := make(map[string]float64, len(c.probes))
	for _, p := range c.probes {
		out[p.ID] = c.sample(p)
	}
	return out
}

func (c *Circuit) sample(p Probe) float64 {
	switch p.Kind {
	case NodeVoltageProbe:
		id, k, err := splitTerminal(p.Target)
		if err != nil {
			return 0
		}
		nodes := c.ComponentNodes(id)
		if k < 0 || k >= len(nodes) || nodes[k] < 0 {
			return 0
		}
		return c.NodeVoltage(nodes[k])
	case WireCurrentProbe:
		info := c.GetWireCurrentInfo(p.Target, nil)
		return info.Current * float64(info.FlowDirection)
	case ComponentCurrentProbe:
		v, _ := c.ComponentCurrent(p.Target)
		return v
	}
	return 0
}
