package circuit

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"github.com/edp1096/toy-circuit/pkg/device"
	"github.com/edp1096/toy-circuit/pkg/netlist"
	"github.com/edp1096/toy-circuit/pkg/topology"
)

// FromJSON builds a circuit from a persisted document. Properties are kept
// exactly as written; defaults apply only when parameters are read.
func FromJSON(data []byte, opts ...Option) (*Circuit, error) {
	doc, err := netlist.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return FromDocument(doc, opts...)
}

func FromDocument(doc *netlist.Document, opts ...Option) (*Circuit, error) {
	c := New(doc.Meta.Name, opts...)

	for _, cd := range doc.Components {
		typ, err := device.ParseType(cd.Type)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", cd.ID, err)
		}
		comp := device.NewComponent(cd.ID, typ)
		comp.Label = cd.Label
		comp.X, comp.Y, comp.Rotation = cd.X, cd.Y, cd.Rotation
		comp.Properties = device.Properties(maps.Clone(cd.Properties))
		if comp.Properties == nil {
			comp.Properties = device.Properties{}
		}
		if len(cd.TerminalExtensions) > 0 {
			comp.TerminalExtensions = maps.Clone(cd.TerminalExtensions)
		}
		if err := c.AddComponent(comp); err != nil {
			return nil, err
		}
	}

	for _, wd := range doc.Wires {
		w := &topology.Wire{
			ID:            wd.ID,
			A:             endFromDoc(wd.Start),
			B:             endFromDoc(wd.End),
			ControlPoints: slices.Clone(wd.ControlPoints),
		}
		if err := c.AddWire(w); err != nil {
			return nil, err
		}
	}

	for _, pd := range doc.Probes {
		kind, err := ParseProbeKind(pd.Kind)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", pd.ID, err)
		}
		if _, err := c.AddObservationProbe(Probe{ID: pd.ID, Label: pd.Label, Kind: kind, Target: pd.Target}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func endFromDoc(e netlist.EndpointDoc) topology.WireEnd {
	end := topology.WireEnd{Point: device.Point{X: e.X, Y: e.Y}}
	if e.ComponentID != "" && e.TerminalIndex != nil {
		end.Ref = &topology.TerminalRef{ComponentID: e.ComponentID, TerminalIndex: *e.TerminalIndex}
	}
	return end
}

func endToDoc(e topology.WireEnd) netlist.EndpointDoc {
	doc := netlist.EndpointDoc{X: e.Point.X, Y: e.Point.Y}
	if e.Ref != nil {
		k := e.Ref.TerminalIndex
		doc.ComponentID = e.Ref.ComponentID
		doc.TerminalIndex = &k
	}
	return doc
}

// Document snapshots the persisted form of the circuit. Derived data such as
// nodes, readouts and integration history is not part of it.
func (c *Circuit) Document() *netlist.Document {
	doc := &netlist.Document{
		Meta:       netlist.DocumentMeta{Version: netlist.Version, Name: c.name},
		Components: make([]netlist.ComponentDoc, 0, len(c.components)),
		Wires:      make([]netlist.WireDoc, 0, len(c.wires)),
	}
	for _, comp := range c.components {
		cd := netlist.ComponentDoc{
			ID:         comp.ID,
			Type:       comp.Type.String(),
			Label:      comp.Label,
			X:          comp.X,
			Y:          comp.Y,
			Rotation:   comp.Rotation,
			Properties: maps.Clone(map[string]any(comp.Properties)),
		}
		if len(comp.TerminalExtensions) > 0 {
			cd.TerminalExtensions = maps.Clone(comp.TerminalExtensions)
		}
		doc.Components = append(doc.Components, cd)
	}
	for _, w := range c.wires {
		doc.Wires = append(doc.Wires, netlist.WireDoc{
			ID:            w.ID,
			Start:         endToDoc(w.A),
			End:           endToDoc(w.B),
			ControlPoints: slices.Clone(w.ControlPoints),
		})
	}
	for _, p := range c.probes {
		doc.Probes = append(doc.Probes, netlist.ProbeDoc{ID: p.ID, Label: p.Label, Kind: string(p.Kind), Target: p.Target})
	}
	return doc
}

func (c *Circuit) ToJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := netlist.Encode(&buf, c.Document()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
