package topology

import "github.com/edp1096/toy-circuit/pkg/device"

type TerminalRef struct {
	ComponentID   string `json:"componentId"`
	TerminalIndex int    `json:"terminalIndex"`
}

// WireEnd is a wire endpoint. A bound endpoint follows its terminal; an unbound one
// connects to whatever lies at Point.
type WireEnd struct {
	Point device.Point
	Ref   *TerminalRef
}

func (e WireEnd) Bound() bool { return e.Ref != nil }

// Wire is an ideal zero-resistance connection. Control points only shape the drawing.
type Wire struct {
	ID            string
	A             WireEnd
	B             WireEnd
	ControlPoints []device.Point
}

func (w *Wire) Ends() [2]WireEnd { return [2]WireEnd{w.A, w.B} }
