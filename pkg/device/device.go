package device

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Type is the closed set of component kinds the simulator knows how to stamp.
type Type int

const (
	PowerSource Type = iota
	ACVoltageSource
	Resistor
	Bulb
	Rheostat
	Switch
	Ammeter
	Voltmeter
	Capacitor
	Inductor
	Diode
	Ground
	BlackBox
)

var typeNames = [...]string{
	PowerSource:     "PowerSource",
	ACVoltageSource: "ACVoltageSource",
	Resistor:        "Resistor",
	Bulb:            "Bulb",
	Rheostat:        "Rheostat",
	Switch:          "Switch",
	Ammeter:         "Ammeter",
	Voltmeter:       "Voltmeter",
	Capacitor:       "Capacitor",
	Inductor:        "Inductor",
	Diode:           "Diode",
	Ground:          "Ground",
	BlackBox:        "BlackBox",
}

func Types() []Type {
	types := make([]Type, len(typeNames))
	for i := range typeNames {
		types[i] = Type(i)
	}
	return types
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

func ParseType(name string) (Type, error) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown component type %q", name)
}

func (t Type) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(typeNames) {
		return nil, fmt.Errorf("unknown component type %d", int(t))
	}
	return []byte(typeNames[t]), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Type) TerminalCount() int {
	switch t {
	case Ground:
		return 1
	case Rheostat:
		return 3
	default:
		return 2
	}
}

func (t Type) IsSource() bool { return t == PowerSource || t == ACVoltageSource }

func (t Type) IsDynamic() bool { return t == Capacitor || t == Inductor }

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Terminal layout in component-local coordinates, before rotation.
func (t Type) localTerminals() []Point {
	switch t {
	case Ground:
		return []Point{{0, -20}}
	case Rheostat:
		return []Point{{-40, 0}, {40, 0}, {0, -30}}
	default:
		return []Point{{-40, 0}, {40, 0}}
	}
}

type Component struct {
	ID       string
	Type     Type
	Label    string
	X        float64
	Y        float64
	Rotation float64 // degrees

	Properties         Properties
	TerminalExtensions map[int]Point

	// Node index per terminal, -1 when unconnected. Written by the topology builder.
	Nodes []int

	VoltageValue float64
	CurrentValue float64
	PowerValue   float64

	State DynamicState
}

// DynamicState is the integration history carried between accepted steps.
type DynamicState struct {
	PrevVoltage         float64 `json:"prevVoltage"`
	PrevCurrent         float64 `json:"prevCurrent"`
	PrevCharge          float64 `json:"prevCharge"`
	HistorySteps        int     `json:"historySteps"`
	LastJunctionVoltage float64 `json:"lastJunctionVoltage"`
}

func NewComponent(id string, typ Type) *Component {
	c := &Component{
		ID:         id,
		Type:       typ,
		Properties: DefaultProperties(typ),
		Nodes:      make([]int, typ.TerminalCount()),
	}
	for i := range c.Nodes {
		c.Nodes[i] = -1
	}
	return c
}

func (c *Component) TerminalCount() int { return c.Type.TerminalCount() }

// LocalTerminals returns terminal offsets including per-terminal extensions, unrotated.
func (c *Component) LocalTerminals() []Point {
	points := c.Type.localTerminals()
	for i := range points {
		if ext, ok := c.TerminalExtensions[i]; ok {
			points[i].X += ext.X
			points[i].Y += ext.Y
		}
	}
	return points
}

// WorldTerminals applies rotation and translation to LocalTerminals.
func (c *Component) WorldTerminals() []Point {
	local := c.LocalTerminals()
	rad := c.Rotation * math.Pi / 180
	sin, cos := math.Sincos(rad)
	world := make([]Point, len(local))
	for i, p := range local {
		world[i] = Point{
			X: c.X + roundCoord(p.X*cos-p.Y*sin),
			Y: c.Y + roundCoord(p.X*sin+p.Y*cos),
		}
	}
	return world
}

func roundCoord(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}

// GeometryKey identifies everything that moves a component's terminals.
type GeometryKey string

func (c *Component) GeometryKey() GeometryKey {
	var b strings.Builder
	b.WriteString(c.Type.String())
	for _, v := range []float64{c.X, c.Y, c.Rotation} {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	if len(c.TerminalExtensions) > 0 {
		idx := make([]int, 0, len(c.TerminalExtensions))
		for i := range c.TerminalExtensions {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		for _, i := range idx {
			ext := c.TerminalExtensions[i]
			fmt.Fprintf(&b, "|%d:%g,%g", i, ext.X, ext.Y)
		}
	}
	return GeometryKey(b.String())
}

func (c *Component) ResetReadouts() {
	c.VoltageValue = 0
	c.CurrentValue = 0
	c.PowerValue = 0
}

// IsFullyConnected reports whether every terminal has a node.
func (c *Component) IsFullyConnected() bool {
	if len(c.Nodes) == 0 {
		return false
	}
	for _, n := range c.Nodes {
		if n < 0 {
			return false
		}
	}
	return true
}

// SetProperty stores a raw property value. Changing a capacitor's capacitance keeps
// its stored charge and moves the terminal voltage to Q/C.
func (c *Component) SetProperty(key string, value any) {
	if c.Properties == nil {
		c.Properties = Properties{}
	}
	c.Properties[key] = value

	if c.Type == Capacitor && key == KeyCapacitance {
		// Unusable values fall back to the default, and so does the charge update.
		params, _ := c.Params()
		c.State.PrevVoltage = c.State.PrevCharge / params.Capacitance
		c.State.PrevCurrent = 0
	}
}

func (c *Component) String() string {
	return fmt.Sprintf("%s(%s)", c.Type, c.ID)
}
