package device

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-circuit/pkg/util"
)

func TestTypeRoundTrip(t *testing.T) {
	for _, typ := range Types() {
		text, err := typ.MarshalText()
		require.NoError(t, err)

		var parsed Type
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, typ, parsed)
	}

	_, err := ParseType("Transistor")
	assert.Error(t, err)
}

func TestTerminalCounts(t *testing.T) {
	assert.Equal(t, 1, Ground.TerminalCount())
	assert.Equal(t, 3, Rheostat.TerminalCount())
	assert.Equal(t, 2, Resistor.TerminalCount())

	c := NewComponent("R1", Resistor)
	assert.Equal(t, []int{-1, -1}, c.Nodes)

	assert.True(t, Capacitor.IsDynamic())
	assert.True(t, Inductor.IsDynamic())
	assert.False(t, Diode.IsDynamic())
}

func TestWorldTerminalsRotation(t *testing.T) {
	c := NewComponent("R1", Resistor)
	c.X, c.Y = 100, 50

	assert.Equal(t, []Point{{60, 50}, {140, 50}}, c.WorldTerminals())

	c.Rotation = 90
	assert.Equal(t, []Point{{100, 10}, {100, 90}}, c.WorldTerminals())

	c.TerminalExtensions = map[int]Point{1: {20, 0}}
	assert.Equal(t, Point{100, 110}, c.WorldTerminals()[1])
}

func TestGeometryKeyChangesWithPlacement(t *testing.T) {
	c := NewComponent("R1", Resistor)
	before := c.GeometryKey()

	c.Properties[KeyResistance] = 220.0
	assert.Equal(t, before, c.GeometryKey())

	c.X = 10
	assert.NotEqual(t, before, c.GeometryKey())
}

func TestParamsCoercion(t *testing.T) {
	c := NewComponent("R1", Resistor)
	c.Properties[KeyResistance] = "abc"
	p, coerced := c.Params()
	assert.Equal(t, 100.0, p.Resistance)
	assert.Equal(t, []string{KeyResistance}, coerced)

	c.Properties[KeyResistance] = json.Number("4.7e3")
	p, coerced = c.Params()
	assert.Equal(t, 4700.0, p.Resistance)
	assert.Empty(t, coerced)

	c.Properties[KeyResistance] = "2.2k"
	p, _ = c.Params()
	assert.Equal(t, 2200.0, p.Resistance)

	src := NewComponent("V1", PowerSource)
	src.Properties[KeyVoltage] = math.NaN()
	p, coerced = src.Params()
	assert.Equal(t, 12.0, p.Voltage)
	assert.Contains(t, coerced, KeyVoltage)
}

func TestParamsDefaults(t *testing.T) {
	vm := NewComponent("VM", Voltmeter)
	p, _ := vm.Params()
	assert.True(t, math.IsInf(p.Resistance, 1))

	rh := NewComponent("RH", Rheostat)
	rh.Properties[KeyPosition] = 1.5
	p, coerced := rh.Params()
	assert.Equal(t, 1.0, p.Position)
	assert.Contains(t, coerced, KeyPosition)
	a, b := p.RheostatSegments()
	assert.Equal(t, 100.0, a)
	assert.Equal(t, 0.0, b)

	sw := NewComponent("S1", Switch)
	sw.Properties[KeyClosed] = "true"
	p, _ = sw.Params()
	assert.True(t, p.Closed)

	cp := NewComponent("C1", Capacitor)
	cp.Properties[KeyIntegrationMethod] = "trapezoidal"
	p, _ = cp.Params()
	assert.Equal(t, MethodTrapezoidal, p.Method)
}

func TestCapacitanceChangeConservesCharge(t *testing.T) {
	c := NewComponent("C1", Capacitor)
	c.State.CommitCapacitor(1e-3, 4, 0)
	require.InDelta(t, 4e-3, c.State.PrevCharge, 1e-15)

	c.SetProperty(KeyCapacitance, 2e-3)

	assert.InDelta(t, 4e-3, c.State.PrevCharge, 1e-15)
	assert.InDelta(t, 2.0, c.State.PrevVoltage, 1e-12)
}

func TestUnusableCapacitanceStillConservesCharge(t *testing.T) {
	c := NewComponent("C1", Capacitor)
	c.Properties[KeyCapacitance] = 2e-3
	c.State.CommitCapacitor(2e-3, 4, 0.1)
	require.InDelta(t, 8e-3, c.State.PrevCharge, 1e-15)

	c.SetProperty(KeyCapacitance, "bogus")

	params, coerced := c.Params()
	require.Contains(t, coerced, KeyCapacitance)
	assert.InDelta(t, 8e-3, c.State.PrevCharge, 1e-15)
	assert.InDelta(t, 8e-3/params.Capacitance, c.State.PrevVoltage, 1e-12)
	assert.InDelta(t, 8.0, c.State.PrevVoltage, 1e-12)
	assert.Zero(t, c.State.PrevCurrent)
}

func TestCapacitorCompanion(t *testing.T) {
	s := DynamicState{PrevVoltage: 1, PrevCurrent: 0.5}

	geq, ieq := CapacitorCompanion(1e-3, util.BackwardEulerMethod, 0.01, s)
	assert.InDelta(t, 0.1, geq, 1e-12)
	assert.InDelta(t, -0.1, ieq, 1e-12)

	geq, ieq = CapacitorCompanion(1e-3, util.TrapezoidalMethod, 0.01, s)
	assert.InDelta(t, 0.2, geq, 1e-12)
	assert.InDelta(t, -0.7, ieq, 1e-12)
}

func TestInductorCompanion(t *testing.T) {
	s := DynamicState{PrevVoltage: 2, PrevCurrent: 0.1}

	geq, ieq := InductorCompanion(0.1, util.BackwardEulerMethod, 0.01, s)
	assert.InDelta(t, 0.1, geq, 1e-12)
	assert.InDelta(t, 0.1, ieq, 1e-12)

	geq, ieq = InductorCompanion(0.1, util.TrapezoidalMethod, 0.01, s)
	assert.InDelta(t, 0.05, geq, 1e-12)
	assert.InDelta(t, 0.2, ieq, 1e-12)
}

func TestDiodeModel(t *testing.T) {
	d := NewDiodeModel(Params{SaturationCurrent: 1e-14, IdealityFactor: 1})

	assert.InDelta(t, 0, d.Current(0), 1e-18)
	assert.Less(t, d.Current(-5), 0.0)
	assert.Greater(t, d.Current(0.7), 1e-3)

	// Conductance is the slope of the current.
	h := 1e-7
	slope := (d.Current(0.6+h) - d.Current(0.6-h)) / (2 * h)
	assert.InEpsilon(t, slope, d.Conductance(0.6), 1e-4)

	gd, ieq := d.Linearize(0.6)
	assert.InDelta(t, d.Current(0.6), gd*0.6+ieq, 1e-15)

	limited, ok := d.Limit(5, 0.6)
	assert.True(t, ok)
	assert.Less(t, limited, 1.0)

	same, ok := d.Limit(0.61, 0.6)
	assert.False(t, ok)
	assert.Equal(t, 0.61, same)
}

func TestSourceVoltage(t *testing.T) {
	ac := Params{Amplitude: 10, Frequency: 50, Offset: 1}
	assert.InDelta(t, 1, SourceVoltage(ACVoltageSource, ac, 0), 1e-12)
	assert.InDelta(t, 11, SourceVoltage(ACVoltageSource, ac, 0.005), 1e-9)
	assert.Equal(t, 5.0, SourceVoltage(PowerSource, Params{Voltage: 5}, 3))

	instants := SampleInstants(0, 50)
	assert.Len(t, instants, 4)
	assert.Equal(t, []float64{2}, SampleInstants(2, 0))
}

func TestParamsSet(t *testing.T) {
	var p Params
	require.NoError(t, p.Set(KeyVoltage, 9))
	require.NoError(t, p.Set(KeyPosition, 1.5))
	assert.Equal(t, 9.0, p.Voltage)
	assert.Equal(t, 1.0, p.Position)
	assert.Error(t, p.Set(KeyClosed, 1))
}
