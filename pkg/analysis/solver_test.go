package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-circuit/pkg/device"
	"github.com/edp1096/toy-circuit/pkg/netlist"
	"github.com/edp1096/toy-circuit/pkg/util"
)

func build(nodes int, comps ...netlist.ComponentStamp) *netlist.Netlist {
	nl := &netlist.Netlist{Meta: netlist.Meta{Version: netlist.Version, TopologyVersion: 1}}
	for i := 0; i < nodes; i++ {
		nl.Nodes = append(nl.Nodes, netlist.Node{Index: i, Ground: i == 0})
	}
	nl.Components = comps
	return nl
}

func comp(id string, typ device.Type, p device.Params, nodes ...int) netlist.ComponentStamp {
	return netlist.ComponentStamp{ID: id, Type: typ, Nodes: nodes, Params: p, Connected: true}
}

func divider() *netlist.Netlist {
	return build(3,
		comp("V1", device.PowerSource, device.Params{Voltage: 12}, 1, 0),
		comp("R1", device.Resistor, device.Params{Resistance: 100}, 1, 2),
		comp("R2", device.Resistor, device.Params{Resistance: 100}, 2, 0),
	)
}

func rc(method device.IntegrationMethod, extra ...netlist.ComponentStamp) *netlist.Netlist {
	comps := []netlist.ComponentStamp{
		comp("V1", device.PowerSource, device.Params{Voltage: 10}, 1, 0),
		comp("R1", device.Resistor, device.Params{Resistance: 100}, 1, 2),
		comp("C1", device.Capacitor, device.Params{Capacitance: 1e-3, Method: method}, 2, 0),
	}
	return build(3, append(comps, extra...)...)
}

// assertKCL checks that the currents flowing into component terminals sum to zero at every node.
func assertKCL(t *testing.T, nl *netlist.Netlist, res *Result) {
	t.Helper()
	sums := make([]float64, nl.NodeCount())
	scale := 0.0
	for _, c := range nl.Components {
		for term, n := range c.Nodes {
			if n < 0 {
				continue
			}
			i := res.TerminalCurrents[c.ID][term]
			sums[n] += i
			scale = math.Max(scale, math.Abs(i))
		}
	}
	for n, sum := range sums {
		assert.InDelta(t, 0, sum, 1e-9*math.Max(scale, 1), "node %d", n)
	}
}

func TestSeriesDivider(t *testing.T) {
	s := NewSolver()
	s.Prepare(divider())
	res := s.Solve(0.01, 0.01)

	require.True(t, res.Valid)
	assert.True(t, res.Meta.Converged)
	assert.Equal(t, 1, res.Meta.Iterations)
	assert.False(t, res.Diagnostics.ShortCircuitDetected)

	assert.InDelta(t, 12.0, res.Voltages[1], 1e-9)
	assert.InDelta(t, 6.0, res.Voltages[2], 1e-9)
	assert.InDelta(t, 0.06, res.Currents["R1"], 1e-9)
	assert.InDelta(t, 0.06, res.Currents["R2"], 1e-9)
	assert.InDelta(t, 0.06, res.Currents["V1"], 1e-9)

	assert.InDelta(t, 12.0, res.Readouts["V1"].Voltage, 1e-9)
	assert.InDelta(t, 0.72, res.Readouts["V1"].Power, 1e-9)
	assert.InDelta(t, 0.36, res.Readouts["R2"].Power, 1e-9)
	assertKCL(t, s.Netlist(), res)
}

func TestParallelBranchesConserveCurrent(t *testing.T) {
	nl := build(3,
		comp("V1", device.PowerSource, device.Params{Voltage: 10}, 1, 0),
		comp("R1", device.Resistor, device.Params{Resistance: 100}, 1, 2),
		comp("R2", device.Resistor, device.Params{Resistance: 200}, 2, 0),
		comp("R3", device.Resistor, device.Params{Resistance: 300}, 2, 0),
		comp("VM", device.Voltmeter, device.Params{Resistance: math.Inf(1)}, 2, 0),
	)
	s := NewSolver()
	s.Prepare(nl)
	res := s.Solve(0, 0)

	require.True(t, res.Valid)
	assert.InDelta(t, res.Currents["R1"], res.Currents["R2"]+res.Currents["R3"], 1e-12)
	assert.InDelta(t, res.Currents["V1"], res.Currents["R1"], 1e-12)
	assert.Zero(t, res.Currents["VM"])
	assert.InDelta(t, res.Voltages[2], res.Readouts["VM"].Voltage, 1e-12)
	assertKCL(t, nl, res)
}

func TestRCChargeSequence(t *testing.T) {
	s := NewSolver()
	s.Prepare(rc(device.MethodAuto))

	want := []float64{0.909091, 1.774892, 2.558235, 3.266975, 3.908215}
	for k, v := range want {
		res := s.Solve(0.01, 0.01*float64(k+1))
		require.True(t, res.Valid)
		assert.InDelta(t, v, res.Voltages[2], 1e-6, "step %d", k+1)
		s.UpdateDynamicComponents(res)
	}

	st, ok := s.State("C1")
	require.True(t, ok)
	assert.Equal(t, 5, st.HistorySteps)
	assert.InDelta(t, 1e-3*st.PrevVoltage, st.PrevCharge, 1e-15)
}

func TestBackwardEulerSequence(t *testing.T) {
	s := NewSolver()
	s.Prepare(rc(device.MethodBackwardEuler))

	want := []float64{0.909091, 1.735537, 2.486852, 3.169865, 3.790787}
	for k, v := range want {
		res := s.Solve(0.01, 0.01*float64(k+1))
		assert.InDelta(t, v, res.Voltages[2], 1e-6)
		assert.Equal(t, util.BackwardEulerMethod, res.Methods["C1"])
		s.UpdateDynamicComponents(res)
	}
}

func TestAutoMethodSwitch(t *testing.T) {
	t.Run("without switch", func(t *testing.T) {
		s := NewSolver()
		s.Prepare(rc(device.MethodAuto))
		var got []util.IntegrationMethod
		for k := 1; k <= 3; k++ {
			res := s.Solve(0.01, 0.01*float64(k))
			got = append(got, res.Methods["C1"])
			s.UpdateDynamicComponents(res)
		}
		assert.Equal(t, []util.IntegrationMethod{util.BackwardEulerMethod, util.TrapezoidalMethod, util.TrapezoidalMethod}, got)
	})

	t.Run("connected switch pins backward euler", func(t *testing.T) {
		s := NewSolver()
		s.Prepare(rc(device.MethodAuto, comp("S1", device.Switch, device.Params{Closed: false}, 2, 0)))
		for k := 1; k <= 4; k++ {
			res := s.Solve(0.01, 0.01*float64(k))
			assert.Equal(t, util.BackwardEulerMethod, res.Methods["C1"], "step %d", k)
			s.UpdateDynamicComponents(res)
		}
	})

	t.Run("explicit trapezoidal is kept", func(t *testing.T) {
		s := NewSolver()
		s.Prepare(rc(device.MethodTrapezoidal, comp("S1", device.Switch, device.Params{Closed: false}, 2, 0)))
		res := s.Solve(0.01, 0.01)
		assert.Equal(t, util.TrapezoidalMethod, res.Methods["C1"])
	})

	t.Run("history resets with the netlist", func(t *testing.T) {
		s := NewSolver()
		nl := rc(device.MethodAuto)
		s.Prepare(nl)
		s.UpdateDynamicComponents(s.Solve(0.01, 0.01))
		assert.Equal(t, util.TrapezoidalMethod, s.Solve(0.01, 0.02).Methods["C1"])

		nl.Meta.TopologyVersion++
		s.Prepare(nl)
		assert.Equal(t, util.BackwardEulerMethod, s.Solve(0.01, 0.02).Methods["C1"])
	})
}

func TestFactorizationCacheReuse(t *testing.T) {
	s := NewSolver()
	nl := divider()
	s.Prepare(nl)

	s.Solve(0.01, 0.01)
	first := s.Factorization()
	require.NotNil(t, first)
	s.Solve(0.01, 0.02)
	assert.Same(t, first, s.Factorization())

	nl.Meta.TopologyVersion++
	s.Prepare(nl)
	s.Solve(0.01, 0.03)
	assert.NotSame(t, first, s.Factorization())
}

func TestFactorizationFollowsMethodFlip(t *testing.T) {
	s := NewSolver()
	s.Prepare(rc(device.MethodAuto))

	res := s.Solve(0.01, 0.01)
	s.UpdateDynamicComponents(res)
	backwardEuler := s.Factorization()

	res = s.Solve(0.01, 0.02)
	s.UpdateDynamicComponents(res)
	trapezoidal := s.Factorization()
	assert.NotSame(t, backwardEuler, trapezoidal)
	assert.Contains(t, trapezoidal.Key.Methods, "C1:trapezoidal")

	s.Solve(0.01, 0.03)
	assert.Same(t, trapezoidal, s.Factorization())
}

func TestParameterEditInvalidatesFactorization(t *testing.T) {
	s := NewSolver()
	nl := divider()
	s.Prepare(nl)
	s.Solve(0.01, 0.01)
	first := s.Factorization()

	nl.Components[1].Params.Resistance = 200
	s.Prepare(nl)
	res := s.Solve(0.01, 0.02)
	assert.NotSame(t, first, s.Factorization())
	assert.InDelta(t, 4.0, res.Voltages[2], 1e-9)
}

func TestConflictingSourcesAreInvalid(t *testing.T) {
	nl := build(2,
		comp("V1", device.PowerSource, device.Params{Voltage: 5}, 1, 0),
		comp("V2", device.PowerSource, device.Params{Voltage: 9}, 1, 0),
	)
	s := NewSolver()
	s.Prepare(nl)
	res := s.Solve(0.01, 0.01)

	assert.False(t, res.Valid)
	assert.Equal(t, []string{"V2"}, res.Diagnostics.ConflictingSources)
}

func TestEqualParallelSourcesShareTheLoad(t *testing.T) {
	nl := build(2,
		comp("V1", device.PowerSource, device.Params{Voltage: 5}, 1, 0),
		comp("V2", device.PowerSource, device.Params{Voltage: 5}, 1, 0),
		comp("R1", device.Resistor, device.Params{Resistance: 10}, 1, 0),
	)
	s := NewSolver()
	s.Prepare(nl)
	res := s.Solve(0, 0)

	require.True(t, res.Valid)
	assert.False(t, res.Diagnostics.ShortCircuitDetected)
	assert.InDelta(t, 5.0, res.Voltages[1], 1e-9)
	assert.InDelta(t, 0.5, res.Currents["V1"]+res.Currents["V2"], 1e-6)
}

func TestShortCircuitIsBounded(t *testing.T) {
	nl := build(2,
		comp("V1", device.PowerSource, device.Params{Voltage: 5}, 1, 0),
		comp("S1", device.Switch, device.Params{Closed: true}, 1, 0),
		comp("R1", device.Resistor, device.Params{Resistance: 100}, 1, 0),
	)
	s := NewSolver()
	s.Prepare(nl)
	res := s.Solve(0.01, 0.01)

	require.True(t, res.Valid)
	assert.True(t, res.Diagnostics.ShortCircuitDetected)
	assert.Equal(t, []int{0, 1}, res.Diagnostics.ShortedNodes)
	assert.Equal(t, []string{"S1", "V1"}, res.Diagnostics.ShortedComponents)
	assert.True(t, res.IsNodeShorted(1))
	assert.InDelta(t, 5e6, res.Currents["V1"], 1e-3)
	assert.False(t, math.IsInf(res.Currents["S1"], 0))
	assertKCL(t, nl, res)
}

func TestSourceAcrossOneNodeIsShorted(t *testing.T) {
	nl := build(2,
		comp("V1", device.PowerSource, device.Params{Voltage: 3}, 1, 1),
		comp("R1", device.Resistor, device.Params{Resistance: 100}, 1, 0),
	)
	s := NewSolver()
	s.Prepare(nl)
	res := s.Solve(0, 0)

	require.True(t, res.Valid)
	assert.True(t, res.Diagnostics.ShortCircuitDetected)
	assert.InDelta(t, 3e6, res.Currents["V1"], 1e-3)
}

func TestFloatingIslandUsesOwnReference(t *testing.T) {
	nl := build(4,
		comp("V1", device.PowerSource, device.Params{Voltage: 12}, 1, 0),
		comp("R1", device.Resistor, device.Params{Resistance: 100}, 1, 0),
		comp("V2", device.PowerSource, device.Params{Voltage: 5}, 2, 3),
		comp("R2", device.Resistor, device.Params{Resistance: 50}, 2, 3),
	)
	s := NewSolver()
	s.Prepare(nl)
	res := s.Solve(0, 0)

	require.True(t, res.Valid)
	assert.Zero(t, res.Voltages[2])
	assert.InDelta(t, 5.0, res.Voltages[2]-res.Voltages[3], 1e-9)
	assert.InDelta(t, 0.1, res.Currents["R2"], 1e-9)
}

func TestDiodeNewton(t *testing.T) {
	nl := build(3,
		comp("V1", device.PowerSource, device.Params{Voltage: 5}, 1, 0),
		comp("R1", device.Resistor, device.Params{Resistance: 1000}, 1, 2),
		comp("D1", device.Diode, device.Params{SaturationCurrent: 1e-14, IdealityFactor: 1}, 2, 0),
	)
	s := NewSolver()
	s.Prepare(nl)
	res := s.Solve(0.01, 0.01)

	require.True(t, res.Valid)
	assert.True(t, res.Meta.Converged)
	assert.Greater(t, res.Meta.Iterations, 1)
	assert.Greater(t, res.Voltages[2], 0.55)
	assert.Less(t, res.Voltages[2], 0.8)
	assert.InDelta(t, (5-res.Voltages[2])/1000, res.Currents["D1"], 1e-9)
	assertKCL(t, nl, res)

	s.UpdateDynamicComponents(res)
	st, _ := s.State("D1")
	assert.InDelta(t, res.Voltages[2], st.LastJunctionVoltage, 1e-12)
}

func TestReverseDiodeBlocks(t *testing.T) {
	nl := build(3,
		comp("V1", device.PowerSource, device.Params{Voltage: 5}, 1, 0),
		comp("R1", device.Resistor, device.Params{Resistance: 1000}, 1, 2),
		comp("D1", device.Diode, device.Params{SaturationCurrent: 1e-14, IdealityFactor: 1}, 0, 2),
	)
	s := NewSolver()
	s.Prepare(nl)
	res := s.Solve(0, 0)

	require.True(t, res.Valid)
	assert.InDelta(t, 5.0, res.Voltages[2], 1e-6)
	assert.InDelta(t, 0, res.Currents["D1"], 1e-9)
}

func TestNewtonIterationCap(t *testing.T) {
	nl := build(3,
		comp("V1", device.PowerSource, device.Params{Voltage: 50}, 1, 0),
		comp("R1", device.Resistor, device.Params{Resistance: 1}, 1, 2),
		comp("D1", device.Diode, device.Params{SaturationCurrent: 1e-14, IdealityFactor: 1}, 2, 0),
	)
	s := NewSolver(WithOptions(Options{MaxIterations: 2}))
	s.Prepare(nl)
	res := s.Solve(0.01, 0.01)

	assert.True(t, res.Valid)
	assert.False(t, res.Meta.Converged)
	assert.Equal(t, 2, res.Meta.Iterations)
	assert.Equal(t, 2, res.Meta.MaxIterations)
}

func TestOperatingPoint(t *testing.T) {
	t.Run("capacitor is open", func(t *testing.T) {
		s := NewSolver()
		s.Prepare(rc(device.MethodAuto))
		res := s.OperatingPoint(0)
		require.True(t, res.Valid)
		assert.InDelta(t, 10.0, res.Voltages[2], 1e-6)
		assert.InDelta(t, 0, res.Currents["C1"], 1e-9)
	})

	t.Run("inductor is a short", func(t *testing.T) {
		nl := build(3,
			comp("V1", device.PowerSource, device.Params{Voltage: 10}, 1, 0),
			comp("R1", device.Resistor, device.Params{Resistance: 100}, 1, 2),
			comp("L1", device.Inductor, device.Params{Inductance: 0.1}, 2, 0),
		)
		s := NewSolver()
		s.Prepare(nl)
		res := s.OperatingPoint(0)
		require.True(t, res.Valid)
		assert.InDelta(t, 0.1, res.Currents["L1"], 1e-4)
	})
}

func TestInductorCurrentRises(t *testing.T) {
	nl := build(3,
		comp("V1", device.PowerSource, device.Params{Voltage: 10}, 1, 0),
		comp("R1", device.Resistor, device.Params{Resistance: 10}, 1, 2),
		comp("L1", device.Inductor, device.Params{Inductance: 0.1, Method: device.MethodBackwardEuler}, 2, 0),
	)
	s := NewSolver()
	s.Prepare(nl)

	// Backward Euler: i = (iprev + h/L*V) / (1 + h/L*R)
	prev := 0.0
	for k := 1; k <= 5; k++ {
		res := s.Solve(0.01, 0.01*float64(k))
		require.True(t, res.Valid)
		i := res.Currents["L1"]
		want := (prev + 0.01/0.1*10) / (1 + 0.01/0.1*10)
		assert.InDelta(t, want, i, 1e-9)
		prev = i
		s.UpdateDynamicComponents(res)
	}
	assert.Greater(t, prev, 0.5)
}

func TestSubstepCount(t *testing.T) {
	s := NewSolver()
	s.Prepare(divider())
	assert.Equal(t, 1, s.SubstepCount(0.01))

	ac := build(2,
		comp("AC1", device.ACVoltageSource, device.Params{Amplitude: 10, Frequency: 50}, 1, 0),
		comp("R1", device.Resistor, device.Params{Resistance: 100}, 1, 0),
	)
	s.Prepare(ac)
	assert.Equal(t, 10, s.SubstepCount(0.01))
	assert.Equal(t, 1, s.SubstepCount(0.0001))

	ac.Components[0].Params.Frequency = 1e4
	s.Prepare(ac)
	assert.Equal(t, 64, s.SubstepCount(0.01))

	ac.Components[0].Connected = false
	s.Prepare(ac)
	assert.Equal(t, 1, s.SubstepCount(0.01))
}

func TestACSourceFollowsTime(t *testing.T) {
	nl := build(2,
		comp("AC1", device.ACVoltageSource, device.Params{Amplitude: 10, Frequency: 50}, 1, 0),
		comp("R1", device.Resistor, device.Params{Resistance: 100}, 1, 0),
	)
	s := NewSolver()
	s.Prepare(nl)

	assert.InDelta(t, 10.0, s.Solve(0.001, 0.005).Voltages[1], 1e-9)
	assert.InDelta(t, -10.0, s.Solve(0.001, 0.015).Voltages[1], 1e-9)
}

func TestCoercedComponentsAreReported(t *testing.T) {
	nl := divider()
	nl.Components[1].Coerced = []string{device.KeyResistance}
	s := NewSolver()
	s.Prepare(nl)
	res := s.Solve(0, 0)
	assert.True(t, res.Valid)
	assert.Equal(t, []string{"R1"}, res.Diagnostics.CoercedComponents)
}

func TestUnconnectedTerminalsCarryNoCurrent(t *testing.T) {
	nl := divider()
	nl.Components = append(nl.Components, comp("R9", device.Resistor, device.Params{Resistance: 10}, 2, -1))
	s := NewSolver()
	s.Prepare(nl)
	res := s.Solve(0, 0)

	require.True(t, res.Valid)
	assert.Zero(t, res.Currents["R9"])
	assert.Zero(t, res.Readouts["R9"].Voltage)
	assert.InDelta(t, 6.0, res.Voltages[2], 1e-9)
}

func TestRheostatSlider(t *testing.T) {
	nl := build(3,
		comp("V1", device.PowerSource, device.Params{Voltage: 10}, 1, 0),
		comp("P1", device.Rheostat, device.Params{MaxResistance: 100, Position: 0.25}, 1, 0, 2),
		comp("R1", device.Resistor, device.Params{Resistance: 1e9}, 2, 0),
	)
	s := NewSolver()
	s.Prepare(nl)
	res := s.Solve(0, 0)

	require.True(t, res.Valid)
	assert.InDelta(t, 7.5, res.Voltages[2], 1e-6)
	assert.InDelta(t, 0.1, res.Currents["P1"], 1e-6)
}

func TestSolveBeforePreparePanics(t *testing.T) {
	assert.Panics(t, func() { NewSolver().Solve(0.01, 0) })
}
