package circuit

import (
	"math"

	"go.uber.org/zap"

	"github.com/edp1096/toy-circuit/pkg/analysis"
	"github.com/edp1096/toy-circuit/pkg/device"
	"github.com/edp1096/toy-circuit/pkg/validate"
)

// EnsureSolverPrepared rebuilds stale nodes and hands the solver a fresh netlist
// when anything changed since the last Prepare.
func (c *Circuit) EnsureSolverPrepared() {
	c.ensureNodes()
	if !c.solverDirty && c.solver.Prepared() {
		return
	}
	c.solver.Prepare(c.Netlist())
	c.solverDirty = false
}

// Step advances simulation time by one configured time step. The step is split
// into internal solves when an AC source needs finer sampling, or by the step
// controller when adaptive stepping is on. A rejected solve never advances time.
// An invalid solve stops the step where it is.
func (c *Circuit) Step() *analysis.Result {
	c.EnsureSolverPrepared()

	dt := c.settings.TimeStep
	target := c.simTime + dt
	eps := 1e-9 * dt

	var res *analysis.Result
	solves := 0
	for target-c.simTime > eps && solves < c.settings.MaxInternalSolves {
		remaining := target - c.simTime
		h := remaining
		if c.settings.EnableAdaptiveTimeStep {
			h = c.controller.CurrentDt(remaining)
		}
		n := c.solver.SubstepCount(h)
		sub := h / float64(n)

		for k := 0; k < n && solves < c.settings.MaxInternalSolves; k++ {
			t := c.simTime + sub
			if math.Abs(target-t) <= eps {
				t = target
			}

			r := c.solver.Solve(sub, t)
			solves++
			if !r.Valid {
				c.finish(r)
				return r
			}
			if !r.Meta.Converged && c.settings.EnableAdaptiveTimeStep {
				if c.controller.Reject() {
					c.metrics.StepRejected()
					c.logger.Debug("step rejected",
						zap.Float64("time", t),
						zap.Float64("dt", sub),
						zap.Int("iterations", r.Meta.Iterations))
					break
				}
			}

			c.solver.UpdateDynamicComponents(r)
			c.simTime = t
			res = r
			if c.settings.EnableAdaptiveTimeStep && r.Meta.Converged {
				c.controller.Accept(r.Meta.Iterations, dt)
			}
		}
	}

	if target-c.simTime > eps {
		c.logger.Warn("internal solve budget exhausted",
			zap.Int("solves", solves),
			zap.Float64("time", c.simTime),
			zap.Float64("target", target))
	}
	if res != nil {
		c.finish(res)
	}
	return res
}

// finish copies readouts and committed state back onto the components.
func (c *Circuit) finish(res *analysis.Result) {
	c.lastResult = res
	for _, comp := range c.components {
		if st, ok := c.solver.State(comp.ID); ok {
			comp.State = st
		}
		c.applyReadout(comp, res)
	}
	if !res.Valid {
		c.logger.Warn("solve invalid",
			zap.Float64("time", res.Time),
			zap.String("reason", res.Diagnostics.Message))
	}
}

func (c *Circuit) applyReadout(comp *device.Component, res *analysis.Result) {
	r, ok := res.Readouts[comp.ID]
	if !ok || !res.Valid {
		comp.ResetReadouts()
		return
	}
	comp.VoltageValue = r.Voltage
	comp.CurrentValue = r.Current
	comp.PowerValue = r.Power
}

// OperatingPoint solves the DC operating point at the current simulation time.
// Component history is left untouched.
func (c *Circuit) OperatingPoint() *analysis.Result {
	c.EnsureSolverPrepared()
	res := c.solver.OperatingPoint(c.simTime)
	c.lastResult = res
	for _, comp := range c.components {
		c.applyReadout(comp, res)
	}
	return res
}

// ValidateSimulationTopology runs the pre-simulation checks against the
// current circuit. Sources are compared at simTime.
func (c *Circuit) ValidateSimulationTopology(simTime float64) validate.Result {
	res := validate.Validate(c.Netlist(), simTime)
	if res.Error != nil {
		c.logger.Warn("topology rejected", zap.String("reason", res.Error.Message))
	}
	for _, w := range res.Warnings {
		c.logger.Info("topology warning", zap.String("reason", w.Message))
	}
	return res
}

func (c *Circuit) SimulationTime() float64 { return c.simTime }

// Reset rewinds simulation time and clears integration history and readouts.
func (c *Circuit) Reset() {
	c.simTime = 0
	c.lastResult = nil
	c.controller.Reset()
	for _, comp := range c.components {
		comp.State = device.DynamicState{}
		comp.ResetReadouts()
	}
	c.solverDirty = true
}
