package analysis

import (
	"errors"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/edp1096/toy-circuit/pkg/device"
	"github.com/edp1096/toy-circuit/pkg/matrix"
	"github.com/edp1096/toy-circuit/pkg/util"
)

// Solve computes the circuit at time t after a step of length dt. dt <= 0 solves
// the operating point with capacitors open and inductors shorted.
func (s *Solver) Solve(dt, t float64) *Result {
	if s.plan == nil {
		panic("analysis: Solve called before Prepare")
	}
	return s.newton(dt, t, s.opts.Gmin)
}

func (s *Solver) newton(dt, t, gmin float64) *Result {
	p := s.plan
	res := newResult(p.nodeCount, dt, t)
	res.TopologyVersion = s.netlist.Meta.TopologyVersion
	res.Meta.MaxIterations = s.opts.MaxIterations
	res.Diagnostics.CoercedComponents = p.coerced
	res.Diagnostics.ShortCircuitDetected = len(p.shortComponents) > 0
	res.Diagnostics.ShortedNodes = p.shortNodes
	res.Diagnostics.ShortedComponents = p.shortComponents

	if len(p.conflict) > 0 {
		res.Diagnostics.ConflictingSources = p.conflict
		res.Diagnostics.Message = "conflicting ideal voltage sources"
		s.metrics.ObserveSolve(0, false, false, false)
		return res
	}

	ctx := &stepContext{dt: dt, t: t, gmin: gmin, methods: s.methods(dt), vd: make(map[*stampBranch]float64, len(p.diodes))}
	for id, m := range ctx.methods {
		res.Methods[id] = m
	}
	for _, d := range p.diodes {
		ctx.vd[d] = s.states[d.comp.ID].LastJunctionVoltage
	}
	signature := methodSignature(ctx.methods, ctx.dc())

	x := s.lastX
	if x == nil {
		x = make([]float64, p.size+1)
	}

	converged := false
	iterations := 0
	for iterations < s.opts.MaxIterations {
		iterations++

		sys := s.assemble(ctx)
		f, err := s.factorize(matrix.Key{
			TopologyVersion: s.netlist.Meta.TopologyVersion,
			Methods:         signature,
			Fingerprint:     sys.Fingerprint(),
		}, sys)
		if err == nil {
			var xNew []float64
			xNew, err = f.Solve(sys.RHS())
			if err == nil {
				limited := s.updateJunctions(ctx, xNew)
				if len(p.diodes) == 0 || (iterations > 1 && !limited && s.settled(x, xNew)) {
					converged = true
				}
				x = xNew
			}
		}
		if err != nil {
			res.Meta.Iterations = iterations
			res.Diagnostics.Singular = errors.Is(err, matrix.ErrSingular)
			res.Diagnostics.Message = err.Error()
			if ce := s.logger.Check(zap.DebugLevel, "solve failed"); ce != nil {
				var dump strings.Builder
				sys.PrintSystem(&dump)
				ce.Write(zap.Float64("t", t), zap.Float64("dt", dt), zap.Error(err), zap.String("system", dump.String()))
			}
			s.metrics.ObserveSolve(iterations, false, false, res.Diagnostics.ShortCircuitDetected)
			return res
		}
		if converged {
			break
		}
	}

	// Diode currents use the point the final matrix was linearized at so KCL
	// holds exactly for the returned solution.
	if len(p.diodes) > 0 {
		s.relinearizeAt(ctx)
	}

	res.Valid = true
	res.Meta.Converged = converged
	res.Meta.Iterations = iterations
	s.fill(res, ctx, x)
	s.lastX = x
	if !converged {
		s.logger.Debug("newton did not converge",
			zap.Float64("t", t), zap.Float64("dt", dt), zap.Int("iterations", iterations))
	}
	s.metrics.ObserveSolve(iterations, converged, true, res.Diagnostics.ShortCircuitDetected)
	return res
}

// factorize returns the cached factorization when it was built for exactly this
// system, otherwise a new one that replaces it.
func (s *Solver) factorize(key matrix.Key, sys *matrix.System) (*matrix.Factorization, error) {
	if s.factor.Matches(key, sys) {
		s.metrics.FactorizationReused()
		return s.factor, nil
	}
	f, err := matrix.Factorize(key, sys)
	if err != nil {
		return nil, err
	}
	if s.factor != nil {
		s.factor.Destroy()
	}
	s.factor = f
	s.metrics.FactorizationBuilt(f.UsedFallback())
	return f, nil
}

func (s *Solver) settled(prev, next []float64) bool {
	for i := 1; i < len(next); i++ {
		tol := s.opts.RelTol*math.Max(math.Abs(next[i]), math.Abs(prev[i])) + s.opts.AbsTol
		if math.Abs(next[i]-prev[i]) > tol {
			return false
		}
	}
	return true
}

// updateJunctions moves every diode's linearization point towards solution x,
// remembering the previous point so the final currents can be reconstructed.
func (s *Solver) updateJunctions(ctx *stepContext, x []float64) bool {
	p := s.plan
	limited := false
	for _, d := range p.diodes {
		vnew := x[p.nodeRow[d.A]] - x[p.nodeRow[d.B]]
		vold := ctx.vd[d]
		v, lim := device.NewDiodeModel(d.comp.Params).Limit(vnew, vold)
		limited = limited || lim
		ctx.stamped(d, vold)
		ctx.vd[d] = v
	}
	return limited
}

// relinearizeAt restores the linearization points of the last assembled matrix.
func (s *Solver) relinearizeAt(ctx *stepContext) {
	for d, v := range ctx.last {
		ctx.vd[d] = v
	}
}

func (ctx *stepContext) stamped(d *stampBranch, v float64) {
	if ctx.last == nil {
		ctx.last = make(map[*stampBranch]float64)
	}
	ctx.last[d] = v
}

// methods resolves the integration method of every dynamic component. auto is
// backward Euler on the first stamp after a rebuild and whenever a switch is
// connected, trapezoidal otherwise.
func (s *Solver) methods(dt float64) map[string]util.IntegrationMethod {
	methods := make(map[string]util.IntegrationMethod)
	if dt <= 0 {
		return methods
	}
	for _, b := range s.plan.branches {
		c := b.comp
		if !c.Type.IsDynamic() {
			continue
		}
		switch c.Params.Method {
		case device.MethodBackwardEuler:
			methods[c.ID] = util.BackwardEulerMethod
		case device.MethodTrapezoidal:
			methods[c.ID] = util.TrapezoidalMethod
		default:
			if s.plan.hasSwitch || s.states[c.ID].HistorySteps == 0 {
				methods[c.ID] = util.BackwardEulerMethod
			} else {
				methods[c.ID] = util.TrapezoidalMethod
			}
		}
	}
	return methods
}

// UpdateDynamicComponents commits an accepted result into the working history.
func (s *Solver) UpdateDynamicComponents(res *Result) {
	if res == nil || !res.Valid {
		return
	}
	for i := range s.netlist.Components {
		c := &s.netlist.Components[i]
		st := s.states[c.ID]
		if len(c.Nodes) < 2 || c.Nodes[0] < 0 || c.Nodes[1] < 0 {
			continue
		}
		v := res.Voltages[c.Nodes[0]] - res.Voltages[c.Nodes[1]]
		cur := res.TerminalCurrents[c.ID][0]
		switch c.Type {
		case device.Capacitor:
			st.CommitCapacitor(c.Params.Capacitance, v, cur)
		case device.Inductor:
			st.CommitInductor(v, cur)
		case device.Diode:
			st.LastJunctionVoltage = v
		}
	}
}

// SubstepCount is the number of internal solves one external step of dt is split
// into: enough to sample the fastest connected AC source ACSamplesPerPeriod times
// per period, and exactly 1 without AC sources.
func (s *Solver) SubstepCount(dt float64) int {
	if s.netlist == nil || dt <= 0 {
		return 1
	}
	fmax := s.netlist.MaxFrequency()
	if fmax <= 0 {
		return 1
	}
	n := int(math.Ceil(dt * fmax * float64(s.opts.ACSamplesPerPeriod)))
	return max(1, min(n, s.opts.MaxACSubsteps))
}

// OperatingPoint solves the DC operating point at time t. When plain Newton does
// not converge it steps gmin down from a large value, warm starting each stage.
func (s *Solver) OperatingPoint(t float64) *Result {
	if s.plan == nil {
		panic("analysis: OperatingPoint called before Prepare")
	}
	res := s.newton(0, t, s.opts.Gmin)
	if !res.Valid || res.Meta.Converged {
		return res
	}

	numGminSteps := 10
	startGmin := float64(s.plan.size) * 0.001
	gmin := startGmin * math.Pow(10, float64(numGminSteps))
	for i := 0; i <= numGminSteps; i++ {
		stage := s.newton(0, t, gmin)
		if !stage.Valid {
			return stage
		}
		s.seedJunctions(stage)
		gmin /= 10
	}

	res = s.newton(0, t, s.opts.Gmin)
	if !res.Meta.Converged {
		s.logger.Warn("gmin stepping failed", zap.Float64("t", t))
	}
	return res
}

func (s *Solver) seedJunctions(res *Result) {
	for _, d := range s.plan.diodes {
		s.states[d.comp.ID].LastJunctionVoltage = res.Voltages[d.A] - res.Voltages[d.B]
	}
}
