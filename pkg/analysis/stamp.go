package analysis

import (
	"github.com/edp1096/toy-circuit/internal/consts"
	"github.com/edp1096/toy-circuit/pkg/device"
	"github.com/edp1096/toy-circuit/pkg/matrix"
	"github.com/edp1096/toy-circuit/pkg/netlist"
	"github.com/edp1096/toy-circuit/pkg/util"
)

// companion is the linear law i = g*v + ieq of a branch, v = V(A) - V(B) and i
// flowing from A to B through the element.
type companion struct {
	g, ieq float64
}

func (c companion) current(v float64) float64 { return c.g*v + c.ieq }

// stampCompanion stamps i = g*v + ieq between rows a and b.
func stampCompanion(m matrix.DeviceMatrix, a, b int, c companion) {
	m.AddElement(a, a, c.g)
	m.AddElement(a, b, -c.g)
	m.AddElement(b, a, -c.g)
	m.AddElement(b, b, c.g)
	m.AddRHS(a, -c.ieq)
	m.AddRHS(b, c.ieq)
}

// stampIdeal stamps V(a) - V(b) = e with the branch current as unknown aux.
func stampIdeal(m matrix.DeviceMatrix, a, b, aux int, e float64) {
	m.AddElement(a, aux, 1)
	m.AddElement(b, aux, -1)
	m.AddElement(aux, a, 1)
	m.AddElement(aux, b, -1)
	m.AddRHS(aux, e)
}

// stepContext is what a single linear solve is stamped against.
type stepContext struct {
	dt, t   float64
	gmin    float64
	methods map[string]util.IntegrationMethod
	vd      map[*stampBranch]float64 // diode linearization points
	last    map[*stampBranch]float64 // points of the last assembled matrix
}

func (ctx *stepContext) dc() bool { return ctx.dt <= 0 }

// linearize returns the companion of a non-ideal branch in this context.
func (s *Solver) linearize(b *stampBranch, ctx *stepContext) companion {
	c := b.comp
	switch {
	case b.demoted:
		g := 1 / s.opts.ShortCircuitResistance
		return companion{g: g, ieq: -g * c.SourceVoltage(b.Branch, ctx.t)}
	case b.Kind == netlist.NortonSource:
		g := 1 / b.Resistance
		return companion{g: g, ieq: -g * c.SourceVoltage(b.Branch, ctx.t)}
	case b.Kind == netlist.Conductance:
		return companion{g: 1 / b.Resistance}
	case b.Kind == netlist.CapacitorBranch:
		if ctx.dc() {
			return companion{}
		}
		g, ieq := device.CapacitorCompanion(c.Params.Capacitance, ctx.methods[c.ID], ctx.dt, *s.states[c.ID])
		return companion{g: g, ieq: ieq}
	case b.Kind == netlist.InductorBranch:
		if ctx.dc() {
			return companion{g: consts.InductorDCConductance}
		}
		g, ieq := device.InductorCompanion(c.Params.Inductance, ctx.methods[c.ID], ctx.dt, *s.states[c.ID])
		return companion{g: g, ieq: ieq}
	case b.Kind == netlist.DiodeBranch:
		g, ieq := device.NewDiodeModel(c.Params).Linearize(ctx.vd[b])
		return companion{g: g, ieq: ieq}
	}
	return companion{}
}

// assemble builds A and b for one linear solve.
func (s *Solver) assemble(ctx *stepContext) *matrix.System {
	p := s.plan
	sys := matrix.NewSystem(p.size)
	for _, b := range p.branches {
		if b.skip {
			continue
		}
		ra, rb := p.nodeRow[b.A], p.nodeRow[b.B]
		if b.aux > 0 {
			stampIdeal(sys, ra, rb, b.aux, b.comp.SourceVoltage(b.Branch, ctx.t))
			continue
		}
		if b.A == b.B {
			continue
		}
		stampCompanion(sys, ra, rb, s.linearize(b, ctx))
	}
	sys.LoadGmin(ctx.gmin, p.nodeRows)
	return sys
}

// branchCurrent is the current from A to B through b for solution x.
func (s *Solver) branchCurrent(b *stampBranch, ctx *stepContext, x []float64) float64 {
	if b.skip {
		return 0
	}
	if b.aux > 0 {
		return x[b.aux]
	}
	p := s.plan
	v := x[p.nodeRow[b.A]] - x[p.nodeRow[b.B]]
	return s.linearize(b, ctx).current(v)
}
