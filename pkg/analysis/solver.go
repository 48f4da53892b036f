package analysis

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/edp1096/toy-circuit/pkg/device"
	"github.com/edp1096/toy-circuit/pkg/matrix"
	"github.com/edp1096/toy-circuit/pkg/metrics"
	"github.com/edp1096/toy-circuit/pkg/netlist"
	"github.com/edp1096/toy-circuit/pkg/topology"
	"github.com/edp1096/toy-circuit/pkg/util"
)

// Solver turns a netlist snapshot into solve results. It owns the working copy of
// the dynamic history and the cached factorization; it never touches the live circuit.
type Solver struct {
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Collector

	netlist *netlist.Netlist
	plan    *plan
	states  map[string]*device.DynamicState
	factor  *matrix.Factorization
	lastX   []float64
}

func NewSolver(opts ...Option) *Solver {
	s := &Solver{
		opts:   DefaultOptions(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Solver) Options() Options { return s.opts }

// stampBranch is one branch of the prepared system.
type stampBranch struct {
	netlist.Branch
	comp    *netlist.ComponentStamp
	aux     int  // auxiliary row of an ideal branch, 0 otherwise
	demoted bool // ideal branch stamped as a bounded Norton branch
	skip    bool // zero-volt branch with both terminals on one node
}

type plan struct {
	nodeCount int
	nodeRow   []int // node -> matrix row, 0 for island references
	nodeRows  int
	size      int

	branches []*stampBranch
	diodes   []*stampBranch

	conflict        []string
	shortNodes      []int
	shortComponents []string
	hasSwitch       bool
	coerced         []string
}

// Prepare loads a netlist. The ideal branch classification, island references and
// matrix layout are computed once here and reused by every Solve until the next Prepare.
func (s *Solver) Prepare(nl *netlist.Netlist) {
	if nl == nil {
		panic("analysis: Prepare called with a nil netlist")
	}
	s.netlist = nl.Clone()
	s.plan = s.buildPlan(s.netlist)

	s.states = make(map[string]*device.DynamicState, len(s.netlist.Components))
	for i := range s.netlist.Components {
		c := &s.netlist.Components[i]
		st := c.State
		s.states[c.ID] = &st
	}

	if s.factor != nil && s.factor.Key.TopologyVersion != nl.Meta.TopologyVersion {
		s.factor.Destroy()
		s.factor = nil
	}
	if len(s.lastX) != s.plan.size+1 {
		s.lastX = nil
	}

	if len(s.plan.conflict) > 0 {
		s.logger.Warn("conflicting ideal sources", zap.Strings("components", s.plan.conflict))
	}
	if len(s.plan.shortComponents) > 0 {
		s.logger.Warn("short circuit detected",
			zap.Strings("components", s.plan.shortComponents),
			zap.Ints("nodes", s.plan.shortNodes))
	}
	s.logger.Debug("solver prepared",
		zap.Uint64("topologyVersion", nl.Meta.TopologyVersion),
		zap.Int("nodes", s.plan.nodeCount),
		zap.Int("size", s.plan.size))
}

// Prepared reports whether a netlist has been loaded.
func (s *Solver) Prepared() bool { return s.plan != nil }

func (s *Solver) Netlist() *netlist.Netlist { return s.netlist }

// State returns the solver's working history of a component.
func (s *Solver) State(id string) (device.DynamicState, bool) {
	st, ok := s.states[id]
	if !ok {
		return device.DynamicState{}, false
	}
	return *st, true
}

// Factorization returns the currently cached factorization, nil before the first solve.
func (s *Solver) Factorization() *matrix.Factorization { return s.factor }

func (s *Solver) buildPlan(nl *netlist.Netlist) *plan {
	p := &plan{nodeCount: nl.NodeCount(), hasSwitch: nl.HasConnected(device.Switch)}

	var edges [][2]int
	var ideals, sources []*stampBranch
	for i := range nl.Components {
		c := &nl.Components[i]
		if len(c.Coerced) > 0 {
			p.coerced = append(p.coerced, c.ID)
		}
		for _, b := range c.Branches() {
			sb := &stampBranch{Branch: b, comp: c}
			p.branches = append(p.branches, sb)
			edges = append(edges, [2]int{b.A, b.B})
			switch {
			case b.Kind == netlist.IdealVoltage && b.Source:
				sources = append(sources, sb)
			case b.Kind == netlist.IdealVoltage:
				ideals = append(ideals, sb)
			case b.Kind == netlist.DiodeBranch:
				p.diodes = append(p.diodes, sb)
			}
		}
	}

	s.classifyIdeal(nl, p, append(ideals, sources...))

	// Each conducting island is pinned at its own reference node.
	islands := topology.Islands(p.nodeCount, edges)
	p.nodeRow = make([]int, p.nodeCount)
	reference := make(map[int]bool, len(islands))
	for _, island := range islands {
		reference[islandReference(nl, island)] = true
	}
	for n := 0; n < p.nodeCount; n++ {
		if reference[n] {
			continue
		}
		p.nodeRows++
		p.nodeRow[n] = p.nodeRows
	}

	p.size = p.nodeRows
	for _, b := range p.branches {
		if b.Kind == netlist.IdealVoltage && !b.demoted && !b.skip {
			p.size++
			b.aux = p.size
		}
	}
	return p
}

func islandReference(nl *netlist.Netlist, island []int) int {
	if island[0] == 0 {
		return 0
	}
	for _, n := range island {
		if nl.Nodes[n].Ground {
			return n
		}
	}
	return island[0]
}

// classifyIdeal walks the ideal branches, zero-volt ones first, and keeps only a
// forest of ideal constraints. Redundant consistent branches and shorted sources
// are demoted to bounded Norton branches; inconsistent nonzero loops are conflicts.
func (s *Solver) classifyIdeal(nl *netlist.Netlist, p *plan, ideals []*stampBranch) {
	instants := device.SampleInstants(0, nl.MaxFrequency())
	potentials := topology.NewPotentialSet(p.nodeCount, len(instants))

	shorted := map[int]bool{}
	shortComps := map[string]bool{}
	markShort := func(b *stampBranch, anchor int) {
		shortComps[b.comp.ID] = true
		for n := 0; n < p.nodeCount; n++ {
			if rel, ok := potentials.Relation(n, anchor); ok && topology.SamplesZero(rel) {
				shorted[n] = true
			}
		}
	}

	for _, b := range ideals {
		e := b.comp.SourceSamples(b.Branch, instants)
		if b.A == b.B {
			if topology.SamplesZero(e) {
				b.skip = true
				continue
			}
			b.demoted = true
			markShort(b, b.A)
			continue
		}

		implied, fresh := potentials.Add(b.A, b.B, e)
		switch {
		case fresh:
		case topology.SamplesEqual(implied, e):
			b.demoted = true
		case topology.SamplesZero(implied) || topology.SamplesZero(e):
			b.demoted = true
			markShort(b, b.A)
		default:
			b.demoted = true
			p.conflict = append(p.conflict, b.comp.ID)
		}
	}

	if len(shorted) == 0 {
		return
	}
	// Zero-volt ideal branches inside the shorted group carry the short too.
	for _, b := range ideals {
		if !b.Source && shorted[b.A] && shorted[b.B] {
			shortComps[b.comp.ID] = true
		}
	}
	for n := range shorted {
		p.shortNodes = append(p.shortNodes, n)
	}
	sort.Ints(p.shortNodes)
	for id := range shortComps {
		p.shortComponents = append(p.shortComponents, id)
	}
	sort.Strings(p.shortComponents)
}

func (p *plan) isShorted(n int) bool {
	_, found := slices.BinarySearch(p.shortNodes, n)
	return found
}

// methodSignature lists the integration method stamped for every dynamic branch.
func methodSignature(methods map[string]util.IntegrationMethod, dc bool) string {
	if dc {
		return "op"
	}
	ids := make([]string, 0, len(methods))
	for id := range methods {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var sb strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&sb, "%s:%s;", id, methods[id])
	}
	return sb.String()
}
