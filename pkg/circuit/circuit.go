package circuit

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edp1096/toy-circuit/internal/consts"
	"github.com/edp1096/toy-circuit/pkg/analysis"
	"github.com/edp1096/toy-circuit/pkg/device"
	"github.com/edp1096/toy-circuit/pkg/metrics"
	"github.com/edp1096/toy-circuit/pkg/netlist"
	"github.com/edp1096/toy-circuit/pkg/topology"
	"github.com/edp1096/toy-circuit/pkg/wireflow"
)

var (
	ErrDuplicateID      = errors.New("duplicate id")
	ErrUnknownComponent = errors.New("unknown component")
	ErrUnknownWire      = errors.New("unknown wire")
	ErrUnknownProbe     = errors.New("unknown probe")
)

// Settings control how Step advances time.
type Settings struct {
	TimeStep               float64
	EnableAdaptiveTimeStep bool
	MinAdaptiveDt          float64
	MaxAdaptiveDt          float64
	MaxInternalSolves      int
}

func DefaultSettings() Settings {
	return Settings{
		TimeStep:          consts.DefaultTimeStep,
		MinAdaptiveDt:     consts.MinAdaptiveDt,
		MaxAdaptiveDt:     consts.MaxAdaptiveDt,
		MaxInternalSolves: consts.MaxInternalSolves,
	}
}

// Circuit owns the components, wires and probes of one circuit together with
// the derived topology, caches and solver. It is not safe for concurrent use.
type Circuit struct {
	name     string
	logger   *zap.Logger
	metrics  *metrics.Collector
	settings Settings

	components []*device.Component
	byID       map[string]*device.Component
	wires      []*topology.Wire
	wireByID   map[string]*topology.Wire
	probes     []Probe

	version      uint64
	topo         *topology.Topology
	nodesDirty   bool
	solverDirty  bool
	connectivity *topology.ConnectivityCache
	positions    *topology.PositionCache

	solver     *analysis.Solver
	solverOpts []analysis.Option
	controller *analysis.StepController

	simTime    float64
	lastResult *analysis.Result
	flow       *wireflow.Analyzer
	flowResult *analysis.Result
	flowTopo   uint64
}

type Option func(*Circuit)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Circuit) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Circuit) { c.metrics = m }
}

func WithSettings(s Settings) Option {
	return func(c *Circuit) {
		def := DefaultSettings()
		if s.TimeStep <= 0 {
			s.TimeStep = def.TimeStep
		}
		if s.MinAdaptiveDt <= 0 {
			s.MinAdaptiveDt = def.MinAdaptiveDt
		}
		if s.MaxAdaptiveDt <= 0 {
			s.MaxAdaptiveDt = def.MaxAdaptiveDt
		}
		if s.MaxInternalSolves <= 0 {
			s.MaxInternalSolves = def.MaxInternalSolves
		}
		c.settings = s
	}
}

// WithSolverOptions sets the numeric policies of the owned solver.
func WithSolverOptions(opts analysis.Options) Option {
	return func(c *Circuit) {
		c.solverOpts = append(c.solverOpts, analysis.WithOptions(opts))
	}
}

// WithSolver attaches a caller-built solver instead of the owned one.
func WithSolver(s *analysis.Solver) Option {
	return func(c *Circuit) {
		c.solver = s
		c.solverOpts = nil
	}
}

func New(name string, opts ...Option) *Circuit {
	c := &Circuit{
		name:         name,
		logger:       zap.NewNop(),
		settings:     DefaultSettings(),
		byID:         make(map[string]*device.Component),
		wireByID:     make(map[string]*topology.Wire),
		connectivity: topology.NewConnectivityCache(),
		positions:    topology.NewPositionCache(),
		nodesDirty:   true,
		solverDirty:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.solver == nil {
		solverOpts := append([]analysis.Option{
			analysis.WithLogger(c.logger.Named("solver")),
			analysis.WithMetrics(c.metrics),
		}, c.solverOpts...)
		c.solver = analysis.NewSolver(solverOpts...)
	}
	c.controller = analysis.NewStepController(c.settings.MinAdaptiveDt, c.settings.MaxAdaptiveDt)
	return c
}

func (c *Circuit) Name() string { return c.name }

func (c *Circuit) Settings() Settings { return c.settings }

// AddComponent takes ownership of comp. A missing id is generated.
func (c *Circuit) AddComponent(comp *device.Component) error {
	if comp == nil {
		panic("circuit: AddComponent called with a nil component")
	}
	if comp.ID == "" {
		comp.ID = uuid.NewString()
	}
	if _, exists := c.byID[comp.ID]; exists {
		return fmt.Errorf("adding component %s: %w", comp.ID, ErrDuplicateID)
	}
	if len(comp.Nodes) != comp.TerminalCount() {
		comp.Nodes = make([]int, comp.TerminalCount())
	}
	for i := range comp.Nodes {
		comp.Nodes[i] = -1
	}
	if comp.Properties == nil {
		comp.Properties = device.Properties{}
	}

	c.components = append(c.components, comp)
	c.byID[comp.ID] = comp
	c.nodesDirty = true
	return nil
}

// RemoveComponent deletes a component. Wire ends bound to it stay where its
// terminals were, unbound.
func (c *Circuit) RemoveComponent(id string) error {
	comp, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("removing component %s: %w", id, ErrUnknownComponent)
	}

	terminals := c.positions.Positions(comp)
	for _, w := range c.wires {
		for _, end := range []*topology.WireEnd{&w.A, &w.B} {
			if end.Ref != nil && end.Ref.ComponentID == id {
				if end.Ref.TerminalIndex < len(terminals) {
					end.Point = terminals[end.Ref.TerminalIndex]
				}
				end.Ref = nil
			}
		}
	}

	c.components = slices.DeleteFunc(c.components, func(x *device.Component) bool { return x.ID == id })
	delete(c.byID, id)
	c.connectivity.Forget(id)
	c.positions.Forget(id)
	c.nodesDirty = true
	return nil
}

// AddWire takes ownership of w. Bound ends must reference existing terminals.
func (c *Circuit) AddWire(w *topology.Wire) error {
	if w == nil {
		panic("circuit: AddWire called with a nil wire")
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if _, exists := c.wireByID[w.ID]; exists {
		return fmt.Errorf("adding wire %s: %w", w.ID, ErrDuplicateID)
	}
	for _, end := range w.Ends() {
		if end.Ref == nil {
			continue
		}
		comp, ok := c.byID[end.Ref.ComponentID]
		if !ok {
			return fmt.Errorf("adding wire %s: %w %s", w.ID, ErrUnknownComponent, end.Ref.ComponentID)
		}
		if end.Ref.TerminalIndex < 0 || end.Ref.TerminalIndex >= comp.TerminalCount() {
			return fmt.Errorf("adding wire %s: %s has no terminal %d", w.ID, comp, end.Ref.TerminalIndex)
		}
	}

	c.wires = append(c.wires, w)
	c.wireByID[w.ID] = w
	c.nodesDirty = true
	return nil
}

func (c *Circuit) RemoveWire(id string) error {
	if _, ok := c.wireByID[id]; !ok {
		return fmt.Errorf("removing wire %s: %w", id, ErrUnknownWire)
	}
	c.wires = slices.DeleteFunc(c.wires, func(w *topology.Wire) bool { return w.ID == id })
	delete(c.wireByID, id)
	c.nodesDirty = true
	return nil
}

// MoveComponent places a component. Its terminals move with it, so nodes are rebuilt.
func (c *Circuit) MoveComponent(id string, x, y, rotation float64) error {
	comp, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("moving component %s: %w", id, ErrUnknownComponent)
	}
	if comp.X == x && comp.Y == y && comp.Rotation == rotation {
		return nil
	}
	comp.X, comp.Y, comp.Rotation = x, y, rotation
	c.nodesDirty = true
	return nil
}

// SetTerminalExtension offsets one terminal from its default local position.
func (c *Circuit) SetTerminalExtension(id string, terminal int, offset device.Point) error {
	comp, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("extending terminal of %s: %w", id, ErrUnknownComponent)
	}
	if terminal < 0 || terminal >= comp.TerminalCount() {
		return fmt.Errorf("extending terminal of %s: no terminal %d", comp, terminal)
	}
	if comp.TerminalExtensions == nil {
		comp.TerminalExtensions = make(map[int]device.Point)
	}
	comp.TerminalExtensions[terminal] = offset
	c.nodesDirty = true
	return nil
}

// SetComponentProperty edits one raw property. Parameters do not move terminals,
// so only the solver is marked dirty.
func (c *Circuit) SetComponentProperty(id, key string, value any) error {
	comp, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("setting %s of %s: %w", key, id, ErrUnknownComponent)
	}
	comp.SetProperty(key, value)
	c.solverDirty = true
	return nil
}

// RebuildNodes recomputes every node assignment from scratch and bumps the
// Topology Version. Dynamic history counters restart so the next stamp uses
// backward Euler.
func (c *Circuit) RebuildNodes() {
	c.version++
	c.topo = topology.Build(c.version, c.components, c.wires, c.positions.Positions)

	for _, comp := range c.components {
		copy(comp.Nodes, c.topo.ComponentNodes[comp.ID])
		comp.State.ResetHistory()
	}
	c.nodesDirty = false
	c.solverDirty = true

	c.logger.Debug("nodes rebuilt",
		zap.Uint64("topologyVersion", c.version),
		zap.Int("nodes", c.topo.NodeCount),
		zap.Int("components", len(c.components)),
		zap.Int("wires", len(c.wires)))
}

func (c *Circuit) ensureNodes() {
	if c.nodesDirty || c.topo == nil {
		c.RebuildNodes()
	}
}

// MarkSolverCircuitDirty forces the next step to hand the solver a fresh netlist.
func (c *Circuit) MarkSolverCircuitDirty() {
	c.solverDirty = true
}

// TopologyVersion is the version of the current node assignment.
func (c *Circuit) TopologyVersion() uint64 { return c.version }

// Topology returns the current node assignment, rebuilding it when stale.
func (c *Circuit) Topology() *topology.Topology {
	c.ensureNodes()
	return c.topo
}

// Netlist snapshots the circuit for the solver.
func (c *Circuit) Netlist() *netlist.Netlist {
	c.ensureNodes()

	nl := &netlist.Netlist{
		Meta:       netlist.Meta{Version: netlist.Version, TopologyVersion: c.version},
		Nodes:      make([]netlist.Node, c.topo.NodeCount),
		Components: make([]netlist.ComponentStamp, 0, len(c.components)),
	}
	for i := range nl.Nodes {
		nl.Nodes[i] = netlist.Node{Index: i, Ground: c.topo.IsGroundNode(i)}
	}
	for _, comp := range c.components {
		params, coerced := comp.Params()
		nl.Components = append(nl.Components, netlist.ComponentStamp{
			ID:        comp.ID,
			Type:      comp.Type,
			Nodes:     slices.Clone(comp.Nodes),
			Params:    params,
			Coerced:   coerced,
			State:     comp.State,
			Connected: c.IsComponentConnected(comp.ID),
		})
	}
	return nl
}
