package analysis

import (
	"go.uber.org/zap"

	"github.com/edp1096/toy-circuit/internal/consts"
	"github.com/edp1096/toy-circuit/pkg/metrics"
)

// Options are the numeric policies of the solver.
type Options struct {
	MaxIterations          int
	AbsTol                 float64
	RelTol                 float64
	Gmin                   float64
	ShortCircuitResistance float64
	ACSamplesPerPeriod     int
	MaxACSubsteps          int
}

func DefaultOptions() Options {
	return Options{
		MaxIterations:          consts.DefaultMaxIterations,
		AbsTol:                 consts.NewtonAbsTol,
		RelTol:                 consts.NewtonRelTol,
		Gmin:                   consts.Gmin,
		ShortCircuitResistance: consts.ShortCircuitResistance,
		ACSamplesPerPeriod:     consts.ACSamplesPerPeriod,
		MaxACSubsteps:          consts.MaxACSubsteps,
	}
}

type Option func(*Solver)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Solver) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOptions replaces the numeric policies. Zero fields keep their defaults.
func WithOptions(opts Options) Option {
	return func(s *Solver) {
		def := DefaultOptions()
		if opts.MaxIterations <= 0 {
			opts.MaxIterations = def.MaxIterations
		}
		if opts.AbsTol <= 0 {
			opts.AbsTol = def.AbsTol
		}
		if opts.RelTol <= 0 {
			opts.RelTol = def.RelTol
		}
		if opts.Gmin <= 0 {
			opts.Gmin = def.Gmin
		}
		if opts.ShortCircuitResistance <= 0 {
			opts.ShortCircuitResistance = def.ShortCircuitResistance
		}
		if opts.ACSamplesPerPeriod <= 0 {
			opts.ACSamplesPerPeriod = def.ACSamplesPerPeriod
		}
		if opts.MaxACSubsteps <= 0 {
			opts.MaxACSubsteps = def.MaxACSubsteps
		}
		s.opts = opts
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Solver) { s.metrics = m }
}
