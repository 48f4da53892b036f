package analysis

import (
	"fmt"

	"github.com/edp1096/toy-circuit/pkg/netlist"
)

// DCSweep steps one numeric parameter of one component and records the operating
// point at every value.
type DCSweep struct {
	*Results
	componentID string
	key         string
	sweepVals   []float64
	opts        []Option
}

func NewDCSweep(componentID, key string, start, stop, increment float64, opts ...Option) (*DCSweep, error) {
	if increment <= 0 {
		return nil, fmt.Errorf("sweep increment must be positive, got %g", increment)
	}
	if stop < start {
		return nil, fmt.Errorf("sweep stop %g is below start %g", stop, start)
	}

	dc := &DCSweep{
		Results:     NewResults(),
		componentID: componentID,
		key:         key,
		opts:        opts,
	}

	// Generate sweep values. The small slack keeps the stop value despite rounding.
	steps := int((stop-start)/increment + 1e-9)
	for i := 0; i <= steps; i++ {
		dc.sweepVals = append(dc.sweepVals, start+float64(i)*increment)
	}
	return dc, nil
}

func (dc *DCSweep) Values() []float64 { return dc.sweepVals }

// Execute runs the sweep against a copy of nl; nl itself is not modified.
func (dc *DCSweep) Execute(nl *netlist.Netlist) error {
	if nl == nil {
		return fmt.Errorf("netlist not set")
	}
	if _, ok := nl.Component(dc.componentID); !ok {
		return fmt.Errorf("component %s not found", dc.componentID)
	}

	solver := NewSolver(dc.opts...)
	for _, val := range dc.sweepVals {
		swept := nl.Clone()
		comp, _ := swept.Component(dc.componentID)
		if err := comp.Params.Set(dc.key, val); err != nil {
			return fmt.Errorf("setting %s.%s: %w", dc.componentID, dc.key, err)
		}

		solver.Prepare(swept)
		res := solver.OperatingPoint(0)
		if !res.Valid {
			return fmt.Errorf("invalid circuit at %s=%g: %s", dc.key, val, res.Diagnostics.Message)
		}
		if !res.Meta.Converged {
			return fmt.Errorf("convergence error at %s=%g", dc.key, val)
		}

		dc.StoreResult("SWEEP1", val, res.Solution())
	}

	return nil
}
