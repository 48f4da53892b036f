package analysis

import (
	"math"

	"github.com/edp1096/toy-circuit/internal/consts"
)

// StepController adapts the internal step size from Newton feedback. It holds only
// scalar state and never looks at components.
type StepController struct {
	minDt, maxDt float64
	currentDt    float64
	window       []int // iteration counts of the latest accepted solves
}

func NewStepController(minDt, maxDt float64) *StepController {
	if minDt <= 0 {
		minDt = consts.MinAdaptiveDt
	}
	if maxDt < minDt {
		maxDt = minDt
	}
	return &StepController{minDt: minDt, maxDt: maxDt}
}

// CurrentDt is the next internal step size, never above requested.
func (c *StepController) CurrentDt(requested float64) float64 {
	if c.currentDt == 0 {
		c.currentDt = math.Min(requested, c.maxDt)
	}
	return math.Min(c.currentDt, requested)
}

// Reject halves the step after a failed solve. It reports false once the step
// is already at the floor.
func (c *StepController) Reject() bool {
	c.window = c.window[:0]
	if c.currentDt <= c.minDt {
		c.currentDt = c.minDt
		return false
	}
	c.currentDt = math.Max(c.currentDt/2, c.minDt)
	return true
}

// Accept records a converged solve and grows the step after a run of easy ones.
func (c *StepController) Accept(iterations int, requested float64) {
	c.window = append(c.window, iterations)
	if len(c.window) > consts.ConvergenceWindow {
		c.window = c.window[1:]
	}
	if len(c.window) < consts.ConvergenceWindow {
		return
	}
	for _, it := range c.window {
		if it > consts.EasyIterations {
			return
		}
	}
	c.currentDt = math.Min(c.currentDt*consts.AdaptiveGrowthFactor, math.Min(c.maxDt, requested))
	c.window = c.window[:0]
}

func (c *StepController) Reset() {
	c.currentDt = 0
	c.window = c.window[:0]
}
