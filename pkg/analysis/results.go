package analysis

import (
	"github.com/edp1096/toy-circuit/pkg/util"
)

// Results stores named series, one value per sweep point or time point.
type Results struct {
	results map[string][]float64 // key: variable name, value: series
}

func NewResults() *Results {
	return &Results{results: make(map[string][]float64)}
}

// StoreResult appends one point. axis names the independent variable, e.g.
// "SWEEP1" or "TIME".
func (r *Results) StoreResult(axis string, at float64, solution map[string]float64) {
	// Ignore same point. 1.999999e-05 == 2.000000e-05
	if series := r.results[axis]; len(series) > 0 {
		last := series[len(series)-1]
		if at == last || util.FormatValueFactor(at, "") == util.FormatValueFactor(last, "") {
			return
		}
	}

	r.results[axis] = append(r.results[axis], at)
	for name, value := range solution {
		r.results[name] = append(r.results[name], value)
	}
}

func (r *Results) GetResults() map[string][]float64 {
	return r.results
}
