package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the solver and stepping metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	Solves          *prometheus.CounterVec
	Factorizations  *prometheus.CounterVec
	FactorCacheHits prometheus.Counter
	NewtonIters     prometheus.Histogram
	RejectedSteps   prometheus.Counter
	ShortCircuits   prometheus.Counter
}

// NewCollector creates a collector registered on its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	solves := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_total",
			Help:      "Total number of MNA solves by outcome",
		},
		[]string{"outcome"},
	)

	factorizations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "factorizations_total",
			Help:      "Total number of LU factorizations by backend",
		},
		[]string{"backend"},
	)

	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "factorization_cache_hits_total",
			Help:      "Total number of solves that reused a cached factorization",
		},
	)

	newtonIters := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "newton_iterations",
			Help:      "Newton iterations per solve",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
		},
	)

	rejected := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_steps_total",
			Help:      "Total number of internal steps rejected by the adaptive controller",
		},
	)

	shorts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "short_circuit_solves_total",
			Help:      "Total number of solves with a detected short circuit",
		},
	)

	registry.MustRegister(solves, factorizations, cacheHits, newtonIters, rejected, shorts)

	return &Collector{
		registry:        registry,
		Solves:          solves,
		Factorizations:  factorizations,
		FactorCacheHits: cacheHits,
		NewtonIters:     newtonIters,
		RejectedSteps:   rejected,
		ShortCircuits:   shorts,
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveSolve records one solve.
func (c *Collector) ObserveSolve(iterations int, converged, valid, shorted bool) {
	if c == nil {
		return
	}
	outcome := "converged"
	switch {
	case !valid:
		outcome = "invalid"
	case !converged:
		outcome = "not_converged"
	}
	c.Solves.WithLabelValues(outcome).Inc()
	if valid {
		c.NewtonIters.Observe(float64(iterations))
	}
	if shorted {
		c.ShortCircuits.Inc()
	}
}

func (c *Collector) FactorizationBuilt(dense bool) {
	if c == nil {
		return
	}
	backend := "sparse"
	if dense {
		backend = "dense"
	}
	c.Factorizations.WithLabelValues(backend).Inc()
}

func (c *Collector) FactorizationReused() {
	if c == nil {
		return
	}
	c.FactorCacheHits.Inc()
}

func (c *Collector) StepRejected() {
	if c == nil {
		return
	}
	c.RejectedSteps.Inc()
}
