package device

import "github.com/edp1096/toy-circuit/pkg/util"

// InductorCompanion returns the Norton equivalent of an inductor, i = geq*v + ieq.
//
//	BE: geq = dt/L,  ieq = iprev
//	TR: geq = dt/2L, ieq = iprev + geq*vprev
func InductorCompanion(inductance float64, method util.IntegrationMethod, dt float64, s DynamicState) (geq, ieq float64) {
	geq = 1 / (inductance * util.GetIntegratorCoeff(method, dt))
	ieq = s.PrevCurrent
	if method == util.TrapezoidalMethod {
		ieq += geq * s.PrevVoltage
	}
	return geq, ieq
}

func (s *DynamicState) CommitInductor(v, i float64) {
	s.PrevVoltage = v
	s.PrevCurrent = i
	s.HistorySteps++
}

// ResetHistory forgets the step count so the next solve starts with backward Euler.
// Stored voltage, current and charge are kept.
func (s *DynamicState) ResetHistory() {
	s.HistorySteps = 0
}
