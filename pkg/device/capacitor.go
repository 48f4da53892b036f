package device

import "github.com/edp1096/toy-circuit/pkg/util"

// CapacitorCompanion returns the Norton equivalent (geq, ieq) of a capacitor over one
// step of length dt, such that the branch current is i = geq*v + ieq.
//
//	BE: geq = C/dt,  i = geq*(v - vprev)
//	TR: geq = 2C/dt, i = geq*(v - vprev) - iprev
func CapacitorCompanion(capacitance float64, method util.IntegrationMethod, dt float64, s DynamicState) (geq, ieq float64) {
	geq = capacitance * util.GetIntegratorCoeff(method, dt)
	ieq = -geq * s.PrevVoltage
	if method == util.TrapezoidalMethod {
		ieq -= s.PrevCurrent
	}
	return geq, ieq
}

// CommitCapacitor records an accepted step.
func (s *DynamicState) CommitCapacitor(capacitance, v, i float64) {
	s.PrevVoltage = v
	s.PrevCurrent = i
	s.PrevCharge = capacitance * v
	s.HistorySteps++
}
