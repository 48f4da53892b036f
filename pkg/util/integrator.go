package util

type IntegrationMethod int

const (
	BackwardEulerMethod IntegrationMethod = iota
	TrapezoidalMethod
)

func (m IntegrationMethod) String() string {
	if m == TrapezoidalMethod {
		return "trapezoidal"
	}
	return "backward-euler"
}

// GetIntegratorCoeff returns a0 of the discretized derivative
// dx/dt ~ a0*(x_n - x_n-1) (+ history term for the trapezoidal rule).
func GetIntegratorCoeff(method IntegrationMethod, dt float64) float64 {
	switch method {
	case TrapezoidalMethod:
		return 2.0 / dt
	default:
		return 1.0 / dt
	}
}
