package device

import "math"

// SourceVoltage is the open-circuit voltage of a source at time t.
func SourceVoltage(typ Type, p Params, t float64) float64 {
	switch typ {
	case PowerSource:
		return p.Voltage
	case ACVoltageSource:
		phaseRad := p.Phase * math.Pi / 180.0
		return p.Offset + p.Amplitude*math.Sin(2.0*math.Pi*p.Frequency*t+phaseRad)
	default:
		return 0
	}
}

// Fractions of the shortest period at which waveforms are compared.
var sampleFractions = [...]float64{0, 0.137, 0.389, 0.713}

// SampleInstants returns the instants used to compare source waveforms, starting at t.
func SampleInstants(t, maxFrequency float64) []float64 {
	if maxFrequency <= 0 {
		return []float64{t}
	}
	period := 1 / maxFrequency
	instants := make([]float64, len(sampleFractions))
	for i, f := range sampleFractions {
		instants[i] = t + f*period
	}
	return instants
}
