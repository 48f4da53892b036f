package device

import (
	"math"

	"github.com/edp1096/toy-circuit/internal/consts"
)

const (
	maxExpArg = 40.0
	diodeGmin = 1e-12 // Minimum Conductance
)

// DiodeModel is the Shockley junction law with the linearization helpers Newton needs.
type DiodeModel struct {
	Is float64 // Saturation current
	N  float64 // Ideality Factor / Emission Coefficient
	Vt float64 // Thermal voltage
}

func NewDiodeModel(p Params) DiodeModel {
	return DiodeModel{
		Is: p.SaturationCurrent,
		N:  p.IdealityFactor,
		Vt: ThermalVoltage(consts.RoomTemperature),
	}
}

func ThermalVoltage(temp float64) float64 {
	if temp <= 0 {
		temp = consts.RoomTemperature
	}
	return consts.BOLTZMANN * temp / consts.CHARGE
}

func (d DiodeModel) nvt() float64 { return d.N * d.Vt }

// Current at junction voltage vd. Beyond the exponent clamp the curve continues
// linearly so the model stays continuous and monotonic.
func (d DiodeModel) Current(vd float64) float64 {
	nvt := d.nvt()

	// Forward bias and weak reverse bias
	if vd > -3.0*nvt {
		arg := vd / nvt
		if arg > maxExpArg {
			e := math.Exp(maxExpArg)
			return d.Is*(e*(1+arg-maxExpArg)-1) + diodeGmin*vd
		}
		return d.Is*(math.Exp(arg)-1) + diodeGmin*vd
	}

	return -d.Is + diodeGmin*vd
}

func (d DiodeModel) Conductance(vd float64) float64 {
	nvt := d.nvt()

	if vd > -3.0*nvt {
		arg := math.Min(vd/nvt, maxExpArg)
		return d.Is*math.Exp(arg)/nvt + diodeGmin
	}

	// Strong reverse bias
	return diodeGmin
}

// Linearize returns the Norton companion (gd, ieq) at vd: i = gd*v + ieq.
func (d DiodeModel) Linearize(vd float64) (gd, ieq float64) {
	gd = d.Conductance(vd)
	ieq = d.Current(vd) - gd*vd
	return gd, ieq
}

func (d DiodeModel) CriticalVoltage() float64 {
	nvt := d.nvt()
	return nvt * math.Log(nvt/(math.Sqrt2*d.Is))
}

// Limit restrains the Newton update of the junction voltage so the exponential
// cannot overflow between iterations. It reports whether vnew was changed.
func (d DiodeModel) Limit(vnew, vold float64) (float64, bool) {
	nvt := d.nvt()
	vcrit := d.CriticalVoltage()

	if vnew <= vcrit || math.Abs(vnew-vold) <= 2*nvt {
		return vnew, false
	}

	if vold > 0 {
		arg := 1 + (vnew-vold)/nvt
		if arg > 0 {
			return vold + nvt*math.Log(arg), true
		}
		return vcrit, true
	}
	return nvt * math.Log(vnew/nvt), true
}
