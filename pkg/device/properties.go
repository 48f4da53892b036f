package device

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/edp1096/toy-circuit/pkg/util"
)

const (
	KeyVoltage            = "voltage"
	KeyInternalResistance = "internalResistance"
	KeyAmplitude          = "amplitude"
	KeyFrequency          = "frequency"
	KeyPhase              = "phase"
	KeyOffset             = "offset"
	KeyResistance         = "resistance"
	KeyRatedPower         = "ratedPower"
	KeyMaxResistance      = "maxResistance"
	KeyPosition           = "position"
	KeyClosed             = "closed"
	KeyCapacitance        = "capacitance"
	KeyInductance         = "inductance"
	KeyIntegrationMethod  = "integrationMethod"
	KeySaturationCurrent  = "saturationCurrent"
	KeyIdealityFactor     = "idealityFactor"
)

// Properties is the raw, type-specific property bag as edited by the user and persisted.
// Values are kept as given so documents round-trip exactly; Params coerces them.
type Properties map[string]any

func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	clone := make(Properties, len(p))
	for k, v := range p {
		clone[k] = v
	}
	return clone
}

// Float reads a numeric property. Strings accept unit suffixes ("4.7k", "10u").
func (p Properties) Float(key string) (float64, bool) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		if f, err := util.ParseValue(v); err == nil {
			return f, true
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func (p Properties) Bool(key string) (bool, bool) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return false, false
	}
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	}
	if f, ok := p.Float(key); ok {
		return f != 0, true
	}
	return false, false
}

func (p Properties) String(key string) (string, bool) {
	raw, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

var defaultProperties = map[Type]Properties{
	PowerSource:     {KeyVoltage: 12.0, KeyInternalResistance: 0.0},
	ACVoltageSource: {KeyAmplitude: 10.0, KeyFrequency: 50.0, KeyPhase: 0.0, KeyOffset: 0.0, KeyInternalResistance: 0.0},
	Resistor:        {KeyResistance: 100.0},
	Bulb:            {KeyResistance: 50.0, KeyRatedPower: 5.0},
	Rheostat:        {KeyMaxResistance: 100.0, KeyPosition: 0.5},
	Switch:          {KeyClosed: false},
	Ammeter:         {KeyResistance: 0.0},
	Voltmeter:       {},
	Capacitor:       {KeyCapacitance: 1e-3, KeyIntegrationMethod: MethodAuto.String()},
	Inductor:        {KeyInductance: 0.1, KeyIntegrationMethod: MethodAuto.String()},
	Diode:           {KeySaturationCurrent: 1e-14, KeyIdealityFactor: 1.0},
	Ground:          {},
	BlackBox:        {},
}

func DefaultProperties(typ Type) Properties {
	return defaultProperties[typ].Clone()
}

// IntegrationMethod selects the companion model of a dynamic component.
type IntegrationMethod int

const (
	MethodAuto IntegrationMethod = iota
	MethodBackwardEuler
	MethodTrapezoidal
)

func (m IntegrationMethod) String() string {
	switch m {
	case MethodBackwardEuler:
		return "backward-euler"
	case MethodTrapezoidal:
		return "trapezoidal"
	default:
		return "auto"
	}
}

func ParseIntegrationMethod(s string) (IntegrationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return MethodAuto, nil
	case "backward-euler", "be", "euler":
		return MethodBackwardEuler, nil
	case "trapezoidal", "tr", "trap":
		return MethodTrapezoidal, nil
	}
	return MethodAuto, fmt.Errorf("unknown integration method %q", s)
}

func (m IntegrationMethod) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *IntegrationMethod) UnmarshalText(text []byte) error {
	parsed, err := ParseIntegrationMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Params is the coerced, solver-ready view of a component's properties.
type Params struct {
	Voltage            float64           `json:"voltage,omitempty"`
	InternalResistance float64           `json:"internalResistance,omitempty"`
	Amplitude          float64           `json:"amplitude,omitempty"`
	Frequency          float64           `json:"frequency,omitempty"`
	Phase              float64           `json:"phase,omitempty"`
	Offset             float64           `json:"offset,omitempty"`
	Resistance         float64           `json:"resistance,omitempty"`
	RatedPower         float64           `json:"ratedPower,omitempty"`
	MaxResistance      float64           `json:"maxResistance,omitempty"`
	Position           float64           `json:"position,omitempty"`
	Closed             bool              `json:"closed,omitempty"`
	Capacitance        float64           `json:"capacitance,omitempty"`
	Inductance         float64           `json:"inductance,omitempty"`
	Method             IntegrationMethod `json:"integrationMethod,omitempty"`
	SaturationCurrent  float64           `json:"saturationCurrent,omitempty"`
	IdealityFactor     float64           `json:"idealityFactor,omitempty"`
}

type check func(float64) bool

func finite(v float64) bool      { return !math.IsNaN(v) && !math.IsInf(v, 0) }
func nonNegative(v float64) bool { return finite(v) && v >= 0 }
func positive(v float64) bool    { return finite(v) && v > 0 }

// Params coerces the property bag. Missing keys take the type default silently;
// present but unusable values take the default and are reported in coerced.
func (c *Component) Params() (params Params, coerced []string) {
	defaults := defaultProperties[c.Type]

	num := func(key string, ok check) float64 {
		def, _ := defaults.Float(key)
		if _, present := c.Properties[key]; !present {
			return def
		}
		v, parsed := c.Properties.Float(key)
		if !parsed || !ok(v) {
			coerced = append(coerced, key)
			return def
		}
		return v
	}

	switch c.Type {
	case PowerSource:
		params.Voltage = num(KeyVoltage, finite)
		params.InternalResistance = num(KeyInternalResistance, nonNegative)
	case ACVoltageSource:
		params.Amplitude = num(KeyAmplitude, finite)
		params.Frequency = num(KeyFrequency, nonNegative)
		params.Phase = num(KeyPhase, finite)
		params.Offset = num(KeyOffset, finite)
		params.InternalResistance = num(KeyInternalResistance, nonNegative)
	case Resistor, Ammeter:
		params.Resistance = num(KeyResistance, nonNegative)
	case Bulb:
		params.Resistance = num(KeyResistance, nonNegative)
		params.RatedPower = num(KeyRatedPower, positive)
	case Voltmeter:
		params.Resistance = math.Inf(1)
		if _, present := c.Properties[KeyResistance]; present {
			v, parsed := c.Properties.Float(KeyResistance)
			if parsed && !math.IsNaN(v) && v > 0 {
				params.Resistance = v
			} else {
				coerced = append(coerced, KeyResistance)
			}
		}
	case Rheostat:
		params.MaxResistance = num(KeyMaxResistance, positive)
		params.Position = num(KeyPosition, finite)
		if params.Position < 0 || params.Position > 1 {
			params.Position = math.Min(1, math.Max(0, params.Position))
			coerced = append(coerced, KeyPosition)
		}
	case Switch:
		if _, present := c.Properties[KeyClosed]; present {
			closed, ok := c.Properties.Bool(KeyClosed)
			if !ok {
				coerced = append(coerced, KeyClosed)
			}
			params.Closed = closed
		}
	case Capacitor:
		params.Capacitance = num(KeyCapacitance, positive)
		params.Method = c.method(&coerced)
	case Inductor:
		params.Inductance = num(KeyInductance, positive)
		params.Method = c.method(&coerced)
	case Diode:
		params.SaturationCurrent = num(KeySaturationCurrent, positive)
		params.IdealityFactor = num(KeyIdealityFactor, positive)
	case Ground, BlackBox:
	}

	return params, coerced
}

func (c *Component) method(coerced *[]string) IntegrationMethod {
	raw, present := c.Properties[KeyIntegrationMethod]
	if !present {
		return MethodAuto
	}
	s, ok := raw.(string)
	if !ok {
		*coerced = append(*coerced, KeyIntegrationMethod)
		return MethodAuto
	}
	m, err := ParseIntegrationMethod(s)
	if err != nil {
		*coerced = append(*coerced, KeyIntegrationMethod)
	}
	return m
}

// RheostatSegments splits the track resistance at the slider: end A to slider, slider to end B.
func (p Params) RheostatSegments() (float64, float64) {
	return p.MaxResistance * p.Position, p.MaxResistance * (1 - p.Position)
}

// Set assigns one numeric parameter by property key.
func (p *Params) Set(key string, v float64) error {
	switch key {
	case KeyVoltage:
		p.Voltage = v
	case KeyInternalResistance:
		p.InternalResistance = v
	case KeyAmplitude:
		p.Amplitude = v
	case KeyFrequency:
		p.Frequency = v
	case KeyPhase:
		p.Phase = v
	case KeyOffset:
		p.Offset = v
	case KeyResistance:
		p.Resistance = v
	case KeyRatedPower:
		p.RatedPower = v
	case KeyMaxResistance:
		p.MaxResistance = v
	case KeyPosition:
		p.Position = math.Min(1, math.Max(0, v))
	case KeyCapacitance:
		p.Capacitance = v
	case KeyInductance:
		p.Inductance = v
	case KeySaturationCurrent:
		p.SaturationCurrent = v
	case KeyIdealityFactor:
		p.IdealityFactor = v
	default:
		return fmt.Errorf("parameter %q is not numeric", key)
	}
	return nil
}
