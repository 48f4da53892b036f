package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"100", 100},
		{"4.7k", 4.7e3},
		{"10u", 10e-6},
		{"10uF", 10e-6},
		{"2.2 kΩ", 2.2e3},
		{"1meg", 1e6},
		{"1e-3", 1e-3},
		{"-5V", -5},
		{"3m", 3e-3},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseValue(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, tt.want*1e-12+1e-18)
		})
	}

	_, err := ParseValue("abc")
	assert.Error(t, err)
}

func TestFormatValueFactor(t *testing.T) {
	assert.Equal(t, "60.000 mA", FormatValueFactor(0.06, "A"))
	assert.Equal(t, "12.000 V", FormatValueFactor(12, "V"))
	assert.Equal(t, "4.700 kΩ", FormatValueFactor(4700, "Ω"))
	assert.Equal(t, "0.000 A", FormatValueFactor(0, "A"))
}

func TestIntegratorCoeff(t *testing.T) {
	assert.InDelta(t, 100.0, GetIntegratorCoeff(BackwardEulerMethod, 0.01), 1e-12)
	assert.InDelta(t, 200.0, GetIntegratorCoeff(TrapezoidalMethod, 0.01), 1e-12)
}
