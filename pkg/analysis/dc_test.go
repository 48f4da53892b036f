package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-circuit/pkg/device"
)

func TestDCSweep(t *testing.T) {
	dc, err := NewDCSweep("V1", device.KeyVoltage, 0, 12, 6)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 6, 12}, dc.Values())

	nl := divider()
	require.NoError(t, dc.Execute(nl))

	results := dc.GetResults()
	assert.Equal(t, []float64{0, 6, 12}, results["SWEEP1"])
	require.Len(t, results["V(2)"], 3)
	assert.InDelta(t, 3.0, results["V(2)"][1], 1e-9)
	assert.InDelta(t, 0.06, results["I(R1)"][2], 1e-9)

	assert.Equal(t, 12.0, nl.Components[0].Params.Voltage, "input netlist is untouched")
}

func TestDCSweepErrors(t *testing.T) {
	_, err := NewDCSweep("V1", device.KeyVoltage, 0, 1, 0)
	assert.Error(t, err)

	dc, err := NewDCSweep("V9", device.KeyVoltage, 0, 1, 1)
	require.NoError(t, err)
	assert.ErrorContains(t, dc.Execute(divider()), "V9 not found")

	dc, err = NewDCSweep("V1", device.KeyClosed, 0, 1, 1)
	require.NoError(t, err)
	assert.ErrorContains(t, dc.Execute(divider()), "not numeric")
}

func TestResultsSkipRepeatedPoint(t *testing.T) {
	r := NewResults()
	r.StoreResult("TIME", 1e-3, map[string]float64{"V(1)": 1})
	r.StoreResult("TIME", 1e-3, map[string]float64{"V(1)": 2})
	r.StoreResult("TIME", 2e-3, map[string]float64{"V(1)": 3})
	assert.Equal(t, []float64{1, 3}, r.GetResults()["V(1)"])
}
