package trace

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-circuit/pkg/circuit"
)

func probes() []circuit.Probe {
	return []circuit.Probe{
		{ID: "p1", Label: "V(out)", Kind: circuit.NodeVoltageProbe, Target: "C1:0"},
		{ID: "p2", Kind: circuit.ComponentCurrentProbe, Target: "R1"},
	}
}

func TestWriteCSV(t *testing.T) {
	r := NewRecorder(probes())
	r.Record(0.01, map[string]float64{"p1": 0.5, "p2": 0.095})
	r.Record(0.02, map[string]float64{"p1": 1})

	var buf bytes.Buffer
	require.NoError(t, r.WriteCSV(&buf))
	assert.Equal(t, "time,V(out),p2\n0.01,0.5,0.095\n0.02,1,0\n", buf.String())
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []float64{0.095, 0}, r.Series("p2"))
}

func TestSavePNG(t *testing.T) {
	r := NewRecorder(probes())
	for k := 1; k <= 5; k++ {
		r.Record(0.01*float64(k), map[string]float64{"p1": float64(k), "p2": 1 / float64(k)})
	}

	path := filepath.Join(t.TempDir(), "trace.png")
	require.NoError(t, r.SavePNG(path, "rc"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
