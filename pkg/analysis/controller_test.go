package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepControllerRejectHalves(t *testing.T) {
	c := NewStepController(1e-3, 0.01)
	assert.Equal(t, 0.01, c.CurrentDt(0.01))

	assert.True(t, c.Reject())
	assert.InDelta(t, 0.005, c.CurrentDt(0.01), 1e-15)
	assert.True(t, c.Reject())
	assert.True(t, c.Reject())
	assert.True(t, c.Reject())
	assert.Equal(t, 1e-3, c.CurrentDt(0.01))
	assert.False(t, c.Reject())
	assert.Equal(t, 1e-3, c.CurrentDt(0.01))
}

func TestStepControllerGrowsAfterEasySolves(t *testing.T) {
	c := NewStepController(1e-3, 0.01)
	c.CurrentDt(0.01)
	c.Reject()
	c.Reject()
	assert.InDelta(t, 0.0025, c.CurrentDt(0.01), 1e-15)

	c.Accept(1, 0.01)
	c.Accept(2, 0.01)
	assert.InDelta(t, 0.0025, c.CurrentDt(0.01), 1e-15)
	c.Accept(3, 0.01)
	assert.InDelta(t, 0.003, c.CurrentDt(0.01), 1e-15)

	// A hard solve breaks the run.
	c.Accept(1, 0.01)
	c.Accept(9, 0.01)
	c.Accept(1, 0.01)
	assert.InDelta(t, 0.003, c.CurrentDt(0.01), 1e-15)
}

func TestStepControllerNeverExceedsRequested(t *testing.T) {
	c := NewStepController(1e-6, 0.01)
	assert.Equal(t, 0.002, c.CurrentDt(0.002))
	for i := 0; i < 30; i++ {
		c.Accept(1, 0.002)
	}
	assert.Equal(t, 0.002, c.CurrentDt(0.002))

	c.Reset()
	assert.Equal(t, 0.01, c.CurrentDt(1))
}
