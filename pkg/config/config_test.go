package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-circuit/internal/consts"
)

func flags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(f)
	require.NoError(t, f.Parse(args))
	return f
}

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "circuitsim.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(flags(t), filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, consts.DefaultTimeStep, cfg.TimeStep)
	assert.Equal(t, consts.DefaultMaxIterations, cfg.MaxIterations)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.False(t, cfg.Adaptive)
	assert.Equal(t, 100, cfg.Steps())
}

func TestPriority(t *testing.T) {
	path := writeTOML(t, "dt = 0.002\nmax-iterations = 80\nlog-level = \"debug\"\n")
	t.Setenv("CIRCUITSIM_MAX_ITERATIONS", "90")
	t.Setenv("CIRCUITSIM_ADAPTIVE", "true")

	cfg, err := Load(flags(t, "--max-iterations=100"), path)
	require.NoError(t, err)

	assert.Equal(t, 0.002, cfg.TimeStep)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Adaptive)
	assert.Equal(t, 100, cfg.MaxIterations)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeTOML(t, "max-iterations = 80\n")
	t.Setenv("CIRCUITSIM_MAX_ITERATIONS", "90")

	cfg, err := Load(flags(t), path)
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.MaxIterations)
}

func TestInvalidConfig(t *testing.T) {
	_, err := Load(flags(t, "--dt=-1"), filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(flags(t, "--log-format=xml"), filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestConversions(t *testing.T) {
	cfg, err := Load(flags(t, "--adaptive", "--gmin=1e-10", "--duration=0.05"), filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	opts := cfg.SolverOptions()
	assert.Equal(t, 1e-10, opts.Gmin)
	assert.Equal(t, consts.MaxACSubsteps, opts.MaxACSubsteps)

	settings := cfg.CircuitSettings()
	assert.True(t, settings.EnableAdaptiveTimeStep)
	assert.Equal(t, consts.MaxAdaptiveDt, settings.MaxAdaptiveDt)
	assert.Equal(t, 5, cfg.Steps())

	logger, err := cfg.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
