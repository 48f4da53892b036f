package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edp1096/toy-circuit/internal/consts"
	"github.com/edp1096/toy-circuit/pkg/analysis"
	"github.com/edp1096/toy-circuit/pkg/circuit"
)

const (
	DefaultFile = "circuitsim.toml"
	EnvPrefix   = "CIRCUITSIM_"
)

// Simulation holds every tunable of a simulation run.
type Simulation struct {
	TimeStep          float64 `koanf:"dt" validate:"gt=0"`
	Duration          float64 `koanf:"duration" validate:"gte=0"`
	Adaptive          bool    `koanf:"adaptive"`
	MinDt             float64 `koanf:"min-dt" validate:"gt=0"`
	MaxDt             float64 `koanf:"max-dt" validate:"gtefield=MinDt"`
	MaxInternalSolves int     `koanf:"max-solves" validate:"gt=0"`

	MaxIterations          int     `koanf:"max-iterations" validate:"gt=0"`
	AbsTol                 float64 `koanf:"abstol" validate:"gt=0"`
	RelTol                 float64 `koanf:"reltol" validate:"gt=0"`
	Gmin                   float64 `koanf:"gmin" validate:"gt=0"`
	ShortCircuitResistance float64 `koanf:"short-resistance" validate:"gt=0"`
	ACSamplesPerPeriod     int     `koanf:"ac-samples" validate:"gt=0"`
	MaxACSubsteps          int     `koanf:"max-ac-substeps" validate:"gt=0"`

	LogFormat string `koanf:"log-format" validate:"oneof=console json"`
	LogLevel  string `koanf:"log-level" validate:"oneof=debug info warn error"`

	Watch bool   `koanf:"watch"`
	Trace string `koanf:"trace"`
	Plot  string `koanf:"plot"`
	// Serve Prometheus metrics on this address while running, e.g. ":9090".
	MetricsAddr string `koanf:"metrics-addr"`
}

func defaults() map[string]any {
	return map[string]any{
		"dt":         consts.DefaultTimeStep,
		"duration":   1.0,
		"adaptive":   false,
		"min-dt":     consts.MinAdaptiveDt,
		"max-dt":     consts.MaxAdaptiveDt,
		"max-solves": consts.MaxInternalSolves,

		"max-iterations":   consts.DefaultMaxIterations,
		"abstol":           consts.NewtonAbsTol,
		"reltol":           consts.NewtonRelTol,
		"gmin":             consts.Gmin,
		"short-resistance": consts.ShortCircuitResistance,
		"ac-samples":       consts.ACSamplesPerPeriod,
		"max-ac-substeps":  consts.MaxACSubsteps,

		"log-format": "console",
		"log-level":  "info",

		"watch":        false,
		"trace":        "",
		"plot":         "",
		"metrics-addr": "",
	}
}

// RegisterFlags adds the simulation flags to f. Flag names equal config keys.
func RegisterFlags(f *pflag.FlagSet) {
	d := defaults()
	f.Float64("dt", d["dt"].(float64), "time step in seconds")
	f.Float64("duration", d["duration"].(float64), "simulated time in seconds")
	f.Bool("adaptive", false, "adapt the internal step size to Newton convergence")
	f.Float64("min-dt", d["min-dt"].(float64), "smallest adaptive step")
	f.Float64("max-dt", d["max-dt"].(float64), "largest adaptive step")
	f.Int("max-solves", d["max-solves"].(int), "internal solve budget per step")
	f.Int("max-iterations", d["max-iterations"].(int), "Newton iteration cap")
	f.Float64("abstol", d["abstol"].(float64), "Newton absolute tolerance")
	f.Float64("reltol", d["reltol"].(float64), "Newton relative tolerance")
	f.Float64("gmin", d["gmin"].(float64), "conductance added on every node")
	f.Float64("short-resistance", d["short-resistance"].(float64), "resistance of shorted ideal branches")
	f.Int("ac-samples", d["ac-samples"].(int), "samples per AC period")
	f.Int("max-ac-substeps", d["max-ac-substeps"].(int), "AC substep cap per step")
	f.String("log-format", "console", "log format: console or json")
	f.String("log-level", "info", "log level: debug, info, warn or error")
	f.Bool("watch", false, "re-run whenever the circuit file changes")
	f.String("trace", "", "write probe samples as CSV to this file")
	f.String("plot", "", "write a probe chart PNG to this file")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
}

// Load reads the configuration. Priority: flags > env > config file > defaults.
// A missing config file is not an error; an empty path means DefaultFile.
func Load(f *pflag.FlagSet, path string) (*Simulation, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(defaults()), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	// CIRCUITSIM_MAX_DT=0.001 sets max-dt.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", "-")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Simulation
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (s *Simulation) SolverOptions() analysis.Options {
	return analysis.Options{
		MaxIterations:          s.MaxIterations,
		AbsTol:                 s.AbsTol,
		RelTol:                 s.RelTol,
		Gmin:                   s.Gmin,
		ShortCircuitResistance: s.ShortCircuitResistance,
		ACSamplesPerPeriod:     s.ACSamplesPerPeriod,
		MaxACSubsteps:          s.MaxACSubsteps,
	}
}

func (s *Simulation) CircuitSettings() circuit.Settings {
	return circuit.Settings{
		TimeStep:               s.TimeStep,
		EnableAdaptiveTimeStep: s.Adaptive,
		MinAdaptiveDt:          s.MinDt,
		MaxAdaptiveDt:          s.MaxDt,
		MaxInternalSolves:      s.MaxInternalSolves,
	}
}

// Steps is the number of whole time steps covering Duration.
func (s *Simulation) Steps() int {
	if s.Duration <= 0 {
		return 0
	}
	n := int(s.Duration/s.TimeStep + 0.5)
	return max(n, 1)
}

// Logger builds the zap logger selected by LogFormat and LogLevel.
func (s *Simulation) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	cfg := zap.NewDevelopmentConfig()
	if s.LogFormat == "json" {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

type mapProvider map[string]any

func (p mapProvider) Read() (map[string]any, error) { return p, nil }

func (p mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("map provider does not support ReadBytes")
}
