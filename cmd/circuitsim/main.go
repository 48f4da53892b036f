package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/edp1096/toy-circuit/pkg/circuit"
	"github.com/edp1096/toy-circuit/pkg/config"
	"github.com/edp1096/toy-circuit/pkg/metrics"
)

const usage = `usage: circuitsim <command> [flags] <circuit.json>

commands:
  run       step the circuit and print probe samples
  op        print the DC operating point
  validate  check the circuit topology
  sweep     sweep one component property over DC operating points
`

var errInvalid = errors.New("circuit rejected")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = runCommand(ctx, args)
	case "op":
		err = opCommand(args)
	case "validate":
		err = validateCommand(args)
	case "sweep":
		err = sweepCommand(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintf(os.Stderr, "circuitsim: %v\n", err)
		}
		os.Exit(1)
	}
}

// env is what every subcommand needs: parsed config, a logger and the circuit path.
type env struct {
	cfg     *config.Simulation
	logger  *zap.Logger
	metrics *metrics.Collector
	path    string
}

func setup(name string, args []string, extra func(*pflag.FlagSet)) (*env, error) {
	f := pflag.NewFlagSet(name, pflag.ContinueOnError)
	config.RegisterFlags(f)
	configPath := f.String("config", config.DefaultFile, "config file")
	if extra != nil {
		extra(f)
	}
	if err := f.Parse(args); err != nil {
		return nil, err
	}
	if f.NArg() != 1 {
		return nil, fmt.Errorf("%s: expected one circuit file, got %d", name, f.NArg())
	}

	cfg, err := config.Load(f, *configPath)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector("circuitsim"),
		path:    f.Arg(0),
	}, nil
}

func (e *env) load() (*circuit.Circuit, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, fmt.Errorf("reading circuit: %w", err)
	}
	return circuit.FromJSON(data,
		circuit.WithLogger(e.logger),
		circuit.WithMetrics(e.metrics),
		circuit.WithSettings(e.cfg.CircuitSettings()),
		circuit.WithSolverOptions(e.cfg.SolverOptions()),
	)
}
