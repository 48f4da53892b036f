package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/edp1096/toy-circuit/pkg/analysis"
	"github.com/edp1096/toy-circuit/pkg/circuit"
	"github.com/edp1096/toy-circuit/pkg/device"
	"github.com/edp1096/toy-circuit/pkg/trace"
	"github.com/edp1096/toy-circuit/pkg/util"
	"github.com/edp1096/toy-circuit/pkg/validate"
)

func runCommand(ctx context.Context, args []string) error {
	e, err := setup("run", args, nil)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	if e.cfg.MetricsAddr != "" {
		go serveMetrics(ctx, e.cfg.MetricsAddr, e.metrics, e.logger)
	}

	if err := e.simulate(); err != nil && !e.cfg.Watch {
		return err
	}
	if !e.cfg.Watch {
		return nil
	}
	return watch(ctx, e.path, e.logger, func() {
		if err := e.simulate(); err != nil {
			e.logger.Error("simulation failed", zap.Error(err))
		}
	})
}

// simulate loads the circuit fresh and steps it for the configured duration.
func (e *env) simulate() error {
	ckt, err := e.load()
	if err != nil {
		return err
	}
	if err := report(ckt.ValidateSimulationTopology(0)); err != nil {
		return err
	}

	printSources(ckt)

	probes := ckt.GetAllObservationProbes()
	rec := trace.NewRecorder(probes)
	printHeader(probes)

	var last *analysis.Result
	for k := 0; k < e.cfg.Steps(); k++ {
		res := ckt.Step()
		if res == nil {
			break
		}
		last = res
		if !res.Valid {
			fmt.Printf("%9s  invalid: %s\n", util.FormatValueFactor(res.Time, "s"), res.Diagnostics.Message)
			break
		}
		samples := ckt.SampleProbes()
		rec.Record(ckt.SimulationTime(), samples)
		printRow(ckt.SimulationTime(), probes, samples)
	}

	if len(probes) == 0 && last != nil && last.Valid {
		printReadouts(ckt)
	}

	if e.cfg.Trace != "" {
		f, err := os.Create(e.cfg.Trace)
		if err != nil {
			return fmt.Errorf("creating trace file: %w", err)
		}
		defer f.Close()
		if err := rec.WriteCSV(f); err != nil {
			return err
		}
	}
	if e.cfg.Plot != "" && len(probes) > 0 {
		if err := rec.SavePNG(e.cfg.Plot, ckt.Name()); err != nil {
			return err
		}
	}
	return nil
}

func opCommand(args []string) error {
	e, err := setup("op", args, nil)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	ckt, err := e.load()
	if err != nil {
		return err
	}
	if err := report(ckt.ValidateSimulationTopology(0)); err != nil {
		return err
	}

	res := ckt.OperatingPoint()
	if !res.Valid || !res.Meta.Converged {
		return fmt.Errorf("operating point did not converge after %d iterations", res.Meta.Iterations)
	}
	fmt.Println("\nNode Voltages:")
	for n, v := range res.Voltages {
		fmt.Printf("V(%d) = %s\n", n, util.FormatValueFactor(v, "V"))
	}
	printReadouts(ckt)
	return nil
}

func validateCommand(args []string) error {
	e, err := setup("validate", args, nil)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	ckt, err := e.load()
	if err != nil {
		return err
	}
	if err := report(ckt.ValidateSimulationTopology(0)); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func sweepCommand(args []string) error {
	var component, key, start, stop, step string
	e, err := setup("sweep", args, func(f *pflag.FlagSet) {
		f.StringVar(&component, "component", "", "component id to sweep")
		f.StringVar(&key, "key", "", "numeric property to sweep, e.g. voltage")
		f.StringVar(&start, "start", "0", "first value, SPICE suffixes allowed")
		f.StringVar(&stop, "stop", "", "last value, SPICE suffixes allowed")
		f.StringVar(&step, "step", "", "increment, SPICE suffixes allowed")
	})
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	var bounds [3]float64
	for i, s := range []string{start, stop, step} {
		if bounds[i], err = util.ParseValue(s); err != nil {
			return fmt.Errorf("sweep bounds: %w", err)
		}
	}

	ckt, err := e.load()
	if err != nil {
		return err
	}
	sweep, err := analysis.NewDCSweep(component, key, bounds[0], bounds[1], bounds[2],
		analysis.WithLogger(e.logger.Named("sweep")),
		analysis.WithMetrics(e.metrics),
		analysis.WithOptions(e.cfg.SolverOptions()),
	)
	if err != nil {
		return err
	}
	if err := sweep.Execute(ckt.Netlist()); err != nil {
		return err
	}
	printSweep(sweep.GetResults())
	return nil
}

func report(vr validate.Result) error {
	for _, w := range vr.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %v\n", w)
	}
	if vr.Error != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", vr.Error)
		return errInvalid
	}
	return nil
}

func printSources(ckt *circuit.Circuit) {
	for _, id := range ckt.ComponentIDs() {
		comp, _ := ckt.Component(id)
		params, _ := comp.Params()
		switch comp.Type {
		case device.PowerSource:
			fmt.Printf("%s: DC %s\n", id, util.FormatValueFactor(params.Voltage, "V"))
		case device.ACVoltageSource:
			fmt.Printf("%s: AC %s at %s\n", id, util.FormatValueFactor(params.Amplitude, "V"), util.FormatFrequency(params.Frequency))
		}
	}
}

func printHeader(probes []circuit.Probe) {
	if len(probes) == 0 {
		return
	}
	fmt.Printf("%9s", "time")
	for _, p := range probes {
		fmt.Printf("  %12s", p.Name())
	}
	fmt.Println()
}

func printRow(t float64, probes []circuit.Probe, samples map[string]float64) {
	if len(probes) == 0 {
		return
	}
	fmt.Printf("%9s", util.FormatValueFactor(t, "s"))
	for _, p := range probes {
		fmt.Printf("  %12s", util.FormatValueFactor(samples[p.ID], probeUnit(p.Kind)))
	}
	fmt.Println()
}

func probeUnit(k circuit.ProbeKind) string {
	if k == circuit.NodeVoltageProbe {
		return "V"
	}
	return "A"
}

func printReadouts(ckt *circuit.Circuit) {
	fmt.Println("\nComponents:")
	for _, id := range ckt.ComponentIDs() {
		v, _ := ckt.ComponentVoltage(id)
		i, _ := ckt.ComponentCurrent(id)
		p, _ := ckt.ComponentPower(id)
		fmt.Printf("%-8s V=%-10s I=%-10s P=%s\n", id,
			util.FormatValueFactor(v, "V"),
			util.FormatValueFactor(i, "A"),
			util.FormatValueFactor(p, "W"))
	}
}

func printSweep(results map[string][]float64) {
	sweep := results["SWEEP1"]
	var names []string
	for name := range results {
		if name != "SWEEP1" {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	fmt.Printf("\nDC Sweep Results (%d points):\n", len(sweep))
	for i, x := range sweep {
		fmt.Printf("%-10s", util.FormatValueFactor(x, ""))
		for _, name := range names {
			unit := "A"
			if strings.HasPrefix(name, "V(") {
				unit = "V"
			}
			fmt.Printf("  %s=%s", name, util.FormatValueFactor(results[name][i], unit))
		}
		fmt.Println()
	}
}
