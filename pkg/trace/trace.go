package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/edp1096/toy-circuit/pkg/circuit"
)

// Recorder collects probe samples over simulation time.
type Recorder struct {
	probes []circuit.Probe
	times  []float64
	series map[string][]float64
}

func NewRecorder(probes []circuit.Probe) *Recorder {
	r := &Recorder{probes: probes, series: make(map[string][]float64, len(probes))}
	for _, p := range probes {
		r.series[p.ID] = nil
	}
	return r
}

// Record appends one row. Probes missing from samples record zero.
func (r *Recorder) Record(t float64, samples map[string]float64) {
	r.times = append(r.times, t)
	for _, p := range r.probes {
		r.series[p.ID] = append(r.series[p.ID], samples[p.ID])
	}
}

func (r *Recorder) Len() int { return len(r.times) }

// Series returns the samples of one probe, nil for unknown ids.
func (r *Recorder) Series(id string) []float64 { return r.series[id] }

// WriteCSV writes a header of probe names followed by one row per recorded time.
func (r *Recorder) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{"time"}
	for _, p := range r.probes {
		header = append(header, p.Name())
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing trace header: %w", err)
	}

	row := make([]string, len(header))
	for i, t := range r.times {
		row[0] = strconv.FormatFloat(t, 'g', -1, 64)
		for k, p := range r.probes {
			row[k+1] = strconv.FormatFloat(r.series[p.ID][i], 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing trace row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Plot draws every probe as a line over time.
func (r *Recorder) Plot(title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Add(plotter.NewGrid())

	var lines []any
	for _, pr := range r.probes {
		xys := make(plotter.XYs, len(r.times))
		for i, t := range r.times {
			xys[i].X = t
			xys[i].Y = r.series[pr.ID][i]
		}
		lines = append(lines, pr.Name(), xys)
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return nil, fmt.Errorf("adding trace lines: %w", err)
	}
	return p, nil
}

// SavePNG renders Plot to path.
func (r *Recorder) SavePNG(path, title string) error {
	p, err := r.Plot(title)
	if err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving trace chart: %w", err)
	}
	return nil
}
