package bench

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// renderChart draws per-operation latency as grouped bars, one group per
// phase and one color per engine.
func renderChart(results []Result, path string) error {
	phases := []string{"load", string(OLTP), string(OLAP), string(Reporting)}
	var engines []string
	for _, r := range results {
		if len(engines) == 0 || engines[len(engines)-1] != r.Engine {
			engines = append(engines, r.Engine)
		}
	}

	p := plot.New()
	p.Title.Text = "Per-operation latency"
	p.Y.Label.Text = "ns/op"

	width := vg.Points(20)
	for i, eng := range engines {
		vals := make(plotter.Values, len(phases))
		for j, phase := range phases {
			vals[j] = float64(lookupNs(results, eng, phase))
		}
		bars, err := plotter.NewBarChart(vals, width)
		if err != nil {
			return fmt.Errorf("bench: chart: %w", err)
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		bars.Offset = width*vg.Length(i) - width*vg.Length(len(engines)-1)/2
		p.Add(bars)
		p.Legend.Add(eng, bars)
	}
	p.Legend.Top = true
	p.NominalX(phases...)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("bench: save chart: %w", err)
	}
	return nil
}

func lookupNs(results []Result, engine, phase string) int64 {
	for _, r := range results {
		if r.Engine == engine && r.Phase == phase {
			return r.NsPerOp
		}
	}
	return 0
}
