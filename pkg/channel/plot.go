package channel

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

func plotColor(primary bool) color.Color {
	if primary {
		return color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	}
	return color.RGBA{R: 0xb0, G: 0xb0, B: 0xb0, A: 0xff}
}

// ExportPlots draws one PNG per receiver showing every stored pulse
// response at that receiver, with the expected transmitter's trace
// plotted alongside the aggressors. Returns the written file paths.
func (a *Analyzer) ExportPlots(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("channel: %w", err)
	}
	var written []string
	for _, rx := range a.rxGroups {
		stored := a.waveforms[groupKey(rx)]
		if len(stored) == 0 {
			continue
		}
		p := plot.New()
		p.Title.Text = fmt.Sprintf("Pulse response at %s", rx.label)
		p.X.Label.Text = "time (ps)"
		p.Y.Label.Text = "voltage (V)"
		p.Legend.Top = true

		for _, tx := range a.txGroups {
			wave, ok := stored[groupKey(tx)]
			if !ok {
				continue
			}
			pts := make(plotter.XYs, len(wave.TimePs))
			for i := range wave.TimePs {
				pts[i].X = wave.TimePs[i]
				pts[i].Y = wave.Volts[i]
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return nil, fmt.Errorf("channel: plot %s: %w", rx.label, err)
			}
			line.Color = plotColor(tx == a.expectedTx(rx))
			p.Add(line)
			p.Legend.Add(tx.label, line)
		}

		path := filepath.Join(dir, fmt.Sprintf("rx_%s.png", sanitizeLabel(rx.label)))
		if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
			return nil, fmt.Errorf("channel: plot %s: %w", rx.label, err)
		}
		written = append(written, path)
	}
	return written, nil
}
