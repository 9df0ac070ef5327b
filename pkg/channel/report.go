package channel

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/channeltrace/cct/pkg/ports"
)

// Row is one receiver's result line. Integral metrics are in V*ps.
type Row struct {
	TxName     string
	RxName     string
	Sig        float64
	ISI        float64
	Xtalk      float64
	PseudoEye  float64
	PowerRatio float64
}

// Calculate reduces the stored waveforms to the report rows. Each
// receiver is scored against its expected transmitter; every other
// transmitter's waveform contributes its absolute integral as crosstalk.
// Receivers without waveforms or without an expected transmitter are
// skipped.
func (a *Analyzer) Calculate() ([]Row, error) {
	ui, err := a.unitIntervalPs()
	if err != nil {
		return nil, err
	}
	var rows []Row
	for _, rx := range a.rxGroups {
		stored := a.waveforms[groupKey(rx)]
		if len(stored) == 0 {
			continue
		}
		primary := a.expectedTx(rx)
		if primary == nil {
			continue
		}
		primaryWave, ok := stored[groupKey(primary)]
		if !ok {
			continue
		}
		sig, isi, err := SigISI(primaryWave.TimePs, primaryWave.Volts, ui)
		if err != nil {
			return nil, fmt.Errorf("rx %s: %w", rx.label, err)
		}
		xtalk := 0.0
		for txKey, wave := range stored {
			if txKey == groupKey(primary) {
				continue
			}
			xtalk += IntegrateNonUniform(wave.TimePs, absSlice(wave.Volts))
		}
		pseudoEye := sig - isi - xtalk
		denom := isi + xtalk
		powerRatio := math.Inf(1)
		if denom != 0 {
			powerRatio = sig / denom
		}
		rows = append(rows, Row{
			TxName:     primary.label,
			RxName:     rx.label,
			Sig:        sig,
			ISI:        isi,
			Xtalk:      xtalk,
			PseudoEye:  pseudoEye,
			PowerRatio: powerRatio,
		})
	}
	if len(rows) == 0 {
		return nil, ports.Validationf("no receiver waveforms available; run the transient simulation first")
	}
	return rows, nil
}

const reportHeader = "tx_name, rx_name, sig(V*ps), isi(V*ps), xtalk(V*ps), pseudo_eye(V*ps), power_ratio"

// WriteCSV renders the rows into the report file. The report format
// separates fields with a comma and a space, which encoding/csv cannot
// produce (csv.Writer.Comma is a single rune), so the rows are joined
// by hand.
func WriteCSV(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	var b strings.Builder
	b.WriteString(reportHeader + "\n")
	for i, r := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s, %s, %.3f, %.3f, %.3f, %.3f, %.3f",
			r.TxName, r.RxName, r.Sig, r.ISI, r.Xtalk, r.PseudoEye, r.PowerRatio)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	return nil
}

// Report runs Calculate and writes the CSV in one step, returning the
// rows for display.
func (a *Analyzer) Report(path string) ([]Row, error) {
	rows, err := a.Calculate()
	if err != nil {
		return nil, err
	}
	if err := WriteCSV(path, rows); err != nil {
		return nil, err
	}
	return rows, nil
}
